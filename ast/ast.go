// Package ast defines the analyzed syntax tree handed to the bytecode
// compiler. Identifiers carry resolved bindings, never bare names; parsing,
// macro expansion and name resolution happen before a tree reaches this
// package.
package ast

import "fmt"

// Position is a source location.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" && p.Line == 0 {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// IsKnown reports whether p carries a location.
func (p Position) IsKnown() bool {
	return p.Line > 0
}

// Node is any expression in the tree. Every node produces a value; control
// nodes such as While produce void.
type Node interface {
	Pos() Position
	exprNode()
}

type expr struct {
	At Position
}

func (e expr) Pos() Position { return e.At }
func (expr) exprNode()       {}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

// Binding is a resolved reference to a variable.
type Binding interface {
	BindingName() string
	bindingNode()
}

// ArgumentBinding refers to an argument of the enclosing function.
type ArgumentBinding struct {
	Name  string
	Index int
}

// CaptureBinding refers to a slot of the enclosing closure's capture vector.
// Boxed captures hold a box shared with the defining scope, so reads and
// writes go through it.
type CaptureBinding struct {
	Name  string
	Index int
	Boxed bool
}

// LocalBinding is a local variable. Identity matters: the compiler keys
// locals by pointer.
type LocalBinding struct {
	Name    string
	Mutable bool
}

// GlobalBinding refers to a global association looked up by name at compile
// time.
type GlobalBinding struct {
	Name string
}

func (b *ArgumentBinding) BindingName() string { return b.Name }
func (b *CaptureBinding) BindingName() string  { return b.Name }
func (b *LocalBinding) BindingName() string    { return b.Name }
func (b *GlobalBinding) BindingName() string   { return b.Name }

func (*ArgumentBinding) bindingNode() {}
func (*CaptureBinding) bindingNode()  {}
func (*LocalBinding) bindingNode()    {}
func (*GlobalBinding) bindingNode()   {}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// FunctionDef is an analyzed function body. Captures lists, in capture
// vector order, the bindings of the enclosing scope the function closes
// over.
type FunctionDef struct {
	Name          string
	ArgumentCount int
	Variadic      bool
	Captures      []Binding
	Body          Node
	At            Position
}

// ---------------------------------------------------------------------------
// Literal values
// ---------------------------------------------------------------------------

// Symbol is a literal interned symbol.
type Symbol string

// VoidValue is the literal void.
type VoidValue struct{}

// Char is a literal character.
type Char rune

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Literal is a constant. Value is one of nil, bool, int64, bigint.Int,
// float64, string, Symbol, Char or VoidValue.
type Literal struct {
	expr
	Value any
}

// Identifier reads a binding.
type Identifier struct {
	expr
	Binding Binding
}

// Sequence evaluates its elements in order; its value is the last one, or
// void when empty.
type Sequence struct {
	expr
	Elements []Node
}

// If evaluates Then when Condition is truthy, else Else (void when nil).
type If struct {
	expr
	Condition Node
	Then      Node
	Else      Node
}

// While repeats Body while Condition is truthy. Step runs after each
// iteration and is where Continue resumes. Its value is void.
type While struct {
	expr
	Condition Node
	Body      Node
	Step      Node
}

// Break leaves the innermost While.
type Break struct {
	expr
}

// Continue jumps to the Step of the innermost While.
type Continue struct {
	expr
}

// Return leaves the current function with Value.
type Return struct {
	expr
	Value Node
}

// Lambda creates a closure over Definition.
type Lambda struct {
	expr
	Definition *FunctionDef
}

// MessageSend sends Selector to Receiver. When LookupType is set, lookup
// starts at that type instead of the receiver's (super sends).
type MessageSend struct {
	expr
	Receiver   Node
	Selector   string
	Arguments  []Node
	LookupType Node
}

// Call applies a function value. Unchecked calls skip argument count
// validation.
type Call struct {
	expr
	Function  Node
	Arguments []Node
	Unchecked bool
}

// LocalDefinition introduces Binding with an initial Value. Its value is
// the initial value.
type LocalDefinition struct {
	expr
	Binding *LocalBinding
	Value   Node
}

// Assignment stores Value into a mutable binding. Its value is the stored
// value.
type Assignment struct {
	expr
	Binding Binding
	Value   Node
}

// MakeArray builds an Array from its elements.
type MakeArray struct {
	expr
	Elements []Node
}

// MakeDictionary builds a Dictionary from parallel key and value lists.
type MakeDictionary struct {
	expr
	Keys   []Node
	Values []Node
}

// MakeTuple instantiates Type with the given slot values.
type MakeTuple struct {
	expr
	Type  Node
	Slots []Node
}

// Coerce converts Value to Type.
type Coerce struct {
	expr
	Type  Node
	Value Node
}

// TypeCheck validates that Value conforms to Type.
type TypeCheck struct {
	expr
	Type  Node
	Value Node
}

// SlotAt reads a slot by index.
type SlotAt struct {
	expr
	Tuple Node
	Index Node
}

// SlotAtPut writes a slot by index. Its value is the stored value.
type SlotAtPut struct {
	expr
	Tuple Node
	Index Node
	Value Node
}
