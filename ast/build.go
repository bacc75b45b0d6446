package ast

// SetPos records the source position of a node.
func (e *expr) SetPos(p Position) { e.At = p }

// Positioned is implemented by every node.
type Positioned interface {
	Node
	SetPos(Position)
}

// At sets the position of n and returns it.
func At[N Positioned](p Position, n N) N {
	n.SetPos(p)
	return n
}

// Lit is a literal node.
func Lit(v any) *Literal { return &Literal{Value: v} }

// Int is an integer literal node.
func Int(n int64) *Literal { return &Literal{Value: n} }

// Str is a string literal node.
func Str(s string) *Literal { return &Literal{Value: s} }

// Ref reads a binding.
func Ref(b Binding) *Identifier { return &Identifier{Binding: b} }

// Global reads a global by name.
func Global(name string) *Identifier { return &Identifier{Binding: &GlobalBinding{Name: name}} }

// Seq builds a sequence.
func Seq(nodes ...Node) *Sequence { return &Sequence{Elements: nodes} }

// Send builds a message send.
func Send(receiver Node, selector string, args ...Node) *MessageSend {
	return &MessageSend{Receiver: receiver, Selector: selector, Arguments: args}
}

// SuperSend builds a message send whose lookup starts at lookupType.
func SuperSend(lookupType, receiver Node, selector string, args ...Node) *MessageSend {
	return &MessageSend{Receiver: receiver, Selector: selector, Arguments: args, LookupType: lookupType}
}

// Apply builds a checked call.
func Apply(fn Node, args ...Node) *Call { return &Call{Function: fn, Arguments: args} }

// Define introduces a local.
func Define(b *LocalBinding, v Node) *LocalDefinition { return &LocalDefinition{Binding: b, Value: v} }

// Assign stores into a binding.
func Assign(b Binding, v Node) *Assignment { return &Assignment{Binding: b, Value: v} }

// Cond builds an if/else; elseNode may be nil.
func Cond(cond, then, elseNode Node) *If { return &If{Condition: cond, Then: then, Else: elseNode} }

// Loop builds a while loop; step may be nil.
func Loop(cond, body, step Node) *While { return &While{Condition: cond, Body: body, Step: step} }

// Ret builds a return.
func Ret(v Node) *Return { return &Return{Value: v} }

// Fn builds a lambda.
func Fn(def *FunctionDef) *Lambda { return &Lambda{Definition: def} }

// Arg builds an argument binding.
func Arg(name string, index int) *ArgumentBinding { return &ArgumentBinding{Name: name, Index: index} }

// Capture builds a capture binding.
func Capture(name string, index int, boxed bool) *CaptureBinding {
	return &CaptureBinding{Name: name, Index: index, Boxed: boxed}
}

// Local builds a local binding.
func Local(name string, mutable bool) *LocalBinding { return &LocalBinding{Name: name, Mutable: mutable} }
