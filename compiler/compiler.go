// Package compiler lowers analyzed function bodies to FunctionBytecode.
//
// Lowering emits a doubly linked instruction list with label
// pseudo-instructions. Two optimizations run on the list before a two-pass
// layout resolves jump deltas and encodes the bytes.
package compiler

import (
	"errors"
	"fmt"
	"math"

	"github.com/tliron/commonlog"

	"github.com/chazu/tuuvm/ast"
	"github.com/chazu/tuuvm/bigint"
	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

var log = commonlog.GetLogger("tuuvm.compiler")

var (
	// ErrTooManyOperands is returned when a send, call or constructor needs
	// more variable operands than an opcode can encode.
	ErrTooManyOperands = errors.New("compiler: too many operands")
	// ErrBreakOutsideLoop is returned for break or continue outside a loop.
	ErrBreakOutsideLoop = errors.New("compiler: break or continue outside a loop")
	// ErrUnresolvedBinding is returned for a reference the function cannot
	// reach.
	ErrUnresolvedBinding = errors.New("compiler: unresolved binding")
	// ErrOffsetOverflow is returned when a jump does not fit its operand.
	ErrOffsetOverflow = errors.New("compiler: jump offset overflow")
	// ErrTooManyLocals is returned when the local vector outgrows operand
	// indices.
	ErrTooManyLocals = errors.New("compiler: too many locals")
	// ErrImmutableBinding is returned for assignments to arguments,
	// immutable locals and unboxed captures.
	ErrImmutableBinding = errors.New("compiler: assignment to immutable binding")
	// ErrInvalidNode is returned for malformed trees.
	ErrInvalidNode = errors.New("compiler: invalid node")
)

// Options select the optimizations Compile runs.
type Options struct {
	RemoveEmptyJumps  bool
	StripLocalAllocas bool
}

// DefaultOptions enables every optimization.
var DefaultOptions = Options{RemoveEmptyJumps: true, StripLocalAllocas: true}

// Compiler implements vm.Compiler.
type Compiler struct {
	Options Options

	// Statistics of the last Compile call.
	EmptyJumpsRemoved int
	AllocasStripped   int
}

var _ vm.Compiler = (*Compiler)(nil)

// New returns a compiler with every optimization enabled.
func New() *Compiler {
	return &Compiler{Options: DefaultOptions}
}

// Install makes c the context's compiler.
func (c *Compiler) Install(ctx *vm.Context) *Compiler {
	ctx.SetCompiler(c)
	return c
}

// Compile lowers def to a FunctionBytecode tuple. It allocates literals
// but never reaches a safepoint.
func (c *Compiler) Compile(ctx *vm.Context, def *ast.FunctionDef) (tuple.Tuple, error) {
	b := newBuilder(ctx, def)
	b.lowerBody()
	if b.err != nil {
		return tuple.Null, fmt.Errorf("compile %s: %w", b.name(), b.err)
	}

	c.EmptyJumpsRemoved, c.AllocasStripped = 0, 0
	if c.Options.StripLocalAllocas {
		c.AllocasStripped = stripLocalAllocas(&b.list, b.isNullLiteral)
	}
	if c.Options.RemoveEmptyJumps {
		c.EmptyJumpsRemoved = removeEmptyJumps(&b.list)
	}

	code, positions, err := layout(&b.list)
	if err != nil {
		return tuple.Null, fmt.Errorf("compile %s: %w", b.name(), err)
	}
	log.Debugf("compiled %s: %d bytes, %d literals, %d locals, %d empty jumps removed, %d allocas stripped",
		b.name(), len(code), len(b.literals), b.localCount, c.EmptyJumpsRemoved, c.AllocasStripped)

	return ctx.NewFunctionBytecode(vm.BytecodeSpec{
		ArgumentCount: def.ArgumentCount,
		CaptureCount:  len(def.Captures),
		LocalCount:    b.localCount,
		Literals:      b.literals,
		Instructions:  code,
		Positions:     positions,
	}), nil
}

// Listing lowers and optimizes def and returns the instruction list as
// text, labels included. It is meant for debugging the compiler.
func (c *Compiler) Listing(ctx *vm.Context, def *ast.FunctionDef) (string, error) {
	b := newBuilder(ctx, def)
	b.lowerBody()
	if b.err != nil {
		return "", b.err
	}
	if c.Options.StripLocalAllocas {
		stripLocalAllocas(&b.list, b.isNullLiteral)
	}
	if c.Options.RemoveEmptyJumps {
		removeEmptyJumps(&b.list)
	}
	return b.list.String(), nil
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// localSlot is where a local binding lives. Mutable locals hold a box.
type localSlot struct {
	operand bytecode.Operand
	boxed   bool
}

type loopLabels struct {
	step, end *instruction
}

type builder struct {
	ctx *vm.Context
	def *ast.FunctionDef

	list       instructionList
	literals   []tuple.Tuple
	literalMap map[any]int
	locals     map[*ast.LocalBinding]localSlot
	localCount int
	scratch    bytecode.Operand
	hasScratch bool
	loops      []loopLabels
	position   ast.Position
	err        error
}

// Literal dedup keys that must not collide with plain Go values.
type (
	nullLiteral   struct{}
	bigLiteral    string
	floatLiteral  uint64
	globalLiteral string
)

func newBuilder(ctx *vm.Context, def *ast.FunctionDef) *builder {
	return &builder{
		ctx:        ctx,
		def:        def,
		literalMap: map[any]int{},
		locals:     map[*ast.LocalBinding]localSlot{},
		position:   def.At,
	}
}

func (b *builder) name() string {
	if b.def.Name == "" {
		return "<anonymous>"
	}
	return b.def.Name
}

func (b *builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *builder) failf(sentinel error, format string, args ...any) {
	b.fail(fmt.Errorf("%w: %s (%s)", sentinel, fmt.Sprintf(format, args...), b.position))
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

func (b *builder) newLocal() bytecode.Operand {
	o, err := bytecode.EncodeOperand(bytecode.VectorLocals, b.localCount)
	if err != nil {
		b.failf(ErrTooManyLocals, "%d locals", b.localCount+1)
		return bytecode.VoidOperand
	}
	b.localCount++
	return o
}

// sink is the destination of values nobody reads.
func (b *builder) sink() bytecode.Operand {
	if !b.hasScratch {
		b.scratch = b.newLocal()
		b.hasScratch = true
	}
	return b.scratch
}

func (b *builder) dest(effect bool) bytecode.Operand {
	if effect {
		return b.sink()
	}
	return b.newLocal()
}

func (b *builder) literal(key any, alloc func() tuple.Tuple) bytecode.Operand {
	if key != nil {
		if i, ok := b.literalMap[key]; ok {
			return bytecode.MustOperand(bytecode.VectorLiterals, i)
		}
	}
	i := len(b.literals)
	o, err := bytecode.EncodeOperand(bytecode.VectorLiterals, i)
	if err != nil {
		b.failf(ErrTooManyOperands, "%d literals", i+1)
		return bytecode.VoidOperand
	}
	b.literals = append(b.literals, alloc())
	if key != nil {
		b.literalMap[key] = i
	}
	return o
}

func (b *builder) nullOperand() bytecode.Operand {
	return b.literal(nullLiteral{}, func() tuple.Tuple { return tuple.Null })
}

func (b *builder) isNullLiteral(o bytecode.Operand) bool {
	if o.IsVoid() || o.Vector() != bytecode.VectorLiterals {
		return false
	}
	i := o.Index()
	return i < len(b.literals) && b.literals[i].IsNull()
}

func (b *builder) constant(v any) bytecode.Operand {
	ctx := b.ctx
	switch v := v.(type) {
	case nil:
		return b.nullOperand()
	case ast.VoidValue:
		return bytecode.VoidOperand
	case bool:
		return b.literal(v, func() tuple.Tuple { return tuple.FromBool(v) })
	case int:
		return b.constant(int64(v))
	case int64:
		return b.literal(v, func() tuple.Tuple { return ctx.NewInteger(v) })
	case bigint.Int:
		return b.literal(bigLiteral(v.String()), func() tuple.Tuple { return ctx.EncodeInteger(v) })
	case float64:
		return b.literal(floatLiteral(math.Float64bits(v)), func() tuple.Tuple { return ctx.EncodeFloat64(v) })
	case string:
		return b.literal(v, func() tuple.Tuple {
			s := ctx.NewString(v)
			ctx.Heap().MarkImmutable(s)
			return s
		})
	case ast.Symbol:
		return b.literal(v, func() tuple.Tuple { return ctx.Intern(string(v)) })
	case ast.Char:
		return b.literal(v, func() tuple.Tuple {
			if v >= 0 && v < 256 {
				return ctx.EncodeChar8(uint8(v))
			}
			return ctx.EncodeChar32(uint32(v))
		})
	}
	b.failf(ErrInvalidNode, "literal of Go type %T", v)
	return bytecode.VoidOperand
}

func (b *builder) selector(name string) bytecode.Operand {
	return b.constant(ast.Symbol(name))
}

func (b *builder) global(name string) bytecode.Operand {
	return b.literal(globalLiteral(name), func() tuple.Tuple { return b.ctx.GlobalAssociation(name) })
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (b *builder) emit(op bytecode.Opcode, operands ...bytecode.Operand) *instruction {
	return b.list.append(&instruction{opcode: op, operands: operands, position: b.position})
}

// emitVariable emits a variable-count opcode, checking that the count fits
// the opcode nibble.
func (b *builder) emitVariable(family bytecode.Opcode, operands ...bytecode.Operand) {
	n := len(operands) - family.Info().FixedOperands
	op, err := family.WithCount(n)
	if err != nil {
		b.failf(ErrTooManyOperands, "%s with %d operands, at most %d", family.Name(), n, bytecode.MaxVariableOperands)
		return
	}
	b.emit(op, operands...)
}

func (b *builder) newLabel() *instruction {
	return &instruction{label: true}
}

func (b *builder) placeLabel(l *instruction) {
	b.list.append(l)
}

func (b *builder) jump(target *instruction) {
	in := b.emit(bytecode.OpJump, 0)
	in.target = target
}

func (b *builder) jumpIf(op bytecode.Opcode, cond bytecode.Operand, target *instruction) {
	in := b.emit(op, cond, 0)
	in.target = target
}

// ---------------------------------------------------------------------------
// Lowering
// ---------------------------------------------------------------------------

func (b *builder) lowerBody() {
	if b.def.Body == nil {
		b.emit(bytecode.OpReturn, bytecode.VoidOperand)
		return
	}
	v := b.value(b.def.Body)
	if last := b.list.last; last == nil || last.label || last.opcode != bytecode.OpReturn {
		b.emit(bytecode.OpReturn, v)
	}
}

// value lowers n and returns the operand holding its result.
func (b *builder) value(n ast.Node) bytecode.Operand {
	return b.lower(n, false)
}

// effect lowers n for its side effects only.
func (b *builder) effect(n ast.Node) {
	b.lower(n, true)
}

func (b *builder) values(nodes []ast.Node) []bytecode.Operand {
	ops := make([]bytecode.Operand, len(nodes))
	for i, n := range nodes {
		ops[i] = b.value(n)
	}
	return ops
}

func (b *builder) lower(n ast.Node, effect bool) bytecode.Operand {
	if b.err != nil {
		return bytecode.VoidOperand
	}
	if n == nil {
		b.failf(ErrInvalidNode, "nil node")
		return bytecode.VoidOperand
	}
	saved := b.position
	if p := n.Pos(); p.IsKnown() {
		b.position = p
	}
	defer func() { b.position = saved }()

	switch n := n.(type) {
	case *ast.Literal:
		return b.constant(n.Value)

	case *ast.Identifier:
		return b.read(n.Binding)

	case *ast.Sequence:
		if len(n.Elements) == 0 {
			return bytecode.VoidOperand
		}
		for _, e := range n.Elements[:len(n.Elements)-1] {
			b.effect(e)
		}
		return b.lower(n.Elements[len(n.Elements)-1], effect)

	case *ast.If:
		return b.lowerIf(n, effect)

	case *ast.While:
		b.lowerWhile(n)
		return bytecode.VoidOperand

	case *ast.Break:
		if len(b.loops) == 0 {
			b.failf(ErrBreakOutsideLoop, "break")
			return bytecode.VoidOperand
		}
		b.jump(b.loops[len(b.loops)-1].end)
		return bytecode.VoidOperand

	case *ast.Continue:
		if len(b.loops) == 0 {
			b.failf(ErrBreakOutsideLoop, "continue")
			return bytecode.VoidOperand
		}
		b.jump(b.loops[len(b.loops)-1].step)
		return bytecode.VoidOperand

	case *ast.Return:
		v := bytecode.VoidOperand
		if n.Value != nil {
			v = b.value(n.Value)
		}
		b.emit(bytecode.OpReturn, v)
		return bytecode.VoidOperand

	case *ast.Lambda:
		return b.lowerLambda(n, effect)

	case *ast.MessageSend:
		sel := b.selector(n.Selector)
		var lookup bytecode.Operand
		if n.LookupType != nil {
			lookup = b.value(n.LookupType)
		}
		recv := b.value(n.Receiver)
		args := b.values(n.Arguments)
		dst := b.dest(effect)
		if n.LookupType != nil {
			b.emitVariable(bytecode.OpSendWithLookup, append([]bytecode.Operand{dst, lookup, sel, recv}, args...)...)
		} else {
			b.emitVariable(bytecode.OpSend, append([]bytecode.Operand{dst, sel, recv}, args...)...)
		}
		return dst

	case *ast.Call:
		fn := b.value(n.Function)
		args := b.values(n.Arguments)
		dst := b.dest(effect)
		family := bytecode.OpCall
		if n.Unchecked {
			family = bytecode.OpUncheckedCall
		}
		b.emitVariable(family, append([]bytecode.Operand{dst, fn}, args...)...)
		return dst

	case *ast.LocalDefinition:
		return b.define(n)

	case *ast.Assignment:
		return b.assign(n)

	case *ast.MakeArray:
		elems := b.values(n.Elements)
		dst := b.dest(effect)
		b.emitVariable(bytecode.OpMakeArray, append([]bytecode.Operand{dst}, elems...)...)
		return dst

	case *ast.MakeDictionary:
		if len(n.Keys) != len(n.Values) {
			b.failf(ErrInvalidNode, "dictionary with %d keys and %d values", len(n.Keys), len(n.Values))
			return bytecode.VoidOperand
		}
		assocs := make([]bytecode.Operand, len(n.Keys))
		for i := range n.Keys {
			k := b.value(n.Keys[i])
			v := b.value(n.Values[i])
			assocs[i] = b.newLocal()
			b.emit(bytecode.OpMakeAssociation, assocs[i], k, v)
		}
		dst := b.dest(effect)
		b.emitVariable(bytecode.OpMakeDictionary, append([]bytecode.Operand{dst}, assocs...)...)
		return dst

	case *ast.MakeTuple:
		typ := b.value(n.Type)
		slots := b.values(n.Slots)
		dst := b.dest(effect)
		b.emitVariable(bytecode.OpMakeTuple, append([]bytecode.Operand{dst, typ}, slots...)...)
		return dst

	case *ast.Coerce:
		typ := b.value(n.Type)
		v := b.value(n.Value)
		dst := b.dest(effect)
		b.emit(bytecode.OpCoerceValue, dst, typ, v)
		return dst

	case *ast.TypeCheck:
		typ := b.value(n.Type)
		v := b.value(n.Value)
		dst := b.dest(effect)
		b.emit(bytecode.OpTypecheckValue, dst, typ, v)
		return dst

	case *ast.SlotAt:
		t := b.value(n.Tuple)
		i := b.value(n.Index)
		dst := b.dest(effect)
		b.emit(bytecode.OpSlotAt, dst, t, i)
		return dst

	case *ast.SlotAtPut:
		t := b.value(n.Tuple)
		i := b.value(n.Index)
		v := b.value(n.Value)
		b.emit(bytecode.OpSlotAtPut, t, i, v)
		return v
	}

	b.failf(ErrInvalidNode, "unsupported node %T", n)
	return bytecode.VoidOperand
}

func (b *builder) lowerIf(n *ast.If, effect bool) bytecode.Operand {
	cond := b.value(n.Condition)
	elseLabel, end := b.newLabel(), b.newLabel()
	b.jumpIf(bytecode.OpJumpIfFalse, cond, elseLabel)

	if effect {
		b.effect(n.Then)
		b.jump(end)
		b.placeLabel(elseLabel)
		if n.Else != nil {
			b.effect(n.Else)
		}
		b.placeLabel(end)
		return bytecode.VoidOperand
	}

	result := b.newLocal()
	b.emit(bytecode.OpMove, result, b.value(n.Then))
	b.jump(end)
	b.placeLabel(elseLabel)
	elseValue := bytecode.VoidOperand
	if n.Else != nil {
		elseValue = b.value(n.Else)
	}
	b.emit(bytecode.OpMove, result, elseValue)
	b.placeLabel(end)
	return result
}

// lowerWhile lays a loop out as
//
//	top:  cond; jumpIfFalse end
//	      body
//	step: step; jump top
//	end:
func (b *builder) lowerWhile(n *ast.While) {
	top, step, end := b.newLabel(), b.newLabel(), b.newLabel()
	b.placeLabel(top)
	if n.Condition != nil {
		b.jumpIf(bytecode.OpJumpIfFalse, b.value(n.Condition), end)
	}
	b.loops = append(b.loops, loopLabels{step: step, end: end})
	if n.Body != nil {
		b.effect(n.Body)
	}
	b.loops = b.loops[:len(b.loops)-1]
	b.placeLabel(step)
	if n.Step != nil {
		b.effect(n.Step)
	}
	b.jump(top)
	b.placeLabel(end)
}

func (b *builder) lowerLambda(n *ast.Lambda, effect bool) bytecode.Operand {
	inner := n.Definition
	if inner == nil {
		b.failf(ErrInvalidNode, "lambda without definition")
		return bytecode.VoidOperand
	}
	captures := make([]bytecode.Operand, len(inner.Captures))
	for i, c := range inner.Captures {
		captures[i] = b.captureSource(c, inner.Name)
	}
	def := b.literal(nil, func() tuple.Tuple { return b.ctx.NewFunctionDefinition(inner) })
	dst := b.dest(effect)
	b.emitVariable(bytecode.OpMakeClosure, append([]bytecode.Operand{dst, def}, captures...)...)
	return dst
}

// captureSource returns the operand whose value a closure captures for c.
// Boxed captures receive the box itself.
func (b *builder) captureSource(c ast.Binding, lambda string) bytecode.Operand {
	switch c := c.(type) {
	case *ast.ArgumentBinding:
		return b.argument(c)
	case *ast.LocalBinding:
		slot, ok := b.locals[c]
		if !ok {
			b.failf(ErrUnresolvedBinding, "local %s captured by %s before its definition", c.Name, lambda)
			return bytecode.VoidOperand
		}
		return slot.operand
	case *ast.CaptureBinding:
		return b.capture(c)
	}
	b.failf(ErrUnresolvedBinding, "%T %s cannot be captured", c, c.BindingName())
	return bytecode.VoidOperand
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

func (b *builder) argument(a *ast.ArgumentBinding) bytecode.Operand {
	if a.Index < 0 || a.Index >= b.def.ArgumentCount {
		b.failf(ErrUnresolvedBinding, "argument %s index %d of %d", a.Name, a.Index, b.def.ArgumentCount)
		return bytecode.VoidOperand
	}
	return bytecode.MustOperand(bytecode.VectorArguments, a.Index)
}

func (b *builder) capture(c *ast.CaptureBinding) bytecode.Operand {
	if c.Index < 0 || c.Index >= len(b.def.Captures) {
		b.failf(ErrUnresolvedBinding, "capture %s index %d of %d", c.Name, c.Index, len(b.def.Captures))
		return bytecode.VoidOperand
	}
	return bytecode.MustOperand(bytecode.VectorCaptures, c.Index)
}

func (b *builder) read(binding ast.Binding) bytecode.Operand {
	switch bd := binding.(type) {
	case *ast.ArgumentBinding:
		return b.argument(bd)
	case *ast.CaptureBinding:
		o := b.capture(bd)
		if !bd.Boxed {
			return o
		}
		dst := b.newLocal()
		b.emit(bytecode.OpLoad, dst, o)
		return dst
	case *ast.LocalBinding:
		slot, ok := b.locals[bd]
		if !ok {
			b.failf(ErrUnresolvedBinding, "local %s read before its definition", bd.Name)
			return bytecode.VoidOperand
		}
		if !slot.boxed {
			return slot.operand
		}
		dst := b.newLocal()
		b.emit(bytecode.OpLoad, dst, slot.operand)
		return dst
	case *ast.GlobalBinding:
		dst := b.newLocal()
		b.emit(bytecode.OpLoad, dst, b.global(bd.Name))
		return dst
	case nil:
		b.failf(ErrUnresolvedBinding, "identifier without binding")
		return bytecode.VoidOperand
	}
	b.failf(ErrUnresolvedBinding, "unknown binding %T", binding)
	return bytecode.VoidOperand
}

// define gives a local its slot. Immutable locals live in the slot
// directly; mutable ones get a fresh box on every execution so closures
// created in different iterations do not share it.
func (b *builder) define(n *ast.LocalDefinition) bytecode.Operand {
	if n.Binding == nil {
		b.failf(ErrInvalidNode, "local definition without binding")
		return bytecode.VoidOperand
	}
	v := bytecode.VoidOperand
	if n.Value != nil {
		v = b.value(n.Value)
	}
	slot, ok := b.locals[n.Binding]
	if !ok {
		slot = localSlot{operand: b.newLocal(), boxed: n.Binding.Mutable}
		b.locals[n.Binding] = slot
	}
	if slot.boxed {
		b.emit(bytecode.OpAllocaWithValue, slot.operand, b.nullOperand(), v)
	} else {
		b.emit(bytecode.OpMove, slot.operand, v)
	}
	return v
}

func (b *builder) assign(n *ast.Assignment) bytecode.Operand {
	v := b.value(n.Value)
	switch bd := n.Binding.(type) {
	case *ast.LocalBinding:
		slot, ok := b.locals[bd]
		switch {
		case !ok:
			b.failf(ErrUnresolvedBinding, "local %s assigned before its definition", bd.Name)
		case !slot.boxed:
			b.failf(ErrImmutableBinding, "local %s", bd.Name)
		default:
			b.emit(bytecode.OpStore, slot.operand, v)
		}
	case *ast.CaptureBinding:
		o := b.capture(bd)
		if !bd.Boxed {
			b.failf(ErrImmutableBinding, "capture %s", bd.Name)
		} else {
			b.emit(bytecode.OpStore, o, v)
		}
	case *ast.GlobalBinding:
		b.emit(bytecode.OpStore, b.global(bd.Name), v)
	case *ast.ArgumentBinding:
		b.failf(ErrImmutableBinding, "argument %s", bd.Name)
	default:
		b.failf(ErrUnresolvedBinding, "assignment to %T", n.Binding)
	}
	return v
}
