package vm

import (
	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/tuple"
)

// Runtime operations shared by the interpreter and native code. Every
// instruction that does more than move words between operand vectors is
// one of these calls, so both execution engines agree by construction.

// ---------------------------------------------------------------------------
// Operand access
// ---------------------------------------------------------------------------

// Value reads a vector operand. Void operands read as void. Bounds were
// checked by the caller.
func (a *BytecodeActivation) Value(o bytecode.Operand) tuple.Tuple {
	if o.IsVoid() {
		return tuple.Void
	}
	switch o.Vector() {
	case bytecode.VectorArguments:
		return a.Arguments[o.Index()]
	case bytecode.VectorCaptures:
		return a.Context.heap.Slot(a.Captures, o.Index())
	case bytecode.VectorLiterals:
		return a.Context.heap.Slot(a.Literals, o.Index())
	default:
		return a.Locals[o.Index()]
	}
}

// Values reads a run of operands into a fresh slice.
func (a *BytecodeActivation) Values(ops []bytecode.Operand) []tuple.Tuple {
	out := make([]tuple.Tuple, len(ops))
	for i, o := range ops {
		out[i] = a.Value(o)
	}
	return out
}

// SetLocal writes a destination operand.
func (a *BytecodeActivation) SetLocal(o bytecode.Operand, v tuple.Tuple) {
	a.Locals[o.Index()] = v
}

// Sizes returns the actual vector sizes of the activation.
func (a *BytecodeActivation) Sizes() bytecode.VectorSizes {
	h := a.Context.heap
	return bytecode.VectorSizes{
		Arguments: len(a.Arguments),
		Captures:  h.SlotCount(a.Captures),
		Literals:  h.SlotCount(a.Literals),
		Locals:    len(a.Locals),
	}
}

// CheckOperands validates the operands of one instruction against the
// activation's vectors. A violation is a VM-fatal error.
func (a *BytecodeActivation) CheckOperands(op bytecode.Opcode, ops []bytecode.Operand) {
	sizes := a.Sizes()
	offset := op.OffsetOperand()
	dests := op.DestCount()
	for i, o := range ops {
		if i == offset {
			continue
		}
		if err := sizes.CheckOperand(o, i < dests); err != nil {
			Fatalf("%s pc %d (%s): %v", a.Context.FunctionName(a.Function), a.PC, op, err)
		}
	}
}

// CacheAt returns the inline cache of the send at pc.
func (a *BytecodeActivation) CacheAt(pc int) *InlineCache {
	if a.caches == nil {
		return nil
	}
	return a.caches.GetOrCreate(pc)
}

// Safepoint is called on backward jumps.
func (a *BytecodeActivation) Safepoint() {
	a.Context.GCSafepoint()
}

// ---------------------------------------------------------------------------
// Calls and sends
// ---------------------------------------------------------------------------

// Call applies fn to args. Values that are not functions are sent
// #valueWithArguments: so callable objects work too.
func (ctx *Context) Call(fn tuple.Tuple, args []tuple.Tuple, unchecked bool) tuple.Tuple {
	if !ctx.IsFunction(fn) {
		return ctx.Send("valueWithArguments:", fn, ctx.NewArray(args...))
	}
	var flags ApplyFlags
	if unchecked {
		flags |= ApplyUnchecked
	}
	return ctx.FunctionApply(fn, args, flags)
}

// SendAt performs the send instruction at pc of a. args[0] is the
// receiver.
func (ctx *Context) SendAt(a *BytecodeActivation, pc int, lookupType, selector tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	return ctx.SendWithCache(a.CacheAt(pc), lookupType, selector, args)
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// MakeClosure instantiates a FunctionDefinition literal.
func (ctx *Context) MakeClosure(definition tuple.Tuple, captures []tuple.Tuple) tuple.Tuple {
	if !definition.IsPointer() || ctx.heap.Type(definition) != ctx.types[FunctionDefinitionType] {
		Fatalf("makeClosure: operand is not a FunctionDefinition")
	}
	return ctx.NewClosure(definition, captures)
}

// MakeDictionary builds a Dictionary from Associations.
func (ctx *Context) MakeDictionary(associations []tuple.Tuple) tuple.Tuple {
	d := ctx.NewDictionary()
	for _, a := range associations {
		if !ctx.IsKindOfWellKnown(a, AssociationType) {
			ctx.SignalError(TypeCheckErrorType, "dictionary elements must be associations")
		}
		ctx.DictionaryAtPut(d, ctx.heap.Slot(a, AssociationKey), ctx.heap.Slot(a, AssociationValue))
	}
	return d
}

// MakeTuple instantiates typ with its leading slots set from slots.
func (ctx *Context) MakeTuple(typ tuple.Tuple, slots []tuple.Tuple) tuple.Tuple {
	if !ctx.IsType(typ) {
		ctx.SignalError(TypeCheckErrorType, "makeTuple: "+ctx.PrintString(typ)+" is not a type")
	}
	obj := ctx.BasicNew(typ, 0)
	if ctx.heap.IsBytes(obj) {
		ctx.SignalError(TypeCheckErrorType, "makeTuple: "+ctx.TypeName(typ)+" is a byte type")
	}
	if len(slots) > ctx.heap.SlotCount(obj) {
		ctx.SignalError(IndexOutOfBoundsType, "makeTuple: too many slot values for "+ctx.TypeName(typ))
	}
	for i, v := range slots {
		ctx.heap.SetSlot(obj, i, v)
	}
	return obj
}

// ---------------------------------------------------------------------------
// Pointer-like values
// ---------------------------------------------------------------------------

// Alloca allocates a fresh pointer-like cell. A null type means Box.
func (ctx *Context) Alloca(pointerType tuple.Tuple) tuple.Tuple {
	return ctx.AllocaWithValue(pointerType, tuple.Null)
}

// AllocaWithValue allocates a pointer-like cell holding v.
func (ctx *Context) AllocaWithValue(pointerType, v tuple.Tuple) tuple.Tuple {
	if pointerType.IsNull() || pointerType == ctx.types[BoxType] {
		return ctx.NewBox(v)
	}
	if ctx.TypeFlags(pointerType)&TypeFlagPointerLike == 0 {
		ctx.SignalError(TypeCheckErrorType, ctx.TypeName(pointerType)+" is not pointer-like")
	}
	cell := ctx.BasicNew(pointerType, 0)
	ctx.heap.SetSlot(cell, ctx.pointerSlot(cell), v)
	return cell
}

// pointerSlot is the slot a pointer-like value reads and writes:
// Associations hold their value in the second slot, everything else in
// the first.
func (ctx *Context) pointerSlot(p tuple.Tuple) int {
	if ctx.IsKindOfWellKnown(p, AssociationType) {
		return AssociationValue
	}
	return BoxValue
}

func (ctx *Context) checkPointer(p tuple.Tuple) {
	if !p.IsPointer() || ctx.TypeFlags(ctx.TypeOf(p))&TypeFlagPointerLike == 0 || ctx.heap.IsBytes(p) {
		ctx.SignalError(TypeCheckErrorType, ctx.PrintString(p)+" is not a pointer-like value")
	}
}

// Load dereferences a pointer-like value.
func (ctx *Context) Load(p tuple.Tuple) tuple.Tuple {
	ctx.checkPointer(p)
	return ctx.heap.Slot(p, ctx.pointerSlot(p))
}

// Store writes through a pointer-like value.
func (ctx *Context) Store(p, v tuple.Tuple) {
	ctx.checkPointer(p)
	if ctx.heap.IsImmutable(p) {
		ctx.SignalError(ModifyImmutableType, "cannot store through immutable "+ctx.TypeName(ctx.TypeOf(p)))
	}
	ctx.heap.SetSlot(p, ctx.pointerSlot(p), v)
}

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

func (ctx *Context) slotIndexValue(index tuple.Tuple) int {
	i, ok := ctx.TryDecodeInt64(index)
	if !ok {
		ctx.SignalError(TypeCheckErrorType, "slot index must be an integer")
	}
	return int(i)
}

// SlotAtValue is SlotAt with a tuple index, as used by the slotAt
// instruction.
func (ctx *Context) SlotAtValue(t, index tuple.Tuple) tuple.Tuple {
	return ctx.SlotAt(t, ctx.slotIndexValue(index))
}

// SlotAtPutValue is SlotAtPut with a tuple index.
func (ctx *Context) SlotAtPutValue(t, index, v tuple.Tuple) {
	ctx.SlotAtPut(t, ctx.slotIndexValue(index), v)
}

// ---------------------------------------------------------------------------
// Coercion and type checks
// ---------------------------------------------------------------------------

// CoerceValue converts v to typ. Integers widen or narrow into the
// fixed-width kinds and Float64, with range checks; types may install a
// coerceValueFunction called as (type, value). Failure raises
// CoercionError.
func (ctx *Context) CoerceValue(typ, v tuple.Tuple) tuple.Tuple {
	if typ.IsNull() || ctx.IsKindOf(v, typ) {
		return v
	}
	if fn := ctx.inheritedSlot(typ, TypeCoerceValueFunction); !fn.IsNull() {
		return ctx.applyLocked(fn, typ, v)
	}
	if r, ok := ctx.coerceNumber(typ, v); ok {
		return r
	}
	if v.IsNull() && ctx.TypeFlags(typ)&TypeFlagNullable != 0 {
		return v
	}
	ctx.SignalError(CoercionErrorType, "cannot coerce "+ctx.PrintString(v)+" to "+ctx.TypeName(typ))
	return tuple.Null
}

func (ctx *Context) coerceNumber(typ, v tuple.Tuple) (tuple.Tuple, bool) {
	t := ctx.types
	switch typ {
	case t[Float64Type], t[FloatType]:
		if f, ok := ctx.TryDecodeFloat64(v); ok {
			return ctx.EncodeFloat64(f), true
		}
		return tuple.Null, false
	case t[Float32Type]:
		if f, ok := ctx.TryDecodeFloat64(v); ok {
			return ctx.EncodeFloat32(float32(f)), true
		}
		return tuple.Null, false
	}
	if !ctx.IsInteger(v) {
		return tuple.Null, false
	}
	switch typ {
	case t[IntegerType], t[NumberType]:
		return v, true
	case t[Int8Type]:
		return ctx.EncodeInt8(ctx.DecodeInt8(v)), true
	case t[Int16Type]:
		return ctx.EncodeInt16(ctx.DecodeInt16(v)), true
	case t[Int32Type]:
		return ctx.EncodeInt32(ctx.DecodeInt32(v)), true
	case t[Int64Type]:
		return ctx.EncodeInt64(ctx.DecodeInt64(v)), true
	case t[UInt8Type]:
		return ctx.EncodeUInt8(ctx.DecodeUInt8(v)), true
	case t[UInt16Type]:
		return ctx.EncodeUInt16(ctx.DecodeUInt16(v)), true
	case t[UInt32Type]:
		return ctx.EncodeUInt32(ctx.DecodeUInt32(v)), true
	case t[UInt64Type]:
		return ctx.EncodeUInt64(ctx.DecodeUInt64(v)), true
	case t[SmallIntegerType]:
		if n, ok := ctx.TryDecodeInt64(v); ok && tuple.FitsImmediateSmallInteger(n) {
			return tuple.EncodeImmediateSmallInteger(n), true
		}
	}
	return tuple.Null, false
}

// TypecheckValue validates that v conforms to typ and returns it
// unchanged. Nullable types accept null; a typecheckFunction, called as
// (type, value), decides for everything else the supertype chain rejects.
func (ctx *Context) TypecheckValue(typ, v tuple.Tuple) tuple.Tuple {
	if typ.IsNull() || ctx.IsKindOf(v, typ) {
		return v
	}
	if v.IsNull() && ctx.TypeFlags(typ)&TypeFlagNullable != 0 {
		return v
	}
	if fn := ctx.inheritedSlot(typ, TypeTypecheckFunction); !fn.IsNull() {
		if !ctx.applyLocked(fn, typ, v).IsFalsy() {
			return v
		}
	}
	ctx.SignalError(TypeCheckErrorType, ctx.PrintString(v)+" is not a "+ctx.TypeName(typ))
	return tuple.Null
}
