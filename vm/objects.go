package vm

import (
	"strconv"

	"github.com/chazu/tuuvm/ast"
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Strings and symbols
// ---------------------------------------------------------------------------

// NewString allocates a String.
func (ctx *Context) NewString(s string) tuple.Tuple {
	t := ctx.heap.AllocateByteTuple(ctx.types[StringType], len(s))
	copy(ctx.heap.Payload(t), s)
	return t
}

// StringValue returns the bytes of a String, Symbol or ByteArray as a Go
// string.
func (ctx *Context) StringValue(t tuple.Tuple) string {
	if !t.IsPointer() || !ctx.heap.IsBytes(t) {
		return ""
	}
	return string(ctx.heap.Payload(t))
}

// Intern returns the unique Symbol named name.
func (ctx *Context) Intern(name string) tuple.Tuple {
	if i, ok := ctx.symbolIndex[name]; ok {
		if s := ctx.symbols[i]; !s.IsNull() {
			return s
		}
	}
	s := ctx.heap.AllocateByteTuple(ctx.types[SymbolType], len(name))
	copy(ctx.heap.Payload(s), name)
	ctx.heap.MarkImmutable(s)
	ctx.symbolIndex[name] = len(ctx.symbols)
	ctx.symbols = append(ctx.symbols, s)
	return s
}

// LookupSymbol returns the interned symbol without creating it.
func (ctx *Context) LookupSymbol(name string) (tuple.Tuple, bool) {
	i, ok := ctx.symbolIndex[name]
	if !ok || ctx.symbols[i].IsNull() {
		return tuple.Null, false
	}
	return ctx.symbols[i], true
}

// SymbolCount returns the number of live interned symbols.
func (ctx *Context) SymbolCount() int {
	return len(ctx.symbolIndex)
}

// IsSymbol reports whether t is a Symbol.
func (ctx *Context) IsSymbol(t tuple.Tuple) bool {
	return t.IsPointer() && ctx.heap.Type(t) == ctx.types[SymbolType]
}

// IsString reports whether t is a String or a Symbol.
func (ctx *Context) IsString(t tuple.Tuple) bool {
	return t.IsPointer() && ctx.IsKindOf(t, ctx.types[StringType])
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// NewArray allocates an Array holding elements.
func (ctx *Context) NewArray(elements ...tuple.Tuple) tuple.Tuple {
	a := ctx.heap.AllocatePointerTuple(ctx.types[ArrayType], len(elements))
	for i, e := range elements {
		ctx.heap.SetSlot(a, i, e)
	}
	return a
}

// NewWeakArray allocates a WeakArray whose elements do not keep their
// referents alive.
func (ctx *Context) NewWeakArray(elements ...tuple.Tuple) tuple.Tuple {
	a := ctx.heap.AllocatePointerTuple(ctx.types[WeakArrayType], len(elements))
	ctx.heap.MarkWeakObject(a)
	for i, e := range elements {
		ctx.heap.SetSlot(a, i, e)
	}
	return a
}

// NewByteArray allocates a ByteArray holding a copy of b.
func (ctx *Context) NewByteArray(b []byte) tuple.Tuple {
	t := ctx.heap.AllocateByteTuple(ctx.types[ByteArrayType], len(b))
	copy(ctx.heap.Payload(t), b)
	return t
}

// ArrayElements copies the slots of a pointer tuple.
func (ctx *Context) ArrayElements(a tuple.Tuple) []tuple.Tuple {
	if !a.IsPointer() || ctx.heap.IsBytes(a) {
		return nil
	}
	n := ctx.heap.SlotCount(a)
	out := make([]tuple.Tuple, n)
	for i := range n {
		out[i] = ctx.heap.Slot(a, i)
	}
	return out
}

// ---------------------------------------------------------------------------
// Associations, boxes, source positions
// ---------------------------------------------------------------------------

// NewAssociation allocates key -> value.
func (ctx *Context) NewAssociation(key, value tuple.Tuple) tuple.Tuple {
	a := ctx.heap.AllocatePointerTuple(ctx.types[AssociationType], AssociationSlotCount)
	ctx.heap.SetSlot(a, AssociationKey, key)
	ctx.heap.SetSlot(a, AssociationValue, value)
	return a
}

// NewBox allocates a Box holding value.
func (ctx *Context) NewBox(value tuple.Tuple) tuple.Tuple {
	b := ctx.heap.AllocatePointerTuple(ctx.types[BoxType], BoxSlotCount)
	ctx.heap.SetSlot(b, BoxValue, value)
	return b
}

// NewSourcePosition allocates a SourcePosition for p.
func (ctx *Context) NewSourcePosition(p ast.Position) tuple.Tuple {
	sp := ctx.heap.AllocatePointerTuple(ctx.types[SourcePositionType], SourcePositionSlotCount)
	if p.File != "" {
		ctx.heap.SetSlot(sp, SourcePositionFile, ctx.NewString(p.File))
	}
	ctx.heap.SetSlot(sp, SourcePositionLine, tuple.FromIndex(p.Line))
	ctx.heap.SetSlot(sp, SourcePositionColumn, tuple.FromIndex(p.Column))
	return sp
}

// SourcePositionValue decodes a SourcePosition tuple.
func (ctx *Context) SourcePositionValue(sp tuple.Tuple) ast.Position {
	if !sp.IsPointer() {
		return ast.Position{}
	}
	return ast.Position{
		File:   ctx.StringValue(ctx.heap.Slot(sp, SourcePositionFile)),
		Line:   ctx.heap.Slot(sp, SourcePositionLine).Index(),
		Column: ctx.heap.Slot(sp, SourcePositionColumn).Index(),
	}
}

// ---------------------------------------------------------------------------
// Checked slot access
// ---------------------------------------------------------------------------

func (ctx *Context) checkSlotIndex(t tuple.Tuple, index int, write bool) {
	if !t.IsPointer() {
		if write {
			ctx.SignalError(ModifyImmutableType, "cannot modify immediate "+ctx.PrintString(t))
		}
		ctx.SignalError(IndexOutOfBoundsType, "immediate values have no slots")
	}
	if ctx.heap.IsBytes(t) {
		if index < 0 || index >= ctx.heap.Size(t) {
			ctx.signalIndexOutOfBounds(t, index)
		}
	} else if index < 0 || index >= ctx.heap.SlotCount(t) {
		ctx.signalIndexOutOfBounds(t, index)
	}
	if ctx.heap.IsDummyValue(t) {
		ctx.SignalError(AccessDummyValueType, "access to dummy value")
	}
	if write && ctx.heap.IsImmutable(t) {
		ctx.SignalError(ModifyImmutableType, "cannot modify immutable "+ctx.TypeName(ctx.TypeOf(t)))
	}
}

func (ctx *Context) signalIndexOutOfBounds(t tuple.Tuple, index int) {
	ctx.SignalError(IndexOutOfBoundsType, "index "+strconv.Itoa(index)+" out of bounds for "+ctx.TypeName(ctx.TypeOf(t)))
}

// SlotAt reads slot index of t. Byte tuples yield UInt8 values. Violations
// raise signaled errors.
func (ctx *Context) SlotAt(t tuple.Tuple, index int) tuple.Tuple {
	ctx.checkSlotIndex(t, index, false)
	if ctx.heap.IsBytes(t) {
		return tuple.EncodeImmediateUInt8(ctx.heap.Payload(t)[index])
	}
	return ctx.heap.Slot(t, index)
}

// SlotAtPut writes slot index of t.
func (ctx *Context) SlotAtPut(t tuple.Tuple, index int, v tuple.Tuple) {
	ctx.checkSlotIndex(t, index, true)
	if ctx.heap.IsBytes(t) {
		b, ok := ctx.TryDecodeUInt64(v)
		if !ok || b > 0xFF {
			ctx.SignalError(CoercionErrorType, "byte value expected")
		}
		ctx.heap.Payload(t)[index] = byte(b)
		return
	}
	ctx.heap.SetSlot(t, index, v)
}
