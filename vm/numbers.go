package vm

import (
	"encoding/binary"
	"math"

	"github.com/chazu/tuuvm/bigint"
	"github.com/chazu/tuuvm/tuple"
)

// Numbers that do not fit an immediate live on the heap: integers as
// LargePositiveInteger/LargeNegativeInteger byte tuples holding the
// little-endian magnitude, floats and wide characters as byte tuples of
// their fixed-width type holding the raw little-endian bits.

// ---------------------------------------------------------------------------
// Integers
// ---------------------------------------------------------------------------

// NewInteger returns the canonical generic integer for n: a SmallInteger
// when it fits, a large integer otherwise.
func (ctx *Context) NewInteger(n int64) tuple.Tuple {
	if tuple.FitsImmediateSmallInteger(n) {
		return tuple.EncodeImmediateSmallInteger(n)
	}
	return ctx.newLargeInteger(bigint.FromInt64(n))
}

// EncodeInteger returns the canonical generic integer for x.
func (ctx *Context) EncodeInteger(x bigint.Int) tuple.Tuple {
	if n, ok := x.Int64(); ok && tuple.FitsImmediateSmallInteger(n) {
		return tuple.EncodeImmediateSmallInteger(n)
	}
	return ctx.newLargeInteger(x)
}

func (ctx *Context) newLargeInteger(x bigint.Int) tuple.Tuple {
	typ := ctx.types[LargePositiveIntegerType]
	if x.Negative {
		typ = ctx.types[LargeNegativeIntegerType]
	}
	mag := x.Bytes()
	t := ctx.heap.AllocateByteTuple(typ, len(mag))
	copy(ctx.heap.Payload(t), mag)
	ctx.heap.MarkImmutable(t)
	return t
}

// IsLargeInteger reports whether t is a heap integer.
func (ctx *Context) IsLargeInteger(t tuple.Tuple) bool {
	if !t.IsPointer() {
		return false
	}
	typ := ctx.heap.Type(t)
	return typ == ctx.types[LargePositiveIntegerType] || typ == ctx.types[LargeNegativeIntegerType]
}

// IsInteger reports whether t is any integer kind.
func (ctx *Context) IsInteger(t tuple.Tuple) bool {
	switch t.Tag() {
	case tuple.TagSmallInteger, tuple.TagInt8, tuple.TagInt16, tuple.TagInt32, tuple.TagInt64,
		tuple.TagUInt8, tuple.TagUInt16, tuple.TagUInt32, tuple.TagUInt64:
		return true
	case tuple.TagPointer:
		return ctx.IsLargeInteger(t)
	}
	return false
}

// IntegerValue decodes any integer kind.
func (ctx *Context) IntegerValue(t tuple.Tuple) (bigint.Int, bool) {
	switch t.Tag() {
	case tuple.TagSmallInteger, tuple.TagInt8, tuple.TagInt16, tuple.TagInt32, tuple.TagInt64:
		return bigint.FromInt64(t.SignedPayload()), true
	case tuple.TagUInt8, tuple.TagUInt16, tuple.TagUInt32, tuple.TagUInt64:
		return bigint.FromUint64(uint64(t.Payload())), true
	case tuple.TagPointer:
		if !ctx.IsLargeInteger(t) {
			return bigint.Int{}, false
		}
		negative := ctx.heap.Type(t) == ctx.types[LargeNegativeIntegerType]
		return bigint.FromBytes(negative, ctx.heap.Payload(t)), true
	}
	return bigint.Int{}, false
}

// TryDecodeInt64 decodes any integer kind that fits an int64.
func (ctx *Context) TryDecodeInt64(t tuple.Tuple) (int64, bool) {
	switch t.Tag() {
	case tuple.TagSmallInteger, tuple.TagInt8, tuple.TagInt16, tuple.TagInt32, tuple.TagInt64:
		return t.SignedPayload(), true
	}
	x, ok := ctx.IntegerValue(t)
	if !ok {
		return 0, false
	}
	return x.Int64()
}

// TryDecodeUInt64 decodes any non-negative integer kind that fits a
// uint64.
func (ctx *Context) TryDecodeUInt64(t tuple.Tuple) (uint64, bool) {
	x, ok := ctx.IntegerValue(t)
	if !ok {
		return 0, false
	}
	return x.Uint64()
}

func (ctx *Context) coercionFailed(t tuple.Tuple, kind string) {
	ctx.SignalError(CoercionErrorType, "cannot decode "+ctx.PrintString(t)+" as "+kind)
}

// ---------------------------------------------------------------------------
// Fixed-width encode/decode
// ---------------------------------------------------------------------------

// EncodeInt64 encodes n, immediately when it fits the host payload.
func (ctx *Context) EncodeInt64(n int64) tuple.Tuple {
	if tuple.FitsImmediateInt64(n) {
		return tuple.EncodeImmediateInt64(n)
	}
	return ctx.newLargeInteger(bigint.FromInt64(n))
}

// DecodeInt64 decodes any integer in int64 range; anything else raises
// CoercionError.
func (ctx *Context) DecodeInt64(t tuple.Tuple) int64 {
	n, ok := ctx.TryDecodeInt64(t)
	if !ok {
		ctx.coercionFailed(t, "Int64")
	}
	return n
}

// EncodeUInt64 encodes v, immediately when it fits the host payload.
func (ctx *Context) EncodeUInt64(v uint64) tuple.Tuple {
	if tuple.FitsImmediateUInt64(v) {
		return tuple.EncodeImmediateUInt64(v)
	}
	return ctx.newLargeInteger(bigint.FromUint64(v))
}

// DecodeUInt64 decodes any integer in uint64 range.
func (ctx *Context) DecodeUInt64(t tuple.Tuple) uint64 {
	v, ok := ctx.TryDecodeUInt64(t)
	if !ok {
		ctx.coercionFailed(t, "UInt64")
	}
	return v
}

// EncodeInt32 encodes n. Only 32-bit hosts need the heap form.
func (ctx *Context) EncodeInt32(n int32) tuple.Tuple {
	if tuple.FitsImmediateInt32(n) {
		return tuple.EncodeImmediateInt32(n)
	}
	return ctx.newLargeInteger(bigint.FromInt64(int64(n)))
}

// DecodeInt32 decodes any integer in int32 range.
func (ctx *Context) DecodeInt32(t tuple.Tuple) int32 {
	n, ok := ctx.TryDecodeInt64(t)
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		ctx.coercionFailed(t, "Int32")
	}
	return int32(n)
}

// EncodeUInt32 encodes v. Only 32-bit hosts need the heap form.
func (ctx *Context) EncodeUInt32(v uint32) tuple.Tuple {
	if tuple.FitsImmediateUInt32(v) {
		return tuple.EncodeImmediateUInt32(v)
	}
	return ctx.newLargeInteger(bigint.FromUint64(uint64(v)))
}

// DecodeUInt32 decodes any integer in uint32 range.
func (ctx *Context) DecodeUInt32(t tuple.Tuple) uint32 {
	v, ok := ctx.TryDecodeUInt64(t)
	if !ok || v > math.MaxUint32 {
		ctx.coercionFailed(t, "UInt32")
	}
	return uint32(v)
}

// EncodeInt16 always yields an immediate.
func (ctx *Context) EncodeInt16(n int16) tuple.Tuple { return tuple.EncodeImmediateInt16(n) }

// DecodeInt16 decodes any integer in int16 range.
func (ctx *Context) DecodeInt16(t tuple.Tuple) int16 {
	n, ok := ctx.TryDecodeInt64(t)
	if !ok || n < math.MinInt16 || n > math.MaxInt16 {
		ctx.coercionFailed(t, "Int16")
	}
	return int16(n)
}

// EncodeUInt16 always yields an immediate.
func (ctx *Context) EncodeUInt16(v uint16) tuple.Tuple { return tuple.EncodeImmediateUInt16(v) }

// DecodeUInt16 decodes any integer in uint16 range.
func (ctx *Context) DecodeUInt16(t tuple.Tuple) uint16 {
	v, ok := ctx.TryDecodeUInt64(t)
	if !ok || v > math.MaxUint16 {
		ctx.coercionFailed(t, "UInt16")
	}
	return uint16(v)
}

// EncodeInt8 always yields an immediate.
func (ctx *Context) EncodeInt8(n int8) tuple.Tuple { return tuple.EncodeImmediateInt8(n) }

// DecodeInt8 decodes any integer in int8 range.
func (ctx *Context) DecodeInt8(t tuple.Tuple) int8 {
	n, ok := ctx.TryDecodeInt64(t)
	if !ok || n < math.MinInt8 || n > math.MaxInt8 {
		ctx.coercionFailed(t, "Int8")
	}
	return int8(n)
}

// EncodeUInt8 always yields an immediate.
func (ctx *Context) EncodeUInt8(v uint8) tuple.Tuple { return tuple.EncodeImmediateUInt8(v) }

// DecodeUInt8 decodes any integer in uint8 range.
func (ctx *Context) DecodeUInt8(t tuple.Tuple) uint8 {
	v, ok := ctx.TryDecodeUInt64(t)
	if !ok || v > math.MaxUint8 {
		ctx.coercionFailed(t, "UInt8")
	}
	return uint8(v)
}

// ---------------------------------------------------------------------------
// Characters
// ---------------------------------------------------------------------------

// EncodeChar8 always yields an immediate.
func (ctx *Context) EncodeChar8(c uint8) tuple.Tuple { return tuple.EncodeImmediateChar8(c) }

// EncodeChar16 always yields an immediate.
func (ctx *Context) EncodeChar16(c uint16) tuple.Tuple { return tuple.EncodeImmediateChar16(c) }

// EncodeChar32 encodes c, boxing it on hosts whose payload is too narrow.
func (ctx *Context) EncodeChar32(c uint32) tuple.Tuple {
	if tuple.FitsImmediateChar32(c) {
		return tuple.EncodeImmediateChar32(c)
	}
	t := ctx.heap.AllocateByteTuple(ctx.types[Char32Type], 4)
	binary.LittleEndian.PutUint32(ctx.heap.Payload(t), c)
	ctx.heap.MarkImmutable(t)
	return t
}

// DecodeChar32 decodes any character kind.
func (ctx *Context) DecodeChar32(t tuple.Tuple) uint32 {
	switch t.Tag() {
	case tuple.TagChar8, tuple.TagChar16, tuple.TagChar32:
		return uint32(t.Payload())
	case tuple.TagPointer:
		if t.IsPointer() && ctx.heap.Type(t) == ctx.types[Char32Type] {
			return binary.LittleEndian.Uint32(ctx.heap.Payload(t))
		}
	}
	ctx.coercionFailed(t, "Char32")
	return 0
}

// ---------------------------------------------------------------------------
// Floats
// ---------------------------------------------------------------------------

// EncodeFloat64 encodes f, boxing it when its low mantissa bits would be
// lost.
func (ctx *Context) EncodeFloat64(f float64) tuple.Tuple {
	if tuple.FitsImmediateFloat64(f) {
		return tuple.EncodeImmediateFloat64(f)
	}
	t := ctx.heap.AllocateByteTuple(ctx.types[Float64Type], 8)
	binary.LittleEndian.PutUint64(ctx.heap.Payload(t), math.Float64bits(f))
	ctx.heap.MarkImmutable(t)
	return t
}

// EncodeFloat32 encodes f, boxing it when its low mantissa bits would be
// lost.
func (ctx *Context) EncodeFloat32(f float32) tuple.Tuple {
	if tuple.FitsImmediateFloat32(f) {
		return tuple.EncodeImmediateFloat32(f)
	}
	t := ctx.heap.AllocateByteTuple(ctx.types[Float32Type], 4)
	binary.LittleEndian.PutUint32(ctx.heap.Payload(t), math.Float32bits(f))
	ctx.heap.MarkImmutable(t)
	return t
}

// IsFloat reports whether t is a Float32 or Float64, immediate or boxed.
func (ctx *Context) IsFloat(t tuple.Tuple) bool {
	switch t.Tag() {
	case tuple.TagFloat32, tuple.TagFloat64:
		return true
	case tuple.TagPointer:
		if t.IsPointer() {
			typ := ctx.heap.Type(t)
			return typ == ctx.types[Float64Type] || typ == ctx.types[Float32Type]
		}
	}
	return false
}

// TryDecodeFloat64 decodes floats and integers as a float64.
func (ctx *Context) TryDecodeFloat64(t tuple.Tuple) (float64, bool) {
	switch t.Tag() {
	case tuple.TagFloat64:
		return tuple.DecodeImmediateFloat64(t), true
	case tuple.TagFloat32:
		return float64(tuple.DecodeImmediateFloat32(t)), true
	case tuple.TagPointer:
		if t.IsPointer() {
			switch ctx.heap.Type(t) {
			case ctx.types[Float64Type]:
				return math.Float64frombits(binary.LittleEndian.Uint64(ctx.heap.Payload(t))), true
			case ctx.types[Float32Type]:
				return float64(math.Float32frombits(binary.LittleEndian.Uint32(ctx.heap.Payload(t)))), true
			}
		}
	}
	if n, ok := ctx.TryDecodeInt64(t); ok {
		return float64(n), true
	}
	return 0, false
}

// DecodeFloat64 decodes any float or integer as a float64.
func (ctx *Context) DecodeFloat64(t tuple.Tuple) float64 {
	f, ok := ctx.TryDecodeFloat64(t)
	if !ok {
		ctx.coercionFailed(t, "Float64")
	}
	return f
}

// DecodeFloat32 decodes any float or integer as a float32.
func (ctx *Context) DecodeFloat32(t tuple.Tuple) float32 {
	return float32(ctx.DecodeFloat64(t))
}
