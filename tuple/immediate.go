package tuple

import "math"

// Immediate ranges. These depend on the host word size: a 64-bit host keeps
// 60 payload bits, a 32-bit host only 28.
const (
	ImmediateIntMin  int64  = -1 << (PayloadBits - 1)
	ImmediateIntMax  int64  = 1<<(PayloadBits-1) - 1
	ImmediateUIntMax uint64 = 1<<PayloadBits - 1
)

// Float payloads drop low mantissa bits that do not fit above the tag. A
// float is immediate only when those bits are zero.
const (
	float32DroppedBits = max(0, 32-PayloadBits)
	float64DroppedBits = max(0, 64-PayloadBits)

	// Float64 immediates need a 64-bit host.
	float64Immediate = WordBits == 64
)

// HasTag reports whether t carries the given tag.
func (t Tuple) HasTag(tag Tag) bool {
	return t.Tag() == tag
}

func encodeSigned(tag Tag, n int64) Tuple {
	return Tuple(uintptr(n)<<TagBits) | Tuple(tag)
}

func decodeSigned(t Tuple) int64 {
	return int64(int(t) >> TagBits)
}

func encodeUnsigned(tag Tag, v uint64) Tuple {
	return Tuple(uintptr(v)<<TagBits) | Tuple(tag)
}

func decodeUnsigned(t Tuple) uint64 {
	return uint64(uintptr(t) >> TagBits)
}

func fitsSigned(n int64) bool {
	return n >= ImmediateIntMin && n <= ImmediateIntMax
}

func fitsUnsigned(v uint64) bool {
	return v <= ImmediateUIntMax
}

func mustHaveTag(t Tuple, tag Tag, fn string) {
	if t.Tag() != tag {
		panic(fn + ": expected " + tag.String() + ", got " + t.Tag().String())
	}
}

// ---------------------------------------------------------------------------
// SmallInteger
// ---------------------------------------------------------------------------

// FitsImmediateSmallInteger reports whether n can be a SmallInteger immediate.
func FitsImmediateSmallInteger(n int64) bool {
	return fitsSigned(n)
}

// EncodeImmediateSmallInteger encodes n. Panics if n does not fit.
func EncodeImmediateSmallInteger(n int64) Tuple {
	if !fitsSigned(n) {
		panic("EncodeImmediateSmallInteger: value out of immediate range")
	}
	return encodeSigned(TagSmallInteger, n)
}

// DecodeImmediateSmallInteger decodes a SmallInteger immediate.
func DecodeImmediateSmallInteger(t Tuple) int64 {
	mustHaveTag(t, TagSmallInteger, "DecodeImmediateSmallInteger")
	return decodeSigned(t)
}

// IsSmallInteger reports whether t is a SmallInteger immediate.
func (t Tuple) IsSmallInteger() bool {
	return t.Tag() == TagSmallInteger
}

// SmallInteger returns the value of a SmallInteger immediate.
func (t Tuple) SmallInteger() int64 {
	return DecodeImmediateSmallInteger(t)
}

// FromSmallInteger is shorthand for EncodeImmediateSmallInteger.
func FromSmallInteger(n int64) Tuple {
	return EncodeImmediateSmallInteger(n)
}

// FromIndex encodes a side-table index or count.
func FromIndex(i int) Tuple {
	return EncodeImmediateSmallInteger(int64(i))
}

// Index decodes a SmallInteger used as an index or count.
func (t Tuple) Index() int {
	return int(DecodeImmediateSmallInteger(t))
}

// ---------------------------------------------------------------------------
// Signed fixed-width integers
// ---------------------------------------------------------------------------

// EncodeImmediateInt8 encodes v. Int8 always fits.
func EncodeImmediateInt8(v int8) Tuple { return encodeSigned(TagInt8, int64(v)) }

// DecodeImmediateInt8 decodes an Int8 immediate.
func DecodeImmediateInt8(t Tuple) int8 {
	mustHaveTag(t, TagInt8, "DecodeImmediateInt8")
	return int8(decodeSigned(t))
}

// EncodeImmediateInt16 encodes v. Int16 always fits.
func EncodeImmediateInt16(v int16) Tuple { return encodeSigned(TagInt16, int64(v)) }

// DecodeImmediateInt16 decodes an Int16 immediate.
func DecodeImmediateInt16(t Tuple) int16 {
	mustHaveTag(t, TagInt16, "DecodeImmediateInt16")
	return int16(decodeSigned(t))
}

// FitsImmediateInt32 is always true on 64-bit hosts.
func FitsImmediateInt32(v int32) bool { return fitsSigned(int64(v)) }

// EncodeImmediateInt32 encodes v. Panics if v does not fit.
func EncodeImmediateInt32(v int32) Tuple {
	if !FitsImmediateInt32(v) {
		panic("EncodeImmediateInt32: value out of immediate range")
	}
	return encodeSigned(TagInt32, int64(v))
}

// DecodeImmediateInt32 decodes an Int32 immediate.
func DecodeImmediateInt32(t Tuple) int32 {
	mustHaveTag(t, TagInt32, "DecodeImmediateInt32")
	return int32(decodeSigned(t))
}

// FitsImmediateInt64 reports whether v fits in the payload.
func FitsImmediateInt64(v int64) bool { return fitsSigned(v) }

// EncodeImmediateInt64 encodes v. Panics if v does not fit.
func EncodeImmediateInt64(v int64) Tuple {
	if !fitsSigned(v) {
		panic("EncodeImmediateInt64: value out of immediate range")
	}
	return encodeSigned(TagInt64, v)
}

// DecodeImmediateInt64 decodes an Int64 immediate.
func DecodeImmediateInt64(t Tuple) int64 {
	mustHaveTag(t, TagInt64, "DecodeImmediateInt64")
	return decodeSigned(t)
}

// ---------------------------------------------------------------------------
// Unsigned fixed-width integers
// ---------------------------------------------------------------------------

// EncodeImmediateUInt8 encodes v.
func EncodeImmediateUInt8(v uint8) Tuple { return encodeUnsigned(TagUInt8, uint64(v)) }

// DecodeImmediateUInt8 decodes a UInt8 immediate.
func DecodeImmediateUInt8(t Tuple) uint8 {
	mustHaveTag(t, TagUInt8, "DecodeImmediateUInt8")
	return uint8(decodeUnsigned(t))
}

// EncodeImmediateUInt16 encodes v.
func EncodeImmediateUInt16(v uint16) Tuple { return encodeUnsigned(TagUInt16, uint64(v)) }

// DecodeImmediateUInt16 decodes a UInt16 immediate.
func DecodeImmediateUInt16(t Tuple) uint16 {
	mustHaveTag(t, TagUInt16, "DecodeImmediateUInt16")
	return uint16(decodeUnsigned(t))
}

// FitsImmediateUInt32 is always true on 64-bit hosts.
func FitsImmediateUInt32(v uint32) bool { return fitsUnsigned(uint64(v)) }

// EncodeImmediateUInt32 encodes v. Panics if v does not fit.
func EncodeImmediateUInt32(v uint32) Tuple {
	if !FitsImmediateUInt32(v) {
		panic("EncodeImmediateUInt32: value out of immediate range")
	}
	return encodeUnsigned(TagUInt32, uint64(v))
}

// DecodeImmediateUInt32 decodes a UInt32 immediate.
func DecodeImmediateUInt32(t Tuple) uint32 {
	mustHaveTag(t, TagUInt32, "DecodeImmediateUInt32")
	return uint32(decodeUnsigned(t))
}

// FitsImmediateUInt64 reports whether v fits in the payload.
func FitsImmediateUInt64(v uint64) bool { return fitsUnsigned(v) }

// EncodeImmediateUInt64 encodes v. Panics if v does not fit.
func EncodeImmediateUInt64(v uint64) Tuple {
	if !fitsUnsigned(v) {
		panic("EncodeImmediateUInt64: value out of immediate range")
	}
	return encodeUnsigned(TagUInt64, v)
}

// DecodeImmediateUInt64 decodes a UInt64 immediate.
func DecodeImmediateUInt64(t Tuple) uint64 {
	mustHaveTag(t, TagUInt64, "DecodeImmediateUInt64")
	return decodeUnsigned(t)
}

// ---------------------------------------------------------------------------
// Characters
// ---------------------------------------------------------------------------

// EncodeImmediateChar8 encodes c.
func EncodeImmediateChar8(c uint8) Tuple { return encodeUnsigned(TagChar8, uint64(c)) }

// DecodeImmediateChar8 decodes a Char8 immediate.
func DecodeImmediateChar8(t Tuple) uint8 {
	mustHaveTag(t, TagChar8, "DecodeImmediateChar8")
	return uint8(decodeUnsigned(t))
}

// EncodeImmediateChar16 encodes c.
func EncodeImmediateChar16(c uint16) Tuple { return encodeUnsigned(TagChar16, uint64(c)) }

// DecodeImmediateChar16 decodes a Char16 immediate.
func DecodeImmediateChar16(t Tuple) uint16 {
	mustHaveTag(t, TagChar16, "DecodeImmediateChar16")
	return uint16(decodeUnsigned(t))
}

// FitsImmediateChar32 is always true on 64-bit hosts.
func FitsImmediateChar32(c uint32) bool { return fitsUnsigned(uint64(c)) }

// EncodeImmediateChar32 encodes c. Panics if c does not fit.
func EncodeImmediateChar32(c uint32) Tuple {
	if !FitsImmediateChar32(c) {
		panic("EncodeImmediateChar32: value out of immediate range")
	}
	return encodeUnsigned(TagChar32, uint64(c))
}

// DecodeImmediateChar32 decodes a Char32 immediate.
func DecodeImmediateChar32(t Tuple) uint32 {
	mustHaveTag(t, TagChar32, "DecodeImmediateChar32")
	return uint32(decodeUnsigned(t))
}

// ---------------------------------------------------------------------------
// Floats
// ---------------------------------------------------------------------------

// FitsImmediateFloat32 reports whether f keeps all of its bits as an
// immediate.
func FitsImmediateFloat32(f float32) bool {
	b := uint64(math.Float32bits(f))
	return b&(1<<float32DroppedBits-1) == 0
}

// EncodeImmediateFloat32 encodes f. Panics if f does not fit.
func EncodeImmediateFloat32(f float32) Tuple {
	if !FitsImmediateFloat32(f) {
		panic("EncodeImmediateFloat32: value not representable as immediate")
	}
	return encodeUnsigned(TagFloat32, uint64(math.Float32bits(f))>>float32DroppedBits)
}

// DecodeImmediateFloat32 decodes a Float32 immediate.
func DecodeImmediateFloat32(t Tuple) float32 {
	mustHaveTag(t, TagFloat32, "DecodeImmediateFloat32")
	return math.Float32frombits(uint32(decodeUnsigned(t) << float32DroppedBits))
}

// FitsImmediateFloat64 reports whether f can be stored immediately: the host
// must be 64-bit and the low mantissa bits shifted out must be zero.
func FitsImmediateFloat64(f float64) bool {
	if !float64Immediate {
		return false
	}
	return math.Float64bits(f)&(1<<float64DroppedBits-1) == 0
}

// EncodeImmediateFloat64 encodes f. Panics if f does not fit.
func EncodeImmediateFloat64(f float64) Tuple {
	if !FitsImmediateFloat64(f) {
		panic("EncodeImmediateFloat64: value not representable as immediate")
	}
	return encodeUnsigned(TagFloat64, math.Float64bits(f)>>float64DroppedBits)
}

// DecodeImmediateFloat64 decodes a Float64 immediate.
func DecodeImmediateFloat64(t Tuple) float64 {
	mustHaveTag(t, TagFloat64, "DecodeImmediateFloat64")
	return math.Float64frombits(decodeUnsigned(t) << float64DroppedBits)
}
