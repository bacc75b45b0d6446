// Package tuple implements the word-sized value representation used by
// every part of the VM.
//
// A Tuple is a machine word. Its low four bits are a tag:
//   - 0: heap pointer (a virtual address into the heap arena), or the null
//     value when the whole word is zero
//   - 1..14: immediate payload kinds (small integer, fixed-width integers,
//     characters and floats), payload stored in the remaining high bits
//   - 15: trivial immediates (false, true, void and internal markers)
package tuple

import (
	"fmt"
	"math/bits"
)

// Tuple is the universal value handle.
type Tuple uintptr

// Tag selects the interpretation of a Tuple's payload.
type Tag uint8

// Tag values.
const (
	TagPointer Tag = iota
	TagSmallInteger
	TagInt8
	TagInt16
	TagInt32
	TagInt64
	TagUInt8
	TagUInt16
	TagUInt32
	TagUInt64
	TagChar8
	TagChar16
	TagChar32
	TagFloat32
	TagFloat64
	TagTrivial
)

// TagCount is the number of distinct tags.
const TagCount = 16

// Word geometry. Everything that decides whether a value fits in an
// immediate is derived from the host pointer width.
const (
	TagBits     = 4
	TagMask     = Tuple(1<<TagBits - 1)
	WordBits    = bits.UintSize
	WordSize    = WordBits / 8
	PayloadBits = WordBits - TagBits
)

// Trivial immediate indices, packed above the tag.
const (
	TrivialFalse uint = iota
	TrivialTrue
	TrivialVoid
	TrivialHashtableEmpty
	TrivialTombstone
	TrivialPendingMemoization
	TrivialCount
)

// Well-known values.
const (
	Null                     Tuple = 0
	False                    Tuple = Tuple(TrivialFalse)<<TagBits | Tuple(TagTrivial)
	True                     Tuple = Tuple(TrivialTrue)<<TagBits | Tuple(TagTrivial)
	Void                     Tuple = Tuple(TrivialVoid)<<TagBits | Tuple(TagTrivial)
	HashtableEmpty           Tuple = Tuple(TrivialHashtableEmpty)<<TagBits | Tuple(TagTrivial)
	Tombstone                Tuple = Tuple(TrivialTombstone)<<TagBits | Tuple(TagTrivial)
	PendingMemoizationMarker Tuple = Tuple(TrivialPendingMemoization)<<TagBits | Tuple(TagTrivial)
)

var tagNames = [TagCount]string{
	"pointer", "SmallInteger", "Int8", "Int16", "Int32", "Int64",
	"UInt8", "UInt16", "UInt32", "UInt64", "Char8", "Char16", "Char32",
	"Float32", "Float64", "trivial",
}

var trivialNames = [TrivialCount]string{
	"false", "true", "void", "<empty>", "<tombstone>", "<pending>",
}

// String returns the tag name.
func (tag Tag) String() string {
	if int(tag) < len(tagNames) {
		return tagNames[tag]
	}
	return fmt.Sprintf("tag(%d)", uint8(tag))
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// Tag returns the low tag bits of t.
func (t Tuple) Tag() Tag {
	return Tag(t & TagMask)
}

// IsNull reports whether t is the null value.
func (t Tuple) IsNull() bool {
	return t == Null
}

// IsImmediate reports whether t is encoded entirely in its own bits.
func (t Tuple) IsImmediate() bool {
	return t&TagMask != 0
}

// IsPointer reports whether t references a heap object.
func (t Tuple) IsPointer() bool {
	return t != Null && t&TagMask == 0
}

// IsNullOrPointer reports whether t has the pointer tag, including null.
func (t Tuple) IsNullOrPointer() bool {
	return t&TagMask == 0
}

// IsTrivial reports whether t is one of the trivial immediates.
func (t Tuple) IsTrivial() bool {
	return t.Tag() == TagTrivial
}

// TrivialIndex returns the trivial index of t.
// Panics if t is not a trivial immediate.
func (t Tuple) TrivialIndex() uint {
	if !t.IsTrivial() {
		panic("Tuple.TrivialIndex: not a trivial immediate")
	}
	return uint(t >> TagBits)
}

// IsDummyMarker reports whether t is an internal hashtable or memoization
// marker that must never escape into user-visible values.
func (t Tuple) IsDummyMarker() bool {
	return t == HashtableEmpty || t == Tombstone || t == PendingMemoizationMarker
}

// Payload returns the raw unsigned payload bits of an immediate.
func (t Tuple) Payload() uintptr {
	return uintptr(t) >> TagBits
}

// SignedPayload returns the sign-extended payload of an immediate.
func (t Tuple) SignedPayload() int64 {
	return int64(int(t) >> TagBits)
}

// IdentityEquals is word equality.
func IdentityEquals(a, b Tuple) bool {
	return a == b
}

// ---------------------------------------------------------------------------
// Booleans
// ---------------------------------------------------------------------------

// FromBool encodes a Go bool.
func FromBool(b bool) Tuple {
	if b {
		return True
	}
	return False
}

// IsBool reports whether t is true or false.
func (t Tuple) IsBool() bool {
	return t == True || t == False
}

// IsTrue reports whether t is the true value.
func (t Tuple) IsTrue() bool {
	return t == True
}

// IsFalse reports whether t is the false value.
func (t Tuple) IsFalse() bool {
	return t == False
}

// Bool returns t as a Go bool.
// Panics if t is not a boolean.
func (t Tuple) Bool() bool {
	switch t {
	case True:
		return true
	case False:
		return false
	default:
		panic("Tuple.Bool: not a boolean")
	}
}

// IsFalsy reports whether t makes a conditional jump take its false branch.
// Only false, null and void are falsy.
func (t Tuple) IsFalsy() bool {
	return t == False || t == Null || t == Void
}

// ---------------------------------------------------------------------------
// Debugging
// ---------------------------------------------------------------------------

// String renders t for diagnostics. Heap pointers are shown as addresses
// because resolving them needs a heap.
func (t Tuple) String() string {
	switch t.Tag() {
	case TagPointer:
		if t == Null {
			return "nil"
		}
		return fmt.Sprintf("@%#x", uintptr(t))
	case TagTrivial:
		idx := t.TrivialIndex()
		if idx < TrivialCount {
			return trivialNames[idx]
		}
		return fmt.Sprintf("trivial(%d)", idx)
	case TagSmallInteger, TagInt8, TagInt16, TagInt32, TagInt64:
		return fmt.Sprintf("%d", t.SignedPayload())
	case TagUInt8, TagUInt16, TagUInt32, TagUInt64:
		return fmt.Sprintf("%du", uint64(t.Payload()))
	case TagChar8, TagChar16, TagChar32:
		return fmt.Sprintf("%q", rune(t.Payload()))
	case TagFloat32:
		return fmt.Sprintf("%gf", DecodeImmediateFloat32(t))
	case TagFloat64:
		return fmt.Sprintf("%g", DecodeImmediateFloat64(t))
	}
	return fmt.Sprintf("tuple(%#x)", uintptr(t))
}
