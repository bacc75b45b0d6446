package vm

import (
	"hash/fnv"
	"math"

	"github.com/chazu/tuuvm/tuple"
)

// Equals compares a and b with the equalsFunction of a's type, falling
// back to identity. User equality functions run with the GC locked.
func (ctx *Context) Equals(a, b tuple.Tuple) bool {
	if a == b {
		return true
	}
	fn := ctx.inheritedSlot(ctx.TypeOf(a), TypeEqualsFunction)
	if fn.IsNull() {
		return false
	}
	return !ctx.applyLocked(fn, a, b).IsFalsy()
}

// Hash returns the hash of a from its type's hashFunction, or the identity
// hash.
func (ctx *Context) Hash(a tuple.Tuple) uintptr {
	fn := ctx.inheritedSlot(ctx.TypeOf(a), TypeHashFunction)
	if fn.IsNull() {
		return ctx.IdentityHash(a)
	}
	r := ctx.applyLocked(fn, a)
	if n, ok := ctx.TryDecodeInt64(r); ok {
		return uintptr(n)
	}
	return ctx.IdentityHash(r)
}

// IdentityHash is the header hash of heap tuples and a mix of the word for
// immediates.
func (ctx *Context) IdentityHash(a tuple.Tuple) uintptr {
	if a.IsPointer() {
		return ctx.heap.IdentityHash(a)
	}
	return mixWord(uintptr(a))
}

func mixWord(x uintptr) uintptr {
	v := uint64(x)
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	return uintptr(v)
}

// hashMask keeps hash values inside the SmallInteger range.
const hashMask = 1<<(tuple.PayloadBits-2) - 1

func (ctx *Context) applyLocked(fn tuple.Tuple, args ...tuple.Tuple) tuple.Tuple {
	ctx.GCLock()
	defer ctx.GCUnlock()
	return ctx.FunctionApply(fn, args, 0)
}

// ---------------------------------------------------------------------------
// Built-in equality and hash functions
// ---------------------------------------------------------------------------

func primIdentityEquals(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	return tuple.FromBool(args[0] == args[1])
}

func primIdentityHash(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	return ctx.NewInteger(int64(ctx.IdentityHash(args[0]) & hashMask))
}

func primStringEquals(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	a, b := args[0], args[1]
	if !ctx.IsString(b) || ctx.IsSymbol(b) {
		return tuple.False
	}
	return tuple.FromBool(ctx.StringValue(a) == ctx.StringValue(b))
}

func bytesHash(b []byte) int64 {
	h := fnv.New64a()
	h.Write(b)
	return int64(h.Sum64() >> 4)
}

func primStringHash(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	return ctx.NewInteger(bytesHash(ctx.heap.Payload(args[0])) & hashMask)
}

func primIntegerEquals(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	a, ok1 := ctx.IntegerValue(args[0])
	b, ok2 := ctx.IntegerValue(args[1])
	return tuple.FromBool(ok1 && ok2 && a.Cmp(b) == 0)
}

func primIntegerHash(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	if n, ok := ctx.TryDecodeInt64(args[0]); ok {
		return ctx.NewInteger(int64(mixWord(uintptr(n)) & hashMask))
	}
	x, _ := ctx.IntegerValue(args[0])
	return ctx.NewInteger(bytesHash(x.Bytes()) & hashMask)
}

func primFloatEquals(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	if !ctx.IsFloat(args[1]) {
		return tuple.False
	}
	return tuple.FromBool(ctx.DecodeFloat64(args[0]) == ctx.DecodeFloat64(args[1]))
}

func primFloatHash(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	f := ctx.DecodeFloat64(args[0])
	if f == float64(int64(f)) {
		return ctx.NewInteger(int64(mixWord(uintptr(int64(f))) & hashMask))
	}
	return ctx.NewInteger(int64(mixWord(uintptr(math.Float64bits(f))) & hashMask))
}

func primArrayEquals(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	a, b := args[0], args[1]
	if !b.IsPointer() || ctx.TypeOf(a) != ctx.TypeOf(b) {
		return tuple.False
	}
	n := ctx.heap.SlotCount(a)
	if n != ctx.heap.SlotCount(b) {
		return tuple.False
	}
	for i := range n {
		if !ctx.Equals(ctx.heap.Slot(a, i), ctx.heap.Slot(b, i)) {
			return tuple.False
		}
	}
	return tuple.True
}

func primArrayHash(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	a := args[0]
	h := uintptr(ctx.heap.SlotCount(a))
	for i := range ctx.heap.SlotCount(a) {
		h = h*31 + ctx.Hash(ctx.heap.Slot(a, i))
	}
	return ctx.NewInteger(int64(mixWord(h) & hashMask))
}

func primAssociationEquals(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	a, b := args[0], args[1]
	if !ctx.IsKindOfWellKnown(b, AssociationType) {
		return tuple.False
	}
	return tuple.FromBool(
		ctx.Equals(ctx.heap.Slot(a, AssociationKey), ctx.heap.Slot(b, AssociationKey)) &&
			ctx.Equals(ctx.heap.Slot(a, AssociationValue), ctx.heap.Slot(b, AssociationValue)))
}

func primAssociationHash(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	return ctx.NewInteger(int64(ctx.Hash(ctx.heap.Slot(args[0], AssociationKey)) & hashMask))
}
