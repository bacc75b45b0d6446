package vm

import (
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Collection Primitives
// ---------------------------------------------------------------------------

// Collections index from 1. Primitives that call back into code reread
// their receiver from args on every step, since args is rooted by the
// activation and a callback may move the collection.

// basicSize is the element count of a pointer or byte tuple.
func (ctx *Context) basicSize(t tuple.Tuple) int {
	if !t.IsPointer() {
		return 0
	}
	if ctx.heap.IsBytes(t) {
		return ctx.heap.Size(t)
	}
	return ctx.heap.SlotCount(t)
}

// elementIndex converts a 1-based index argument to a slot index, raising
// IndexOutOfBounds when it is outside coll.
func (ctx *Context) elementIndex(coll, index tuple.Tuple) int {
	i := ctx.intArg(index, "index")
	if i < 1 || i > int64(ctx.basicSize(coll)) {
		ctx.signalIndexOutOfBounds(coll, int(i))
	}
	return int(i - 1)
}

func registerCollectionPrimitives() {
	registerArrayPrimitives()
	registerStringPrimitives()
	registerDictionaryPrimitives()
	registerAssociationPrimitives()
}

func registerArrayPrimitives() {
	defineMethod(ArrayType, "size", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewInteger(int64(ctx.basicSize(args[0])))
	})

	defineMethod(ArrayType, "at:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.SlotAt(args[0], ctx.elementIndex(args[0], args[1]))
	})

	defineMethod(ArrayType, "at:put:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.SlotAtPut(args[0], ctx.elementIndex(args[0], args[1]), args[2])
		return args[2]
	})

	defineMethod(ArrayType, "isEmpty", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.basicSize(args[0]) == 0)
	})

	defineMethod(ArrayType, "first", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.SlotAt(args[0], 0)
	})

	defineMethod(ArrayType, "last", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.SlotAt(args[0], ctx.basicSize(args[0])-1)
	})

	defineMethod(ArrayType, "includes:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		for i := 0; i < ctx.basicSize(args[0]); i++ {
			if ctx.Equals(ctx.heap.Slot(args[0], i), args[1]) {
				return tuple.True
			}
		}
		return tuple.False
	})

	defineMethod(ArrayType, "indexOf:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		for i := 0; i < ctx.basicSize(args[0]); i++ {
			if ctx.Equals(ctx.heap.Slot(args[0], i), args[1]) {
				return ctx.NewInteger(int64(i + 1))
			}
		}
		return ctx.NewInteger(0)
	})

	defineMethod(ArrayType, ",", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		elements := append(ctx.ArrayElements(args[0]), ctx.ArrayElements(args[1])...)
		return ctx.NewArray(elements...)
	})

	// Enumeration
	defineMethod(ArrayType, "do:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		for i := 0; i < ctx.basicSize(args[0]); i++ {
			ctx.Apply(args[1], ctx.heap.Slot(args[0], i))
		}
		return args[0]
	})

	defineMethod(ArrayType, "doWithIndex:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		for i := 0; i < ctx.basicSize(args[0]); i++ {
			ctx.Apply(args[1], ctx.heap.Slot(args[0], i), ctx.NewInteger(int64(i+1)))
		}
		return args[0]
	})

	defineMethod(ArrayType, "collect:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		result := ctx.heap.AllocatePointerTuple(ctx.types[ArrayType], ctx.basicSize(args[0]))
		ctx.WithGCRoots(func() {
			for i := 0; i < ctx.heap.SlotCount(result) && i < ctx.basicSize(args[0]); i++ {
				v := ctx.Apply(args[1], ctx.heap.Slot(args[0], i))
				ctx.heap.SetSlot(result, i, v)
			}
		}, &result)
		return result
	})

	defineMethod(ArrayType, "select:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		keep := ctx.heap.AllocatePointerTuple(ctx.types[ArrayType], ctx.basicSize(args[0]))
		n := 0
		ctx.WithGCRoots(func() {
			for i := 0; i < ctx.basicSize(args[0]); i++ {
				if !ctx.Apply(args[1], ctx.heap.Slot(args[0], i)).IsFalsy() {
					ctx.heap.SetSlot(keep, n, ctx.heap.Slot(args[0], i))
					n++
				}
			}
		}, &keep)
		return ctx.NewArray(ctx.ArrayElements(keep)[:n]...)
	})

	defineMethod(ArrayType, "inject:into:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		acc := args[1]
		ctx.WithGCRoots(func() {
			for i := 0; i < ctx.basicSize(args[0]); i++ {
				acc = ctx.Apply(args[2], acc, ctx.heap.Slot(args[0], i))
			}
		}, &acc)
		return acc
	})

	defineClassMethod(ArrayType, "new:withAll:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		n := ctx.intArg(args[1], "size")
		if n < 0 {
			ctx.SignalError(IndexOutOfBoundsType, "negative size")
		}
		a := ctx.BasicNew(args[0], int(n))
		for i := range int(n) {
			ctx.heap.SetSlot(a, i, args[2])
		}
		return a
	})
}

func registerStringPrimitives() {
	defineMethod(StringType, "size", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewInteger(int64(ctx.basicSize(args[0])))
	})

	defineMethod(StringType, "at:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		i := ctx.elementIndex(args[0], args[1])
		return ctx.EncodeChar8(ctx.heap.Payload(args[0])[i])
	})

	defineMethod(StringType, "at:put:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		i := ctx.elementIndex(args[0], args[1])
		if ctx.heap.IsImmutable(args[0]) {
			ctx.SignalError(ModifyImmutableType, "cannot modify immutable "+ctx.TypeName(ctx.TypeOf(args[0])))
		}
		c := ctx.DecodeChar32(args[2])
		if c > 0xFF {
			ctx.SignalError(CoercionErrorType, "character does not fit a byte string")
		}
		ctx.heap.Payload(args[0])[i] = byte(c)
		return args[2]
	})

	defineMethod(StringType, ",", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewString(ctx.StringValue(args[0]) + ctx.stringArg(args[1], "argument"))
	})

	defineMethod(StringType, "isEmpty", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.basicSize(args[0]) == 0)
	})

	defineMethod(StringType, "asSymbol", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.Intern(ctx.StringValue(args[0]))
	})

	defineMethod(StringType, "asString", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if ctx.IsSymbol(args[0]) {
			return ctx.NewString(ctx.StringValue(args[0]))
		}
		return args[0]
	})

	defineMethod(StringType, "displayString", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewString(ctx.StringValue(args[0]))
	})

	defineMethod(StringType, "<", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.StringValue(args[0]) < ctx.stringArg(args[1], "argument"))
	})

	defineMethod(ObjectType, "displayString", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewString(ctx.PrintString(args[0]))
	})
}

func registerDictionaryPrimitives() {
	defineClassMethod(DictionaryType, "new", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.newHashtable(args[0], initialHashtableCapacity)
	})

	defineMethod(DictionaryType, "size", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewInteger(int64(ctx.DictionarySize(args[0])))
	})

	defineMethod(DictionaryType, "isEmpty", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.DictionarySize(args[0]) == 0)
	})

	defineMethod(DictionaryType, "at:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		v, ok := ctx.DictionaryAt(args[0], args[1])
		if !ok {
			ctx.SignalError(ErrorType, "key not found: "+ctx.PrintString(args[1]))
		}
		return v
	})

	defineMethod(DictionaryType, "at:ifAbsent:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if v, ok := ctx.DictionaryAt(args[0], args[1]); ok {
			return v
		}
		return ctx.Apply(args[2])
	})

	defineMethod(DictionaryType, "at:put:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.DictionaryAtPut(args[0], args[1], args[2])
		return args[2]
	})

	defineMethod(DictionaryType, "includesKey:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		_, ok := ctx.DictionaryAt(args[0], args[1])
		return tuple.FromBool(ok)
	})

	defineMethod(DictionaryType, "removeKey:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		v, ok := ctx.DictionaryAt(args[0], args[1])
		if !ok {
			ctx.SignalError(ErrorType, "key not found: "+ctx.PrintString(args[1]))
		}
		ctx.DictionaryRemove(args[0], args[1])
		return v
	})

	defineMethod(DictionaryType, "keys", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		var keys []tuple.Tuple
		ctx.DictionaryEach(args[0], func(k, _ tuple.Tuple) { keys = append(keys, k) })
		return ctx.NewArray(keys...)
	})

	defineMethod(DictionaryType, "values", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		var values []tuple.Tuple
		ctx.DictionaryEach(args[0], func(_, v tuple.Tuple) { values = append(values, v) })
		return ctx.NewArray(values...)
	})

	defineMethod(DictionaryType, "associations", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		var pairs []tuple.Tuple
		ctx.DictionaryEach(args[0], func(k, v tuple.Tuple) { pairs = append(pairs, k, v) })
		assocs := make([]tuple.Tuple, len(pairs)/2)
		for i := range assocs {
			assocs[i] = ctx.NewAssociation(pairs[2*i], pairs[2*i+1])
		}
		return ctx.NewArray(assocs...)
	})

	// The bindings are snapshotted first, so the callback may mutate the
	// dictionary.
	defineMethod(DictionaryType, "keysAndValuesDo:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		var pairs []tuple.Tuple
		ctx.DictionaryEach(args[0], func(k, v tuple.Tuple) { pairs = append(pairs, k, v) })
		snapshot := ctx.NewArray(pairs...)
		ctx.WithGCRoots(func() {
			for i := 0; i < ctx.heap.SlotCount(snapshot); i += 2 {
				ctx.Apply(args[1], ctx.heap.Slot(snapshot, i), ctx.heap.Slot(snapshot, i+1))
			}
		}, &snapshot)
		return args[0]
	})
}

func registerAssociationPrimitives() {
	defineClassMethod(AssociationType, "key:value:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		a := ctx.BasicNew(args[0], 0)
		ctx.heap.SetSlot(a, AssociationKey, args[1])
		ctx.heap.SetSlot(a, AssociationValue, args[2])
		return a
	})

	defineMethod(ObjectType, "->", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewAssociation(args[0], args[1])
	})

	defineMethod(AssociationType, "key", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.heap.Slot(args[0], AssociationKey)
	})

	defineMethod(AssociationType, "value", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.Load(args[0])
	})

	defineMethod(AssociationType, "value:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.Store(args[0], args[1])
		return args[1]
	})

	defineMethod(BoxType, "value", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.Load(args[0])
	})

	defineMethod(BoxType, "value:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.Store(args[0], args[1])
		return args[1]
	})

	defineClassMethod(BoxType, "with:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.AllocaWithValue(args[0], args[1])
	})
}
