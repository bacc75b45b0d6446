package vm

import (
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Object Primitives
// ---------------------------------------------------------------------------

func registerObjectPrimitives() {
	// Comparison
	defineMethod(ObjectType, "==", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(args[0] == args[1])
	})

	defineMethod(ObjectType, "~~", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(args[0] != args[1])
	})

	defineMethod(ObjectType, "=", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.Equals(args[0], args[1]))
	})

	defineMethod(ObjectType, "~=", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(!ctx.Equals(args[0], args[1]))
	})

	defineMethod(ObjectType, "hash", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewInteger(int64(ctx.Hash(args[0]) & hashMask))
	})

	defineMethod(ObjectType, "identityHash", primIdentityHash)

	// Reflection
	defineMethod(ObjectType, "class", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.TypeOf(args[0])
	})

	defineMethod(ObjectType, "isKindOf:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.IsKindOf(args[0], ctx.typeArg(args[1], "isKindOf: argument")))
	})

	defineMethod(ObjectType, "respondsTo:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if !ctx.IsSymbol(args[1]) {
			ctx.SignalError(TypeCheckErrorType, "respondsTo: expects a Symbol")
		}
		return tuple.FromBool(ctx.RespondsTo(args[0], args[1]))
	})

	defineMethod(ObjectType, "perform:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if !ctx.IsSymbol(args[1]) {
			ctx.SignalError(TypeCheckErrorType, "perform: expects a Symbol")
		}
		return ctx.SendWithCache(nil, tuple.Null, args[1], args[:1])
	})

	defineMethod(ObjectType, "perform:withArguments:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if !ctx.IsSymbol(args[1]) {
			ctx.SignalError(TypeCheckErrorType, "perform:withArguments: expects a Symbol")
		}
		full := append([]tuple.Tuple{args[0]}, ctx.ArrayElements(args[2])...)
		return ctx.SendWithCache(nil, tuple.Null, args[1], full)
	})

	// Slots are numbered from 1 here, unlike the slotAt instruction.
	defineMethod(ObjectType, "instVarAt:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.SlotAt(args[0], int(ctx.intArg(args[1], "index"))-1)
	})

	defineMethod(ObjectType, "instVarAt:put:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.SlotAtPut(args[0], int(ctx.intArg(args[1], "index"))-1, args[2])
		return args[2]
	})

	defineMethod(ObjectType, "isImmutable", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(!args[0].IsPointer() || ctx.heap.IsImmutable(args[0]))
	})

	defineMethod(ObjectType, "beImmutable", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if args[0].IsPointer() {
			ctx.heap.MarkImmutable(args[0])
		}
		return args[0]
	})

	// Testing
	defineMethod(ObjectType, "isNil", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(args[0].IsNull())
	})

	defineMethod(ObjectType, "notNil", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(!args[0].IsNull())
	})

	defineMethod(ObjectType, "ifNil:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if args[0].IsNull() {
			return ctx.Apply(args[1])
		}
		return args[0]
	})

	defineMethod(ObjectType, "yourself", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return args[0]
	})

	// Printing
	defineMethod(ObjectType, "printString", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewString(ctx.PrintString(args[0]))
	})

	defineMethod(ObjectType, "error:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		exc := ctx.NewException(ctx.types[ErrorType], ctx.stringArg(args[1], "error message"))
		ctx.heap.SetSlot(exc, ExceptionReceiver, args[0])
		ctx.RaiseException(exc)
		return tuple.Null
	})

	defineMethod(ObjectType, "doesNotUnderstand:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.signalMessageNotUnderstood(args[0], args[1])
		return tuple.Null
	})
}

// ---------------------------------------------------------------------------
// Boolean Primitives
// ---------------------------------------------------------------------------

// Conditionals take functions for their branches and only evaluate the
// branch selected by the receiver.
func registerBooleanPrimitives() {
	defineMethod(BooleanType, "not", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(args[0].IsFalsy())
	})

	defineMethod(BooleanType, "&", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(!args[0].IsFalsy() && !args[1].IsFalsy())
	})

	defineMethod(BooleanType, "|", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(!args[0].IsFalsy() || !args[1].IsFalsy())
	})

	defineMethod(BooleanType, "and:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if args[0].IsFalsy() {
			return tuple.False
		}
		return ctx.Apply(args[1])
	})

	defineMethod(BooleanType, "or:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if !args[0].IsFalsy() {
			return tuple.True
		}
		return ctx.Apply(args[1])
	})

	defineMethod(BooleanType, "ifTrue:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if args[0].IsFalsy() {
			return tuple.Null
		}
		return ctx.Apply(args[1])
	})

	defineMethod(BooleanType, "ifFalse:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if !args[0].IsFalsy() {
			return tuple.Null
		}
		return ctx.Apply(args[1])
	})

	defineMethod(BooleanType, "ifTrue:ifFalse:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if args[0].IsFalsy() {
			return ctx.Apply(args[2])
		}
		return ctx.Apply(args[1])
	})

	defineMethod(BooleanType, "ifFalse:ifTrue:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if args[0].IsFalsy() {
			return ctx.Apply(args[1])
		}
		return ctx.Apply(args[2])
	})
}

// ---------------------------------------------------------------------------
// Type Primitives
// ---------------------------------------------------------------------------

// Type methods are inherited by every metatype, so they answer messages
// sent to any type.
func registerTypePrimitives() {
	defineMethod(TypeType, "new", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.BasicNew(args[0], 0)
	})

	defineMethod(TypeType, "basicNew", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.BasicNew(args[0], 0)
	})

	defineMethod(TypeType, "new:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		n := ctx.intArg(args[1], "size")
		if n < 0 {
			ctx.SignalError(IndexOutOfBoundsType, "negative size")
		}
		return ctx.BasicNew(args[0], int(n))
	})

	defineMethod(TypeType, "name", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.heap.Slot(args[0], TypeName)
	})

	defineMethod(TypeType, "supertype", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.Supertype(args[0])
	})

	defineMethod(TypeType, "inheritsFrom:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		super := ctx.typeArg(args[1], "inheritsFrom: argument")
		return tuple.FromBool(args[0] != super && ctx.IsSubtypeOf(args[0], super))
	})

	defineMethod(TypeType, "includesSelector:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		d := ctx.heap.Slot(args[0], TypeMethodDictionary)
		if d.IsNull() {
			return tuple.False
		}
		_, ok := ctx.DictionaryAt(d, args[1])
		return tuple.FromBool(ok)
	})

	defineMethod(TypeType, "canUnderstand:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(!ctx.LookupSelector(args[0], args[1]).IsNull())
	})

	// Installing a method from code invalidates every inline cache.
	defineMethod(TypeType, "at:installMethod:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if !ctx.IsSymbol(args[1]) {
			ctx.SignalError(TypeCheckErrorType, "selector must be a Symbol")
		}
		ctx.InstallMethod(args[0], args[1], ctx.functionArg(args[2], "method"))
		return args[2]
	})

	defineMethod(TypeType, "removeSelector:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.RemoveMethod(args[0], args[1]))
	})

	defineMethod(TypeType, "subtype:slots:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		name := ctx.stringArg(args[1], "type name")
		var slots []string
		for _, s := range ctx.ArrayElements(args[2]) {
			slots = append(slots, ctx.stringArg(s, "slot name"))
		}
		t := ctx.NewType(name, args[0], slots, 0)
		ctx.SetGlobal(name, t)
		return t
	})
}
