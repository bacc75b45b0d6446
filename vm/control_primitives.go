package vm

import (
	"fmt"

	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Function Primitives
// ---------------------------------------------------------------------------

func registerFunctionPrimitives() {
	value := func(selector string) {
		defineMethod(FunctionType, selector, func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
			return ctx.FunctionApply(args[0], args[1:], 0)
		})
	}
	value("value")
	value("value:")
	value("value:value:")
	value("value:value:value:")
	value("value:value:value:value:")

	defineMethod(FunctionType, "valueWithArguments:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.FunctionApply(args[0], ctx.ArrayElements(args[1]), 0)
	})

	defineMethod(FunctionType, "numArgs", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewInteger(int64(ctx.FunctionArity(args[0])))
	})

	defineMethod(FunctionType, "name", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewString(ctx.FunctionName(args[0]))
	})

	defineMethod(FunctionType, "isPrimitive", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.IsPrimitive(args[0]))
	})
}

// ---------------------------------------------------------------------------
// Loops and non-local exits
// ---------------------------------------------------------------------------

// Loop bodies may take one extra argument, a LoopControl whose #break and
// #continue unwind to the loop's targets. Controls and ReturnTargets name
// their records by id, so a stale handle is detected instead of followed.

func (ctx *Context) newLoopControl(brk *BreakTargetRecord, cont *ContinueTargetRecord) tuple.Tuple {
	lc := ctx.heap.AllocatePointerTuple(ctx.types[LoopControlType], LoopControlSlotCount)
	ctx.heap.SetSlot(lc, LoopControlBreak, tuple.FromIndex(int(brk.ID())))
	ctx.heap.SetSlot(lc, LoopControlContinue, tuple.FromIndex(int(cont.ID())))
	return lc
}

func (ctx *Context) handleRecord(handle tuple.Tuple, slot int) Record {
	id := ctx.heap.Slot(handle, slot)
	if id.IsNull() {
		return nil
	}
	return ctx.recordByID(uint64(id.Index()))
}

// applyLoopBody calls body with leading, plus a LoopControl when body
// declares one more argument.
func (ctx *Context) applyLoopBody(body tuple.Tuple, brk *BreakTargetRecord, cont *ContinueTargetRecord, leading ...tuple.Tuple) {
	ctx.functionArg(body, "loop body")
	if ctx.FunctionArity(body) == len(leading)+1 {
		leading = append(leading, ctx.newLoopControl(brk, cont))
	}
	ctx.FunctionApply(body, leading, 0)
}

// conditionalLoop runs args[1] while args[0] evaluates to want.
func (ctx *Context) conditionalLoop(args []tuple.Tuple, want bool) {
	ctx.RunLoop(func(brk *BreakTargetRecord, cont *ContinueTargetRecord) bool {
		if ctx.Apply(args[0]).IsFalsy() == want {
			return false
		}
		if len(args) > 1 {
			ctx.applyLoopBody(args[1], brk, cont)
		}
		return true
	})
}

func (ctx *Context) returnTargetRecord(handle tuple.Tuple) *FunctionActivationRecord {
	if !ctx.IsKindOfWellKnown(handle, ReturnTargetType) {
		ctx.SignalError(TypeCheckErrorType, ctx.PrintString(handle)+" is not a ReturnTarget")
	}
	rec, _ := ctx.handleRecord(handle, ReturnTargetRecord).(*FunctionActivationRecord)
	if rec == nil {
		ctx.SignalError(CannotReturnType, "cannot return into a frame that is no longer active")
	}
	return rec
}

func registerControlPrimitives() {
	defineMethod(FunctionType, "whileTrue:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.conditionalLoop(args, true)
		return tuple.Null
	})

	defineMethod(FunctionType, "whileFalse:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.conditionalLoop(args, false)
		return tuple.Null
	})

	defineMethod(FunctionType, "whileTrue", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.conditionalLoop(args, true)
		return tuple.Null
	})

	defineMethod(FunctionType, "repeat", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.RunLoop(func(brk *BreakTargetRecord, cont *ContinueTargetRecord) bool {
			ctx.applyLoopBody(args[0], brk, cont)
			return true
		})
		return tuple.Null
	})

	defineMethod(IntegerType, "to:do:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		start := ctx.intArg(args[0], "loop start")
		stop := ctx.intArg(args[1], "loop stop")
		next := start
		ctx.RunLoop(func(brk *BreakTargetRecord, cont *ContinueTargetRecord) bool {
			if next > stop {
				return false
			}
			i := next
			next++
			ctx.applyLoopBody(args[2], brk, cont, ctx.NewInteger(i))
			return true
		})
		return args[0]
	})

	defineMethod(IntegerType, "timesRepeat:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		remaining := ctx.intArg(args[0], "repeat count")
		ctx.RunLoop(func(brk *BreakTargetRecord, cont *ContinueTargetRecord) bool {
			if remaining <= 0 {
				return false
			}
			remaining--
			ctx.applyLoopBody(args[1], brk, cont)
			return true
		})
		return args[0]
	})

	defineMethod(LoopControlType, "break", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		brk, _ := ctx.handleRecord(args[0], LoopControlBreak).(*BreakTargetRecord)
		if brk == nil {
			ctx.SignalError(CannotReturnType, "cannot break out of a loop that is no longer active")
		}
		ctx.BreakInto(brk)
		return tuple.Null
	})

	defineMethod(LoopControlType, "continue", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		cont, _ := ctx.handleRecord(args[0], LoopControlContinue).(*ContinueTargetRecord)
		if cont == nil {
			ctx.SignalError(CannotReturnType, "cannot continue a loop iteration that is no longer active")
		}
		ctx.ContinueInto(cont)
		return tuple.Null
	})

	// [:ret | ... ret return: x ...] withReturnTarget
	defineMethod(FunctionType, "withReturnTarget", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.WithReturnTarget(args[0], func(target Record) tuple.Tuple {
			rt := ctx.heap.AllocatePointerTuple(ctx.types[ReturnTargetType], ReturnTargetSlotCount)
			ctx.heap.SetSlot(rt, ReturnTargetRecord, tuple.FromIndex(int(target.base().id)))
			return ctx.Apply(args[0], rt)
		})
	})

	defineMethod(ReturnTargetType, "return:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.ReturnValueInto(args[1], ctx.returnTargetRecord(args[0]))
		return tuple.Null
	})

	defineGlobalFunction("returnFrom:value:", 2, func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.ReturnValueInto(args[1], ctx.returnTargetRecord(args[0]))
		return tuple.Null
	})

	defineGlobalFunction("print:", 1, func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		s := ctx.PrintString(args[0])
		if ctx.IsString(args[0]) && !ctx.IsSymbol(args[0]) {
			s = ctx.StringValue(args[0])
		}
		if ctx.out != nil {
			fmt.Fprintln(ctx.out, s)
		}
		return args[0]
	})

	defineGlobalFunction("collectGarbage", 0, func(ctx *Context, _ tuple.Tuple, _ []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.CollectGarbage())
	})
}

// ---------------------------------------------------------------------------
// Exception Primitives
// ---------------------------------------------------------------------------

func registerExceptionPrimitives() {
	// [body] on: ErrorType do: [:e | handler]
	defineMethod(FunctionType, "on:do:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		filter := args[1]
		if !filter.IsNull() {
			ctx.typeArg(filter, "exception filter")
		}
		return ctx.Catch(filter,
			func() tuple.Tuple { return ctx.Apply(args[0]) },
			func(exc tuple.Tuple) tuple.Tuple {
				handler := ctx.functionArg(args[2], "exception handler")
				if ctx.FunctionArity(handler) == 0 {
					return ctx.Apply(handler)
				}
				return ctx.Apply(handler, exc)
			})
	})

	defineMethod(FunctionType, "ensure:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.Ensure(
			func() tuple.Tuple { return ctx.Apply(args[0]) },
			func() { ctx.Apply(args[1]) })
	})

	defineMethod(FunctionType, "ifCurtailed:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		completed := false
		return ctx.Ensure(
			func() tuple.Tuple {
				r := ctx.Apply(args[0])
				completed = true
				return r
			},
			func() {
				if !completed {
					ctx.Apply(args[1])
				}
			})
	})

	defineMethod(ExceptionType, "signal", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.RaiseException(args[0])
		return tuple.Null
	})

	defineMethod(ExceptionType, "signal:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.stringArg(args[1], "message")
		ctx.heap.SetSlot(args[0], ExceptionMessageText, args[1])
		ctx.RaiseException(args[0])
		return tuple.Null
	})

	defineMethod(ExceptionType, "messageText", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.heap.Slot(args[0], ExceptionMessageText)
	})

	defineMethod(ExceptionType, "messageText:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.heap.SetSlot(args[0], ExceptionMessageText, args[1])
		return args[0]
	})

	defineMethod(ExceptionType, "description", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if msg := ctx.MessageText(args[0]); msg != "" {
			return ctx.NewString(msg)
		}
		return ctx.NewString(ctx.TypeName(ctx.TypeOf(args[0])))
	})

	defineMethod(ExceptionType, "receiver", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.heap.Slot(args[0], ExceptionReceiver)
	})

	defineMethod(ExceptionType, "selector", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.heap.Slot(args[0], ExceptionSelector)
	})

	defineMethod(ExceptionType, "stackTrace", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.heap.Slot(args[0], ExceptionStackTrace)
	})

	defineMethod(ExceptionType, "stackTraceString", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewString(ctx.RenderStackTrace(ctx.heap.Slot(args[0], ExceptionStackTrace)))
	})

	defineClassMethod(ExceptionType, "signal", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.RaiseException(ctx.NewException(args[0], ""))
		return tuple.Null
	})

	defineClassMethod(ExceptionType, "signal:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.RaiseException(ctx.NewException(args[0], ctx.stringArg(args[1], "message")))
		return tuple.Null
	})
}
