package vm

import (
	"strconv"

	"github.com/chazu/tuuvm/tuple"
)

// ApplyFlags modify FunctionApply.
type ApplyFlags uint8

const (
	// ApplyUnchecked skips argument count validation. Missing arguments
	// read as null and extra ones are dropped.
	ApplyUnchecked ApplyFlags = 1 << iota
)

// FunctionApply is the single entry point for calling a function, from Go
// or from code. It pushes a function activation, reaches a safepoint, and
// runs the primitive, the native code or the interpreter.
func (ctx *Context) FunctionApply(fn tuple.Tuple, args []tuple.Tuple, flags ApplyFlags) tuple.Tuple {
	ctx.checkAlive()
	if !ctx.IsFunction(fn) {
		ctx.SignalError(TypeCheckErrorType, ctx.PrintString(fn)+" is not a function")
	}
	args = ctx.adaptArguments(fn, args, flags)

	rec := &FunctionActivationRecord{Function: fn, Arguments: args}
	ctx.depth++
	defer func() { ctx.depth-- }()
	result, _ := ctx.runWithRecord(rec, func() tuple.Tuple {
		if ctx.depth > MaxCallDepth {
			ctx.SignalError(StackOverflowType, "call depth exceeds "+strconv.Itoa(MaxCallDepth))
		}
		ctx.GCSafepoint()
		if ctx.IsPrimitive(rec.Function) {
			return ctx.primitiveEntry(rec.Function)(ctx, rec.Function, rec.Arguments)
		}
		return ctx.runBytecode(rec)
	})
	return result
}

// Apply is FunctionApply with checked arguments.
func (ctx *Context) Apply(fn tuple.Tuple, args ...tuple.Tuple) tuple.Tuple {
	return ctx.FunctionApply(fn, args, 0)
}

func (ctx *Context) adaptArguments(fn tuple.Tuple, args []tuple.Tuple, flags ApplyFlags) []tuple.Tuple {
	h := ctx.heap
	argc := h.Slot(fn, FunctionArgumentCount).Index()
	if argc > 0 && h.Slot(fn, FunctionFlags).Index()&FunctionFlagVariadic != 0 {
		fixed := argc - 1
		if len(args) < fixed {
			ctx.signalArgumentCount(fn, argc, len(args))
		}
		packed := make([]tuple.Tuple, argc)
		copy(packed, args[:fixed])
		packed[fixed] = ctx.NewArray(args[fixed:]...)
		return packed
	}
	if len(args) == argc {
		return args
	}
	if flags&ApplyUnchecked == 0 {
		ctx.signalArgumentCount(fn, argc, len(args))
	}
	adjusted := make([]tuple.Tuple, argc)
	copy(adjusted, args)
	return adjusted
}

func (ctx *Context) signalArgumentCount(fn tuple.Tuple, want, got int) {
	ctx.SignalError(ArgumentCountErrorType,
		ctx.FunctionName(fn)+" expects "+strconv.Itoa(want)+" arguments, got "+strconv.Itoa(got))
}

// runBytecode runs a compiled function body in a bytecode activation,
// natively when the jit has code for it.
func (ctx *Context) runBytecode(rec *FunctionActivationRecord) tuple.Tuple {
	bc := ctx.ensureBytecode(rec.Function)
	if code := ctx.nativeCodeFor(bc, ctx.FunctionName(rec.Function)); code != nil {
		act := &JITActivationRecord{Code: code}
		ctx.initActivation(&act.BytecodeActivation, rec.Function, bc, rec.Arguments)
		ctx.PushRecord(act)
		defer ctx.PopRecord(act)
		return code.Run(ctx, act)
	}
	act := &InterpreterActivationRecord{}
	ctx.initActivation(&act.BytecodeActivation, rec.Function, bc, rec.Arguments)
	ctx.PushRecord(act)
	defer ctx.PopRecord(act)
	return ctx.interpret(act)
}

// initActivation lays out a bytecode frame. The frame shares the argument
// slice with the function activation, so both see collector updates.
func (ctx *Context) initActivation(a *BytecodeActivation, fn, bc tuple.Tuple, args []tuple.Tuple) {
	h := ctx.heap
	sizes := ctx.VectorSizes(bc)
	a.Context = ctx
	a.Function = fn
	a.Bytecode = bc
	a.ArgumentCount = len(args)
	a.Arguments = args
	a.Captures = h.Slot(fn, FunctionCaptureVector)
	a.Literals = h.Slot(bc, BytecodeLiteralVector)
	a.Locals = make([]tuple.Tuple, sizes.Locals)
	a.caches = ctx.inlineCacheTableFor(bc)

	if len(args) != sizes.Arguments {
		Fatalf("%s: bytecode expects %d arguments, activation has %d", ctx.FunctionName(fn), sizes.Arguments, len(args))
	}
	if a.Captures.IsNull() || h.SlotCount(a.Captures) < sizes.Captures {
		Fatalf("%s: capture vector smaller than %d", ctx.FunctionName(fn), sizes.Captures)
	}
}

// inlineCacheTableFor returns the per-call-site caches of bc.
func (ctx *Context) inlineCacheTableFor(bc tuple.Tuple) *InlineCacheTable {
	h := ctx.heap
	if idx := h.Slot(bc, BytecodeInlineCacheTable); !idx.IsNull() {
		if i := idx.Index(); i >= 0 && i < len(ctx.cacheTables) {
			return ctx.cacheTables[i]
		}
	}
	t := NewInlineCacheTable(ctx.cfg.Dispatch.PICSize)
	h.SetSlot(bc, BytecodeInlineCacheTable, tuple.FromIndex(len(ctx.cacheTables)))
	ctx.cacheTables = append(ctx.cacheTables, t)
	return t
}
