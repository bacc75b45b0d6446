package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Exception objects
// ---------------------------------------------------------------------------

// NewException instantiates the exception type typ with a message.
func (ctx *Context) NewException(typ tuple.Tuple, message string) tuple.Tuple {
	exc := ctx.BasicNew(typ, 0)
	if message != "" {
		ctx.heap.SetSlot(exc, ExceptionMessageText, ctx.NewString(message))
	}
	return exc
}

// SignalError raises a new exception of a bootstrap type. It does not
// return.
func (ctx *Context) SignalError(kind WellKnownType, message string) {
	ctx.RaiseException(ctx.NewException(ctx.types[kind], message))
}

// MessageText returns the message of an exception, or "".
func (ctx *Context) MessageText(exc tuple.Tuple) string {
	if !ctx.IsKindOfWellKnown(exc, ExceptionType) {
		return ""
	}
	return ctx.StringValue(ctx.heap.Slot(exc, ExceptionMessageText))
}

// IsException reports whether v is an Exception instance.
func (ctx *Context) IsException(v tuple.Tuple) bool {
	return v.IsPointer() && ctx.IsKindOfWellKnown(v, ExceptionType)
}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

// RaiseException unwinds to the nearest landing pad whose filter matches
// exc. Without one the exception is reported and the VM dies with a
// FatalError. It does not return.
func (ctx *Context) RaiseException(exc tuple.Tuple) {
	typ := ctx.TypeOf(exc)
	for r := ctx.active; r != nil; r = r.Previous() {
		pad, ok := r.(*LandingPadRecord)
		if !ok {
			continue
		}
		if !pad.Filter.IsNull() && !ctx.IsSubtypeOf(typ, pad.Filter) {
			continue
		}
		if pad.WantsStackTrace {
			pad.StackTrace = ctx.buildStackTrace(pad)
			if ctx.IsException(exc) && ctx.heap.Slot(exc, ExceptionStackTrace).IsNull() {
				ctx.heap.SetSlot(exc, ExceptionStackTrace, pad.StackTrace)
			}
		}
		pad.value = exc
		panic(&unwindSignal{kind: unwindException, target: pad})
	}
	ctx.unhandledException(exc)
}

func (ctx *Context) unhandledException(exc tuple.Tuple) {
	trace := ctx.RenderStackTrace(ctx.buildStackTrace(nil))
	msg := "unhandled exception: " + ctx.PrintString(exc)
	log.Critical(msg)
	if ctx.errOut != nil {
		fmt.Fprintf(ctx.errOut, "%s\n%s", msg, trace)
	}
	panic(&FatalError{Message: msg, Trace: trace})
}

// ---------------------------------------------------------------------------
// Stack traces
// ---------------------------------------------------------------------------

// buildStackTrace materializes the frames from the active record down to,
// but excluding, stop. Each entry is an Association of a function name and
// a SourcePosition (null when unknown).
func (ctx *Context) buildStackTrace(stop Record) tuple.Tuple {
	var entries []tuple.Tuple
	for r := ctx.active; r != nil && r != stop; r = r.Previous() {
		switch rec := r.(type) {
		case *InterpreterActivationRecord:
			entries = append(entries, ctx.traceEntry(rec.Function, ctx.PositionAt(rec.Bytecode, rec.PC)))
		case *JITActivationRecord:
			entries = append(entries, ctx.traceEntry(rec.Function, ctx.PositionAt(rec.Bytecode, rec.PC)))
		case *FunctionActivationRecord:
			if ctx.IsPrimitive(rec.Function) {
				entries = append(entries, ctx.traceEntry(rec.Function, tuple.Null))
			}
		case *SourcePositionRecord:
			entries = append(entries, ctx.NewAssociation(ctx.Intern("<native>"), rec.Position))
		}
	}
	return ctx.NewArray(entries...)
}

func (ctx *Context) traceEntry(fn, position tuple.Tuple) tuple.Tuple {
	return ctx.NewAssociation(ctx.Intern(ctx.FunctionName(fn)), position)
}

// RenderStackTrace formats a trace built by RaiseException, innermost frame
// first.
func (ctx *Context) RenderStackTrace(trace tuple.Tuple) string {
	var sb strings.Builder
	for _, entry := range ctx.ArrayElements(trace) {
		name := ctx.StringValue(ctx.heap.Slot(entry, AssociationKey))
		pos := ctx.SourcePositionValue(ctx.heap.Slot(entry, AssociationValue))
		fmt.Fprintf(&sb, "  at %s (%s)\n", name, pos)
	}
	return sb.String()
}
