package vm

import (
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Structured unwinding (uses Go panic/recover)
// ---------------------------------------------------------------------------

type unwindKind uint8

const (
	unwindReturn unwindKind = iota
	unwindBreak
	unwindContinue
	unwindException
)

var unwindKindNames = [...]string{"return", "break", "continue", "exception"}

func (k unwindKind) String() string { return unwindKindNames[k] }

// unwindSignal is panicked to transfer control to target. Only the frame
// that pushed target recovers it; every frame in between pops its own
// records on the way out. The payload lives in target's link so it stays
// rooted while cleanup actions run.
type unwindSignal struct {
	kind   unwindKind
	target Record
}

// runWithRecord pushes r, runs body and pops r. A signal aimed at r is
// recovered and returned; anything else keeps propagating.
func (ctx *Context) runWithRecord(r Record, body func() tuple.Tuple) (result tuple.Tuple, caught *unwindSignal) {
	ctx.PushRecord(r)
	defer func() {
		p := recover()
		ctx.PopRecord(r)
		if p == nil {
			return
		}
		if sig, ok := p.(*unwindSignal); ok && sig.target == r {
			result, caught = r.base().value, sig
			r.base().value = tuple.Null
			return
		}
		panic(p)
	}()
	return body(), nil
}

func (ctx *Context) unwindTo(kind unwindKind, target Record, value tuple.Tuple) {
	if target == nil || !ctx.IsValidRecordInThisContext(target) {
		ctx.SignalError(CannotReturnType, "cannot "+kind.String()+" into a frame that is no longer active")
	}
	target.base().value = value
	panic(&unwindSignal{kind: kind, target: target})
}

// ReturnValueInto makes the activation target return value. target must be
// a function or bytecode activation still on the chain.
func (ctx *Context) ReturnValueInto(value tuple.Tuple, target Record) {
	switch target.(type) {
	case *FunctionActivationRecord, *InterpreterActivationRecord, *JITActivationRecord:
	default:
		Fatalf("ReturnValueInto: %s is not an activation", describeRecord(target))
	}
	ctx.unwindTo(unwindReturn, target, value)
}

// BreakInto resumes after the loop owning target.
func (ctx *Context) BreakInto(target *BreakTargetRecord) {
	ctx.unwindTo(unwindBreak, target, tuple.Void)
}

// ContinueInto resumes the next iteration of the loop owning target.
func (ctx *Context) ContinueInto(target *ContinueTargetRecord) {
	ctx.unwindTo(unwindContinue, target, tuple.Void)
}

// Catch runs body under a landing pad. An exception that is an instance of
// filter (any exception when filter is null) unwinds to the pad and handler
// is called with it after the pad is gone.
func (ctx *Context) Catch(filter tuple.Tuple, body func() tuple.Tuple, handler func(exception tuple.Tuple) tuple.Tuple) tuple.Tuple {
	pad := &LandingPadRecord{Filter: filter, WantsStackTrace: true}
	result, sig := ctx.runWithRecord(pad, body)
	if sig == nil {
		return result
	}
	return handler(result)
}

// Ensure runs body and then cleanup, whether body returns or is unwound
// through. cleanup runs exactly once. It is skipped when the VM is dying
// with a FatalError.
func (ctx *Context) Ensure(body func() tuple.Tuple, cleanup func()) (result tuple.Tuple) {
	r := &CleanupRecord{Action: cleanup}
	ctx.PushRecord(r)
	defer func() {
		p := recover()
		if p == nil {
			// The result stays rooted in r while cleanup runs.
			r.value = result
			func() {
				defer ctx.PopRecord(r)
				r.run()
			}()
			result, r.value = r.value, tuple.Null
			return
		}
		ctx.PopRecord(r)
		if _, fatal := p.(*FatalError); !fatal {
			r.run()
		}
		panic(p)
	}()
	return body()
}

// WithReturnTarget runs body with a function activation that ReturnValueInto
// can aim at. body receives the activation.
func (ctx *Context) WithReturnTarget(fn tuple.Tuple, body func(target Record) tuple.Tuple) tuple.Tuple {
	r := &FunctionActivationRecord{Function: fn}
	result, _ := ctx.runWithRecord(r, func() tuple.Tuple { return body(r) })
	return result
}

// RunLoop drives a native loop. Each iteration runs under fresh break and
// continue targets; step reports whether to keep looping. A break ends the
// loop, a continue ends only the iteration.
func (ctx *Context) RunLoop(step func(brk *BreakTargetRecord, cont *ContinueTargetRecord) bool) {
	brk := &BreakTargetRecord{}
	ctx.runWithRecord(brk, func() tuple.Tuple {
		for {
			cont := &ContinueTargetRecord{}
			again := true
			ctx.runWithRecord(cont, func() tuple.Tuple {
				again = step(brk, cont)
				return tuple.Void
			})
			if !again {
				return tuple.Void
			}
			ctx.GCSafepoint()
		}
	})
}
