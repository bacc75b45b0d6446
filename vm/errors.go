package vm

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the embedding API.
var (
	ErrDestroyed        = errors.New("vm: context destroyed")
	ErrNotAFunction     = errors.New("vm: not a function")
	ErrNoCompiler       = errors.New("vm: no compiler installed")
	ErrNoJIT            = errors.New("vm: no jit installed")
	ErrUnknownPrimitive = errors.New("vm: unknown primitive")
)

// FatalError reports a violated VM invariant: corrupt bytecode, a bad
// operand, an unhandled exception. It is raised with panic and must not be
// recovered by VM code.
type FatalError struct {
	Message string
	// Trace is the rendered stack trace of an unhandled exception.
	Trace string
}

func (e *FatalError) Error() string {
	return "vm fatal: " + e.Message
}

// Fatalf panics with a *FatalError.
func Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Critical(msg)
	panic(&FatalError{Message: msg})
}

// RecoverFatal converts a *FatalError panic into an error. Other panics are
// re-raised. It is meant for process boundaries such as CLI commands:
//
//	defer vm.RecoverFatal(&err)
func RecoverFatal(err *error) {
	if r := recover(); r != nil {
		if fe, ok := r.(*FatalError); ok {
			*err = fe
			return
		}
		panic(r)
	}
}
