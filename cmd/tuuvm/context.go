package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/chazu/tuuvm/compiler"
	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/corpus"
	"github.com/chazu/tuuvm/jit"
	"github.com/chazu/tuuvm/profile"
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	okColor      = color.New(color.FgGreen)
	failColor    = color.New(color.FgRed, color.Bold)
	opcodeColor  = color.New(color.FgYellow)
	commentColor = color.New(color.FgHiBlack)
)

// session bundles a context with its backends.
type session struct {
	ctx      *vm.Context
	jit      *jit.Compiler
	store    *profile.Store
	recorder *profile.Recorder
}

// newSession creates a context configured by c with the compiler and a
// JIT installed. When c names a profile database, events are recorded
// into a run labeled label.
func newSession(c *config.Config, label string) (*session, error) {
	ctx, err := vm.NewContext(c)
	if err != nil {
		return nil, err
	}
	s := &session{ctx: ctx}
	compiler.New().Install(ctx)
	s.jit = jit.New(c.JIT.Arch)
	s.jit.Install(ctx)

	if c.ProfilePath() != "" {
		if s.store, err = profile.OpenConfigured(c); err != nil {
			ctx.Destroy()
			return nil, err
		}
		if s.recorder, err = s.store.Begin(label); err != nil {
			s.close()
			return nil, err
		}
		ctx.AddObserver(s.recorder)
	}
	return s, nil
}

func (s *session) close() {
	s.ctx.Destroy()
	if s.store != nil {
		s.store.Close()
	}
}

// outcome is the print string of a program run and whether it raised.
type outcome struct {
	Value  string
	Raised bool
}

// runProgram runs p inside a handler so raised exceptions are reported
// instead of reaching the top level.
func runProgram(ctx *vm.Context, p corpus.Program) outcome {
	var out outcome
	result := ctx.Catch(tuple.Null, func() tuple.Tuple {
		return p.Run(ctx)
	}, func(e tuple.Tuple) tuple.Tuple {
		out.Raised = true
		return e
	})
	out.Value = ctx.PrintString(result)
	return out
}

func (o outcome) matches(p corpus.Program) bool {
	if p.Error != "" {
		return o.Raised && o.Value == p.Error
	}
	return !o.Raised && o.Value == p.Result
}

// lookupPrograms resolves names, or every program when names is empty.
func lookupPrograms(names []string) ([]corpus.Program, error) {
	if len(names) == 0 {
		return corpus.All(), nil
	}
	programs := make([]corpus.Program, 0, len(names))
	for _, name := range names {
		p, ok := corpus.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown program %q (see `tuuvm list`)", name)
		}
		programs = append(programs, p)
	}
	return programs, nil
}

func printResult(name string, o outcome) {
	if o.Raised {
		fmt.Fprintf(os.Stdout, "%s: %s %s\n", name, failColor.Sprint("raised"), o.Value)
		return
	}
	fmt.Fprintf(os.Stdout, "%s: %s\n", name, okColor.Sprint(o.Value))
}
