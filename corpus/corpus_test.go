package corpus_test

import (
	"io"
	"testing"

	"github.com/chazu/tuuvm/compiler"
	"github.com/chazu/tuuvm/corpus"
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

func TestProgramsInterpreted(t *testing.T) {
	for _, p := range corpus.All() {
		t.Run(p.Name, func(t *testing.T) {
			ctx, err := vm.NewContext(nil)
			if err != nil {
				t.Fatal(err)
			}
			defer ctx.Destroy()
			ctx.SetOutput(io.Discard)
			ctx.SetErrorOutput(io.Discard)
			compiler.New().Install(ctx)

			var exc tuple.Tuple
			raised := false
			result := ctx.Catch(tuple.Null, func() tuple.Tuple {
				return p.Run(ctx)
			}, func(e tuple.Tuple) tuple.Tuple {
				raised = true
				exc = e
				return e
			})

			if p.Error != "" {
				if !raised || ctx.PrintString(exc) != p.Error {
					t.Fatalf("want exception %q, got %s", p.Error, ctx.PrintString(result))
				}
				return
			}
			if raised {
				t.Fatalf("unexpected exception %s", ctx.PrintString(exc))
			}
			if got := ctx.PrintString(result); got != p.Result {
				t.Errorf("result %s, want %s", got, p.Result)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	if _, ok := corpus.Lookup("nope"); ok {
		t.Error("unknown program found")
	}
	a, _ := corpus.Lookup("factorial")
	b, _ := corpus.Lookup("factorial")
	if a.Functions[0] == b.Functions[0] {
		t.Error("Lookup must build fresh trees")
	}
	if len(corpus.Names()) != len(corpus.All()) {
		t.Error("Names and All disagree")
	}
}
