package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/corpus"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [program...]",
	Short: "Check that the interpreter and the JIT agree on every program",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().IntP("jobs", "j", 0, "programs verified in parallel (default GOMAXPROCS)")
}

// verdict is the result of verifying one program.
type verdict struct {
	Program     string
	Interpreted outcome
	Compiled    outcome
	Err         error
}

func (v verdict) ok(p corpus.Program) bool {
	return v.Err == nil && v.Interpreted == v.Compiled && v.Interpreted.matches(p)
}

func runVerify(cmd *cobra.Command, args []string) error {
	programs, err := lookupPrograms(args)
	if err != nil {
		return err
	}
	jobs, _ := cmd.Flags().GetInt("jobs")
	verdicts, err := verifyPrograms(cmd.Context(), cfg, programs, jobs)
	if err != nil {
		return err
	}

	failed := 0
	for i, v := range verdicts {
		p := programs[i]
		switch {
		case v.ok(p):
			fmt.Fprintf(os.Stdout, "%s %s: %s\n", okColor.Sprint("ok  "), v.Program, v.Interpreted.Value)
		case v.Err != nil:
			failed++
			fmt.Fprintf(os.Stdout, "%s %s: %v\n", failColor.Sprint("FAIL"), v.Program, v.Err)
		default:
			failed++
			fmt.Fprintf(os.Stdout, "%s %s: interpreter %q, jit %q\n", failColor.Sprint("FAIL"), v.Program, v.Interpreted.Value, v.Compiled.Value)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d programs failed", failed, len(programs))
	}
	return nil
}

// verifyPrograms runs every program twice, once interpreted and once with
// eager compilation, each in its own context. Contexts are independent, so
// programs are verified in parallel.
func verifyPrograms(ctx context.Context, base *config.Config, programs []corpus.Program, jobs int) ([]verdict, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]verdict, len(programs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, max(len(programs), 1)))
	for i, p := range programs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = verifyOne(base, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func verifyOne(base *config.Config, p corpus.Program) verdict {
	v := verdict{Program: p.Name}
	var err error
	if v.Interpreted, err = runIn(base, config.JITOff, p); err != nil {
		v.Err = err
		return v
	}
	if v.Compiled, err = runIn(base, config.JITEager, p); err != nil {
		v.Err = err
	}
	return v
}

func runIn(base *config.Config, mode string, p corpus.Program) (outcome, error) {
	c := *base
	c.JIT.Mode = mode
	c.Profile.Database = ""
	s, err := newSession(&c, "")
	if err != nil {
		return outcome{}, err
	}
	defer s.close()
	s.ctx.SetOutput(io.Discard)
	s.ctx.SetErrorOutput(io.Discard)
	// Each run builds its own trees.
	fresh, _ := corpus.Lookup(p.Name)
	return runProgram(s.ctx, fresh), nil
}
