package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chazu/tuuvm/corpus"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in programs",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, p := range corpus.All() {
			fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Summary)
		}
		return w.Flush()
	},
}

var runCmd = &cobra.Command{
	Use:   "run [program...]",
	Short: "Run built-in programs (all when none are named)",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Bool("stats", false, "print dispatch and JIT statistics after each program")
	runCmd.Flags().Bool("gc", false, "force a collection after each program")
}

func runRun(cmd *cobra.Command, args []string) error {
	programs, err := lookupPrograms(args)
	if err != nil {
		return err
	}
	showStats, _ := cmd.Flags().GetBool("stats")
	forceGC, _ := cmd.Flags().GetBool("gc")

	for _, p := range programs {
		s, err := newSession(cfg, "run "+p.Name)
		if err != nil {
			return err
		}
		out := runProgram(s.ctx, p)
		printResult(p.Name, out)
		if forceGC {
			s.ctx.CollectGarbage()
		}
		if showStats {
			printStats(s)
		}
		s.close()
	}
	return nil
}

func printStats(s *session) {
	d := s.ctx.DispatchStats()
	j := s.jit.Stats()
	fmt.Fprintf(os.Stdout, "  %s sends %d, lookups %d, sites %d (mono %d, poly %d), hit rate %.1f%%\n",
		commentColor.Sprint("dispatch:"), d.Sends, d.FullLookups, d.CallSites, d.Monomorphic, d.Polymorphic, d.HitRate)
	fmt.Fprintf(os.Stdout, "  %s compiled %d, failed %d, cache hits %d, time %s\n",
		commentColor.Sprint("jit:"), j.Compiled, j.Failed, j.CacheHits, j.Time)
	if s.recorder != nil {
		fmt.Fprintf(os.Stdout, "  %s run %d in %s\n", commentColor.Sprint("profile:"), s.recorder.Run(), s.store.Path())
	}
}
