package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chazu/tuuvm/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile [run-id]",
	Short: "Show recorded runs, or the compilations of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProfile,
}

func init() {
	profileCmd.Flags().IntP("limit", "n", 20, "number of runs listed")
}

func runProfile(cmd *cobra.Command, args []string) error {
	store, err := profile.OpenConfigured(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("run id: %w", err)
		}
		comps, err := store.Compilations(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "FUNCTION\tARCH\tOPS\tBYTES\tTIME\tERROR")
		for _, c := range comps {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", c.Function, c.Arch, c.Ops, c.CodeSize, c.Duration, c.Err)
		}
		return w.Flush()
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.Runs(limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tLABEL\tSTARTED\tGC\tFREED\tGC TIME\tJIT\tFAILED\tJIT TIME")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%d\t%d\t%s\n",
			r.ID, r.Label, r.StartedAt.Format("2006-01-02 15:04:05"), r.GCCycles, r.FreedBytes, r.GCTime,
			r.Compiled, r.JITFailed, r.JITTime)
	}
	return w.Flush()
}
