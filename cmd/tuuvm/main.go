package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/tuuvm/config"
)

var rootCmd = &cobra.Command{
	Use:   "tuuvm",
	Short: "Tagged tuple VM with bytecode interpreter and JIT",
	Long: `tuuvm runs the built-in program corpus on the tagged tuple VM,
and inspects the bytecode, native code and images it produces.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// cfg is loaded before any subcommand runs.
var cfg *config.Config

func main() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(jitCmd)
	rootCmd.AddCommand(profileCmd)

	rootCmd.PersistentFlags().String("config", "", "directory holding tuuvm.toml (default: search upwards from cwd)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase log verbosity")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().String("jit", "", "override [jit] mode (off|lazy|eager)")
	rootCmd.PersistentFlags().String("arch", "", "override [jit] arch (host|amd64|arm64)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	dir, _ := cmd.Flags().GetString("config")
	var err error
	if dir != "" {
		cfg, err = config.Load(dir)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return err
	}
	if mode, _ := cmd.Flags().GetString("jit"); mode != "" {
		cfg.JIT.Mode = mode
	}
	if arch, _ := cmd.Flags().GetString("arch"); arch != "" {
		cfg.JIT.Arch = arch
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	verbosity := cfg.Log.Verbosity
	if v, _ := cmd.Flags().GetCount("verbose"); v > 0 {
		verbosity += v
	}
	var logPath *string
	if cfg.Log.File != "" {
		logPath = &cfg.Log.File
	}
	commonlog.Configure(verbosity, logPath)

	switch mode, _ := cmd.Flags().GetString("color"); mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
	default:
		return fmt.Errorf("--color must be auto, on or off, got %q", mode)
	}
	return nil
}
