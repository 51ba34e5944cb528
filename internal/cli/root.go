// Package cli implements the tessera command tree. The CLI is a thin
// front end: it builds engine options from flags and the optional
// tessera.yaml file, calls the engine, and prints what it returns.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-qa/tessera/internal/config"
	"github.com/tessera-qa/tessera/internal/engine"
	"github.com/tessera-qa/tessera/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Test orchestration engine for script-based test cases",
	Long: `tessera discovers JSON test manifests under the cases, suites, and plans
roots, resolves a run target, executes the test scripts as subprocesses,
and persists a fully auditable run folder tree plus a global run index.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to tessera.yaml (default: search up the directory tree)")
	rootCmd.PersistentFlags().String("casesRoot", "", "Root directory of test case manifests")
	rootCmd.PersistentFlags().String("suitesRoot", "", "Root directory of suite manifests")
	rootCmd.PersistentFlags().String("plansRoot", "", "Root directory of plan manifests")
	rootCmd.PersistentFlags().String("runsRoot", "", "Root directory run folders are written under")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildOptions merges the config file (if any) with the root-level flags;
// flags win.
func buildOptions(cmd *cobra.Command, logger *slog.Logger) (engine.Options, error) {
	opts := engine.Options{Logger: logger}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		wd, err := os.Getwd()
		if err == nil {
			configPath = config.Search(wd)
		}
	}
	if configPath != "" {
		file, err := config.Load(configPath)
		if err != nil {
			return opts, err
		}
		logger.Debug("loaded configuration", "path", configPath)
		opts.Roots = store.Roots{Cases: file.CasesRoot, Suites: file.SuitesRoot, Plans: file.PlansRoot}
		opts.RunsRoot = file.RunsRoot
		opts.Interpreter = engine.Interpreter{
			Executable: file.Interpreter.Executable,
			Args:       file.Interpreter.Args,
			Version:    file.Interpreter.Version,
		}
		opts.DefaultTimeoutSec = file.DefaultTimeoutSec
	}

	if v, _ := cmd.Flags().GetString("casesRoot"); v != "" {
		opts.Roots.Cases = v
	}
	if v, _ := cmd.Flags().GetString("suitesRoot"); v != "" {
		opts.Roots.Suites = v
	}
	if v, _ := cmd.Flags().GetString("plansRoot"); v != "" {
		opts.Roots.Plans = v
	}
	if v, _ := cmd.Flags().GetString("runsRoot"); v != "" {
		opts.RunsRoot = v
	}
	return opts, nil
}
