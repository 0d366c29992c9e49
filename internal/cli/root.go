// Package cli defines the cobra command trees for the respec and respecctl
// binaries.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/scbrown/respec/internal/config"
	"github.com/scbrown/respec/internal/store"
)

// DebugEnvVar enables debug logging when set to a non-empty value.
const DebugEnvVar = "RESPEC_DEBUG"

var (
	historyPath  string
	failuresPath string
	jsonOutput   bool
)

// configPath is the path to the config file, settable for testing.
var configPath = config.Path()

// rootCmd is the top-level respecctl command.
var rootCmd = &cobra.Command{
	Use:   "respecctl",
	Short: "Inspect and configure respec",
	Long: `respecctl manages the state respec keeps between runs: the failure
store that "respec f" reruns, the run history, and the configuration file at
~/.respec/config.toml.

The run history is a SQLite database at ~/.respec/history.db (configurable
via --history or respecctl config history_db). All output commands support
--json for machine-readable output.`,
	Example: `  # Show the failures "respec f" would rerun
  respecctl failures

  # Recent runs and the examples that fail most often
  respecctl history --limit 10
  respecctl flaky --top 5 --since 7d

  # Keep the failure store per project
  respecctl config failures_path .respec_failures`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(os.Stderr, os.Getenv)
		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			slog.Warn("ignoring config", "path", configPath, "err", err)
			cfg = &config.Config{}
		}
		failuresPath = cfg.ResolveFailuresPath(os.Getenv)
		if !cmd.Flags().Changed("history") {
			historyPath = cfg.ResolveHistoryPath()
		}
		if cfg.DefaultFormat == "json" && !cmd.Flags().Changed("json") {
			jsonOutput = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", "path to the run history database")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

// openHistory opens the run history database.
func openHistory() (store.Store, error) {
	if historyPath == "" {
		return nil, fmt.Errorf("run history is disabled; enable it with: respecctl config history_db \"\"")
	}
	return store.New(historyPath)
}

// setupLogging installs the default slog logger: debug level on w when
// RESPEC_DEBUG is set, warnings only otherwise.
func setupLogging(w io.Writer, getenv func(string) string) {
	level := slog.LevelWarn
	if getenv(DebugEnvVar) != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// Execute runs the respecctl root command.
func Execute() error {
	return rootCmd.Execute()
}
