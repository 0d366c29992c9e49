package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/scbrown/respec/internal/cmdparse"
	"github.com/scbrown/respec/internal/config"
	"github.com/scbrown/respec/internal/interp"
	"github.com/scbrown/respec/internal/model"
	"github.com/scbrown/respec/internal/record"
	"github.com/scbrown/respec/internal/runner"
	"github.com/scbrown/respec/internal/store"
	"github.com/scbrown/respec/internal/vcs"
)

// Environment variables read by respec.
const (
	OptsEnvVar    = "RESPEC_OPTS"
	GemfileEnvVar = "BUNDLE_GEMFILE"
)

// Exit codes for outcomes decided before the engine runs.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitSelector = 2
)

// ExitError carries a process exit code out of a command. Err, when set, is
// reported on stderr.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

const respecHelp = `USAGE: respec RESPEC-ARGS ... [ -- RSPEC-ARGS ... ]

Run rspec recording failed examples for easy rerunning later.

RESPEC-ARGS may consist of:

  f             Rerun all failed examples
  <integer>     Rerun only the n-th failure
  d             Run test files changed since the last commit
  <file name>   Run specs in these files
  FAILURES=...  Use this failure store for this run
  <other>       Run only examples matching this pattern
  --help        This!  (Also 'help'.)
  -<anything>   Passed directly to rspec.

RSPEC-ARGS may follow a '--' argument, and are also passed
directly to rspec.

Extra RESPEC-ARGS are read from $RESPEC_OPTS. Use respecctl to inspect
stored failures and past runs.
`

// respecCmd is the root command of the respec binary. It takes no flags of
// its own: every argument is an interpretation token.
var respecCmd = &cobra.Command{
	Use:                "respec [TOKENS...] [-- RSPEC-ARGS...]",
	Short:              "Run rspec recording failed examples for easy rerunning later",
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := runRespec(cmd.Context(), args)
		if code != ExitOK || err != nil {
			return &ExitError{Code: code, Err: err}
		}
		return nil
	},
}

func init() {
	respecCmd.SetHelpTemplate(respecHelp)
}

// ExecuteRespec runs the respec command and returns the process exit code.
func ExecuteRespec() int {
	err := respecCmd.Execute()
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			printError(ee.Err)
		}
		return ee.Code
	}
	printError(err)
	return ExitFailure
}

// runRespec interprets args, runs the engine and records the outcome. The
// returned code is the process exit code.
func runRespec(ctx context.Context, args []string) (int, error) {
	setupLogging(os.Stderr, os.Getenv)

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		warn(fmt.Sprintf("ignoring config %s: %v", configPath, err))
		cfg = &config.Config{}
	}

	tokens, err := withEnvOpts(args, os.Getenv(OptsEnvVar))
	if err != nil {
		return ExitSelector, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ExitFailure, fmt.Errorf("current directory: %w", err)
	}

	shim, err := record.InstallShim(record.ShimDir())
	if err != nil {
		warn(fmt.Sprintf("failures will not be recorded: %v", err))
		shim = ""
	}

	opts := interpOptions(cfg)
	opts.RecorderPath = shim
	opts.Changed = vcs.Git{Dir: cwd}

	app := interp.New(ctx, tokens, opts)
	for _, w := range app.Warnings() {
		warn(w)
	}
	if app.HelpOnly() {
		fmt.Print(respecHelp)
		return ExitOK, nil
	}
	if err := app.Err(); err != nil {
		return ExitSelector, err
	}
	if app.NoFailures() {
		fmt.Println("No specs failed!")
		return ExitOK, nil
	}

	var rec *record.Recorder
	if len(app.RecorderArgs()) > 0 {
		rec = record.New(app.FailuresPath())
	}

	argv := app.Command()
	slog.Debug("running", "command", cmdparse.Join(argv), "tracking", rec != nil, "failures", app.FailuresPath())

	// The engine shares the terminal and handles interrupts itself; respec
	// stays alive to collect its events.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	started := time.Now()
	res, runErr := runner.Run(ctx, runner.Spec{
		Argv:     argv,
		Dir:      cwd,
		Recorder: rec,
		Suffix:   interp.DefaultTestSuffix,
	})

	recordHistory(ctx, cfg.ResolveHistoryPath(), model.Run{
		ID:        uuid.NewString(),
		StartedAt: started,
		Duration:  res.Duration,
		Command:   argv,
		Dir:       cwd,
		ExitCode:  res.ExitCode,
		Tracked:   res.Recorded,
		Rerun:     app.Rerun(),
		Failures:  res.Failures,
	}, runErr)

	if runErr != nil {
		if res.ExitCode != ExitOK {
			return res.ExitCode, runErr
		}
		return ExitFailure, runErr
	}
	return res.ExitCode, nil
}

// interpOptions builds interpreter options from the config and environment.
func interpOptions(cfg *config.Config) interp.Options {
	opts := interp.Options{
		FailuresPath: cfg.ResolveFailuresPath(os.Getenv),
		Engine:       cfg.Engine,
		GemfilePath:  os.Getenv(GemfileEnvVar),
		DefaultDir:   cfg.DefaultDir,
	}
	if cfg.Engine != "" {
		opts.BinstubPath = filepath.Join("bin", cfg.Engine)
	}
	return opts
}

// withEnvOpts inserts the tokens from RESPEC_OPTS after the user's tokens
// and before any "--" separator, so they are interpreted like typed ones.
func withEnvOpts(args []string, opts string) ([]string, error) {
	extra, err := cmdparse.Split(opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OptsEnvVar, err)
	}
	if len(extra) == 0 {
		return args, nil
	}

	out := make([]string, 0, len(args)+len(extra))
	for i, a := range args {
		if a == interp.Separator {
			out = append(out, extra...)
			return append(out, args[i:]...), nil
		}
		out = append(out, a)
	}
	return append(out, extra...), nil
}

// recordHistory appends the run to the history database. Failures are only
// logged: history never changes the outcome of a run.
func recordHistory(ctx context.Context, path string, run model.Run, runErr error) {
	if path == "" {
		return
	}
	// An engine that never started has nothing worth keeping.
	if errors.Is(runErr, runner.ErrEngineStart) {
		return
	}
	s, err := store.New(path)
	if err != nil {
		slog.Warn("opening run history", "path", path, "err", err)
		return
	}
	defer s.Close()
	if err := s.RecordRun(ctx, run); err != nil {
		slog.Warn("recording run history", "path", path, "err", err)
	}
}

// warn prints a non-fatal message to stderr, yellow on a terminal.
func warn(msg string) {
	fmt.Fprintln(os.Stderr, colorsFor(os.Stderr).Yellow(msg))
}

// printError prints err to stderr, red on a terminal.
func printError(err error) {
	fmt.Fprintln(os.Stderr, colorsFor(os.Stderr).Red("respec: "+err.Error()))
}
