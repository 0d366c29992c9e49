// Package runner executes the test engine and relays the failures it reports
// to a record.Recorder.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/scbrown/respec/internal/record"
)

// ErrEmptyCommand is returned when Spec.Argv has no program.
var ErrEmptyCommand = errors.New("empty engine command")

// ErrEngineStart wraps failures to start the engine process.
var ErrEngineStart = errors.New("engine did not start")

// Spec describes one engine invocation.
type Spec struct {
	Argv []string
	Dir  string
	// Env entries are appended to the current environment.
	Env []string
	// Recorder receives reported failures. Nil means the run is not tracked
	// and no event stream is set up.
	Recorder *record.Recorder
	// Suffix identifies spec files when reducing shared example locations.
	Suffix string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result describes a finished engine run.
type Result struct {
	ExitCode int
	Duration time.Duration
	// Failures holds the locations the engine reported, in order.
	Failures []string
	// Recorded is set when the engine reported completion and the failure
	// store was rewritten.
	Recorded bool
}

// Run starts the engine, waits for it and replays its event stream into
// spec.Recorder. A non-zero exit is reported in Result, not as an error.
// An error with a populated Result means the engine ran but the failure
// store could not be written.
func Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{}, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdin = orReader(spec.Stdin, os.Stdin)
	cmd.Stdout = orWriter(spec.Stdout, os.Stdout)
	cmd.Stderr = orWriter(spec.Stderr, os.Stderr)
	env := append(os.Environ(), spec.Env...)

	var eventsPath string
	if spec.Recorder != nil {
		f, err := os.CreateTemp("", "respec-events-*.ndjson")
		if err != nil {
			return Result{}, fmt.Errorf("creating event file: %w", err)
		}
		eventsPath = f.Name()
		f.Close()
		defer os.Remove(eventsPath)
		env = append(env, record.EventsEnvVar+"="+eventsPath)
	}
	cmd.Env = env

	slog.Debug("starting engine", "argv", spec.Argv, "dir", spec.Dir, "events", eventsPath)
	start := time.Now()
	runErr := cmd.Run()
	res := Result{Duration: time.Since(start)}

	if runErr != nil {
		var ee *exec.ExitError
		if !errors.As(runErr, &ee) {
			return Result{}, fmt.Errorf("%w: %s: %w", ErrEngineStart, spec.Argv[0], runErr)
		}
		res.ExitCode = ee.ExitCode()
		if res.ExitCode < 0 {
			// Killed by a signal.
			res.ExitCode = 1
		}
	}
	slog.Debug("engine finished", "exit_code", res.ExitCode, "duration", res.Duration)

	if spec.Recorder == nil {
		return res, nil
	}

	f, err := os.Open(eventsPath)
	if err != nil {
		return res, fmt.Errorf("opening event file: %w", err)
	}
	defer f.Close()

	completed, err := spec.Recorder.Consume(f, spec.Suffix)
	res.Failures = spec.Recorder.Failures()
	res.Recorded = completed
	if err != nil {
		return res, err
	}
	if !completed {
		slog.Warn("engine did not report completion; failure store left unchanged", "path", spec.Recorder.Path())
	}
	return res, nil
}

func orReader(r, def io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return def
}

func orWriter(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
