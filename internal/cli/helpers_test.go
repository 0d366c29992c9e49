package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scbrown/respec/internal/config"
	"github.com/scbrown/respec/internal/model"
	"github.com/scbrown/respec/internal/store"
)

// captureStdout runs fn while capturing stdout, returning the output.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	out, _ := captureOutput(t, fn)
	return out
}

// captureOutput runs fn while capturing stdout and stderr.
func captureOutput(t *testing.T, fn func()) (stdout, stderr string) {
	t.Helper()

	oldOut := os.Stdout
	oldErr := os.Stderr
	rOut, wOut, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	rErr, wErr, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	os.Stdout = wOut
	os.Stderr = wErr

	// Drain concurrently so large outputs cannot fill the pipe.
	outc := make(chan string)
	errc := make(chan string)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, rOut)
		outc <- buf.String()
	}()
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, rErr)
		errc <- buf.String()
	}()

	defer func() {
		os.Stdout = oldOut
		os.Stderr = oldErr
	}()
	fn()

	wOut.Close()
	wErr.Close()
	return <-outc, <-errc
}

// resetFlags restores package-level flag state and points configPath at an
// empty file in a temp dir.
func resetFlags(t *testing.T) {
	t.Helper()
	jsonOutput = false
	historyPath = ""
	failuresPath = ""
	historySince, historyLimit, historyFailed, historyHere = "", 20, false, false
	flakyTop, flakySince, flakyHere = 10, "", false
	statsTop = 5
	exportFormat, exportSince = "json", ""
	versionEngine = false

	configPath = filepath.Join(t.TempDir(), "config.toml")
	t.Cleanup(func() { configPath = config.Path() })
	t.Setenv("NO_COLOR", "1")
	t.Setenv(DebugEnvVar, "")
}

// seedHistory creates a history database with three runs and returns its
// path.
func seedHistory(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "history.db")
	s, err := store.New(db)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC()
	runs := []model.Run{
		{ID: "r1", StartedAt: now.Add(-72 * time.Hour), Duration: 2 * time.Second, ExitCode: 1, Tracked: true,
			Command: []string{"rspec", "spec"}, Dir: "/proj", Failures: []string{"./spec/a_spec.rb:3", "./spec/b_spec.rb:7"}},
		{ID: "r2", StartedAt: now.Add(-2 * time.Hour), Duration: time.Second, ExitCode: 1, Rerun: true,
			Command: []string{"rspec", "-e", "./spec/a_spec.rb:3", "spec"}, Dir: "/proj", Failures: []string{"./spec/a_spec.rb:3"}},
		{ID: "r3", StartedAt: now.Add(-time.Hour), Duration: 3 * time.Second, ExitCode: 0, Tracked: true,
			Command: []string{"rspec", "-e", "user login", "spec"}, Dir: "/other"},
	}
	for _, r := range runs {
		if err := s.RecordRun(context.Background(), r); err != nil {
			t.Fatalf("seed run %s: %v", r.ID, err)
		}
	}
	return db
}

// chdir changes the working directory to dir for the duration of the test,
// restoring the previous one on cleanup (equivalent of Go 1.24's t.Chdir).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
