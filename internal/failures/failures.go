// Package failures reads and writes the failure store: a plain text file
// holding one failing test location per line, as recorded by the last
// tracked run.
package failures

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// EnvVar names the environment variable that overrides the store path.
const EnvVar = "RESPEC_FAILURES"

// OverrideKey is the token prefix key (KEY=VALUE) that overrides the store
// path for a single invocation.
const OverrideKey = "FAILURES"

// locationSuffixRe matches a trailing line list (":12", ":12:40") or an
// example id ("[1:2:1]").
var locationSuffixRe = regexp.MustCompile(`(?::[0-9]+)+$|\[[^\]]*\]$`)

// ErrMissing is returned by Load when the store file does not exist.
var ErrMissing = errors.New("failure store does not exist")

// DefaultPath returns ~/.respec_failures, or .respec_failures in the
// current directory when the home directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".respec_failures"
	}
	return filepath.Join(home, ".respec_failures")
}

// Load returns the stored locations in file order. Blank lines are skipped
// and surrounding whitespace is trimmed. A missing file yields ErrMissing.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("reading failures: %w", err)
	}

	var locs []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		locs = append(locs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading failures: %w", err)
	}
	return locs, nil
}

// Write replaces the store at path with locs, one per line. The data is
// written to a temporary file in the same directory and renamed into place,
// so a concurrent reader sees either the old or the new contents. This
// needs write access to the directory holding the store. A symlinked store
// is written through to its target. An empty locs truncates the store.
func Write(path string, locs []string) error {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	var buf bytes.Buffer
	for _, l := range locs {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("writing failures: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing failures: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing failures: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing failures: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing failures: %w", err)
	}
	return nil
}

// StripLocation removes a trailing line number list or bracketed example
// id from a location, leaving the file path.
func StripLocation(loc string) string {
	return locationSuffixRe.ReplaceAllString(loc, "")
}
