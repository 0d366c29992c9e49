// Package vcs lists test files changed in a git working tree.
package vcs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Git lists changed files by running git in Dir (the current directory when
// empty).
type Git struct {
	Dir    string
	Binary string // defaults to "git"
}

// ListChangedTestFiles returns files added, modified, renamed or untracked
// relative to HEAD, restricted to scope. Deleted files are omitted. Scope
// and returned paths are relative to Dir. Filtering by test suffix is left
// to the caller.
func (g Git) ListChangedTestFiles(ctx context.Context, scope []string) ([]string, error) {
	prefix, err := g.run(ctx, "rev-parse", "--show-prefix")
	if err != nil {
		return nil, err
	}

	args := []string{"status", "--porcelain", "--untracked-files=all", "--"}
	args = append(args, scope...)
	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return relativeTo(strings.TrimSpace(string(prefix)), ParsePorcelain(out)), nil
}

func (g Git) run(ctx context.Context, args ...string) ([]byte, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = g.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("git %s: %s", args[0], msg)
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}

// relativeTo rewrites repository-root paths as paths relative to the
// subdirectory prefix (as printed by rev-parse --show-prefix).
func relativeTo(prefix string, paths []string) []string {
	if prefix == "" {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(filepath.FromSlash(prefix), filepath.FromSlash(p))
		if err != nil {
			continue
		}
		out = append(out, rel)
	}
	return out
}

// ParsePorcelain extracts paths from `git status --porcelain` (v1) output.
// Renames yield the new path; deletions are skipped; quoted paths are
// unquoted.
func ParsePorcelain(out []byte) []string {
	var paths []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if len(line) < 4 {
			continue
		}
		status, path := line[:2], line[3:]
		if status[0] == 'D' || status[1] == 'D' {
			continue
		}
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+len(" -> "):]
		}
		paths = append(paths, unquote(path))
	}
	return paths
}

func unquote(path string) string {
	if len(path) < 2 || path[0] != '"' || path[len(path)-1] != '"' {
		return path
	}
	var b strings.Builder
	s := path[1 : len(path)-1]
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
