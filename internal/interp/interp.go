// Package interp turns respec's short invocation tokens into an rspec
// command line.
//
// Interpretation happens in two phases. Classification walks the tokens in
// order and records intents: literal arguments, file arguments, and
// references to stored failures. Resolution runs once all tokens are seen,
// so a FAILURES= override anywhere on the line decides which failure store
// backs an earlier "f" or numeric selector.
package interp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/scbrown/respec/internal/failures"
)

// Separator ends token interpretation; everything after it goes to the
// engine verbatim.
const Separator = "--"

// FilterFlag is the engine flag that restricts a run to matching examples.
const FilterFlag = "-e"

// Defaults used when the corresponding Options field is empty.
const (
	DefaultEngine     = "rspec"
	DefaultBinstub    = "bin/rspec"
	DefaultGemfile    = "Gemfile"
	DefaultDir        = "spec"
	DefaultTestSuffix = "_spec.rb"
)

// valueOptions are engine options whose value is the following token.
var valueOptions = map[string]bool{
	"-I":                true,
	"-r":                true,
	"--require":         true,
	"-f":                true,
	"--format":          true,
	"-o":                true,
	"--out":             true,
	"--seed":            true,
	"--order":           true,
	"-t":                true,
	"--tag":             true,
	"-l":                true,
	"--line_number":     true,
	"-e":                true,
	"--example":         true,
	"-P":                true,
	"--pattern":         true,
	"--exclude-pattern": true,
	"--default-path":    true,
}

var digitsRe = regexp.MustCompile(`^[0-9]+$`)

// ChangedLister reports test files changed since the last commit. scope
// restricts the result to the given files and directories.
type ChangedLister interface {
	ListChangedTestFiles(ctx context.Context, scope []string) ([]string, error)
}

// Options is the configuration an App interprets tokens against.
type Options struct {
	// FailuresPath is the failure store consulted by "f" and numeric
	// selectors unless a FAILURES= token overrides it.
	FailuresPath string
	Engine       string
	BinstubPath  string
	// GemfilePath is the dependency lock marker; when it exists the engine
	// runs through "bundle exec".
	GemfilePath string
	DefaultDir  string
	TestSuffix  string
	// RecorderPath is the registration shim handed to the engine when the
	// run tracks failures. Empty disables registration.
	RecorderPath string
	Changed      ChangedLister
	// Exists reports whether a path exists. Defaults to os.Stat.
	Exists func(path string) bool
}

func (o Options) withDefaults() Options {
	if o.FailuresPath == "" {
		o.FailuresPath = failures.DefaultPath()
	}
	if o.Engine == "" {
		o.Engine = DefaultEngine
	}
	if o.BinstubPath == "" {
		o.BinstubPath = DefaultBinstub
	}
	if o.GemfilePath == "" {
		o.GemfilePath = DefaultGemfile
	}
	if o.DefaultDir == "" {
		o.DefaultDir = DefaultDir
	}
	if o.TestSuffix == "" {
		o.TestSuffix = DefaultTestSuffix
	}
	if o.Exists == nil {
		o.Exists = pathExists
	}
	return o
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type intentKind int

const (
	intentLiteral intentKind = iota
	intentAllFailures
	intentFailure
)

// intent is one classified token awaiting resolution.
type intent struct {
	kind  intentKind
	args  []string // intentLiteral
	index int      // intentFailure, 1-based
	token string
}

// App is an interpreted invocation. It is immutable once New returns.
type App struct {
	opts Options
	raw  []string

	intents      []intent
	files        []string
	failuresPath string
	helpOnly     bool
	changedOnly  bool

	generated  []string
	rerun      bool
	tracking   bool
	noFailures bool
	warnings   []string
	errs       []error

	stored    []string
	storedErr error
	loaded    bool
}

// New interprets tokens. It never fails: bad selectors are reported by Err
// and soft problems by Warnings.
func New(ctx context.Context, tokens []string, opts Options) *App {
	opts = opts.withDefaults()
	a := &App{
		opts:         opts,
		failuresPath: opts.FailuresPath,
		tracking:     true,
	}

	args := tokens
	for i, tok := range tokens {
		if tok == Separator {
			args = tokens[:i]
			a.raw = append([]string(nil), tokens[i+1:]...)
			break
		}
	}

	a.classify(args)
	a.resolve(ctx)
	return a
}

func (a *App) classify(tokens []string) {
	passNext := false
	for _, tok := range tokens {
		switch {
		case passNext:
			a.literal(tok)
			passNext = false
		case valueOptions[tok]:
			a.literal(tok)
			passNext = true
		case a.opts.Exists(failures.StripLocation(tok)):
			a.files = append(a.files, tok)
		case strings.EqualFold(tok, "help") || strings.EqualFold(tok, "--help"):
			a.helpOnly = true
		case strings.HasPrefix(tok, "-"):
			a.literal(tok)
		case strings.HasPrefix(tok, failures.OverrideKey+"="):
			a.failuresPath = strings.TrimPrefix(tok, failures.OverrideKey+"=")
		case tok == "d":
			a.changedOnly = true
		case tok == "f":
			a.intents = append(a.intents, intent{kind: intentAllFailures, token: tok})
		case digitsRe.MatchString(tok):
			n, err := strconv.Atoi(tok)
			if err != nil {
				n = -1
			}
			a.intents = append(a.intents, intent{kind: intentFailure, index: n, token: tok})
		default:
			a.literal(FilterFlag, escapePattern(tok))
		}
	}
}

func (a *App) literal(args ...string) {
	a.intents = append(a.intents, intent{kind: intentLiteral, args: args})
}

func (a *App) resolve(ctx context.Context) {
	var out []string
	for _, in := range a.intents {
		switch in.kind {
		case intentLiteral:
			out = append(out, in.args...)
		case intentAllFailures:
			locs, err := a.storedFailures()
			if errors.Is(err, failures.ErrMissing) {
				a.warn("no fail file - ignoring 'f' argument")
				continue
			}
			if err != nil {
				a.warn(fmt.Sprintf("%v - ignoring 'f' argument", err))
				continue
			}
			if len(locs) == 0 {
				a.noFailures = true
				continue
			}
			for _, loc := range locs {
				out = append(out, FilterFlag, loc)
			}
			a.selectFailures()
		case intentFailure:
			locs, err := a.storedFailures()
			if err != nil && !errors.Is(err, failures.ErrMissing) {
				a.warn(err.Error())
			}
			if in.index < 1 || in.index > len(locs) {
				a.errs = append(a.errs, fmt.Errorf("invalid failure: %s for (1..%d)", displayIndex(in), len(locs)))
				continue
			}
			out = append(out, FilterFlag, locs[in.index-1])
			a.selectFailures()
		}
	}

	files := append([]string(nil), a.files...)
	if a.rerun {
		for i, f := range files {
			files[i] = failures.StripLocation(f)
		}
	}
	if a.changedOnly {
		files = a.changedFiles(ctx, files)
	}
	if len(files) == 0 {
		files = []string{a.opts.DefaultDir}
	}
	a.files = files
	a.generated = append(out, files...)
}

// selectFailures marks that stored failures are being replayed. The run
// then leaves the store alone so a partial rerun does not clobber it.
func (a *App) selectFailures() {
	a.rerun = true
	a.tracking = false
}

// storedFailures reads the failure store once, from the final path.
func (a *App) storedFailures() ([]string, error) {
	if !a.loaded {
		a.stored, a.storedErr = failures.Load(a.failuresPath)
		a.loaded = true
	}
	return a.stored, a.storedErr
}

func (a *App) changedFiles(ctx context.Context, files []string) []string {
	if a.opts.Changed == nil {
		a.warn("version control unavailable - ignoring 'd' argument")
		return files
	}

	scope := make([]string, 0, len(files))
	for _, f := range files {
		scope = append(scope, failures.StripLocation(f))
	}
	if len(scope) == 0 {
		scope = []string{a.opts.DefaultDir}
	}

	changed, err := a.opts.Changed.ListChangedTestFiles(ctx, scope)
	if err != nil {
		a.warn(fmt.Sprintf("listing changed files: %v - ignoring 'd' argument", err))
		return files
	}

	var out []string
	for _, c := range changed {
		if strings.HasSuffix(c, a.opts.TestSuffix) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		a.warn("no changed test files")
	}
	return out
}

func (a *App) warn(msg string) {
	a.warnings = append(a.warnings, msg)
}

func displayIndex(in intent) string {
	if in.index < 0 {
		return in.token
	}
	return strconv.Itoa(in.index)
}

// escapePattern backslash-escapes '$' so the engine's example matcher
// takes it literally.
func escapePattern(s string) string {
	return strings.ReplaceAll(s, "$", `\$`)
}

// Prefix returns the leading words of the engine command: the binstub if
// present, else the engine through bundler if a Gemfile is present, else
// the bare engine.
func (a *App) Prefix() []string {
	if a.opts.Exists(a.opts.BinstubPath) {
		return []string{a.opts.BinstubPath}
	}
	if a.opts.Exists(a.opts.GemfilePath) {
		return []string{"bundle", "exec", a.opts.Engine}
	}
	return []string{a.opts.Engine}
}

// RecorderArgs returns the arguments that register the failure recorder,
// or nil when this run does not track failures.
func (a *App) RecorderArgs() []string {
	if !a.tracking || a.opts.RecorderPath == "" {
		return nil
	}
	return []string{a.opts.RecorderPath}
}

// GeneratedArgs returns classified arguments followed by file arguments.
func (a *App) GeneratedArgs() []string {
	return append([]string(nil), a.generated...)
}

// RawArgs returns the tokens that followed "--".
func (a *App) RawArgs() []string {
	return append([]string(nil), a.raw...)
}

// Files returns the resolved file and directory arguments.
func (a *App) Files() []string {
	return append([]string(nil), a.files...)
}

// Command returns the full engine command line.
func (a *App) Command() []string {
	cmd := a.Prefix()
	cmd = append(cmd, a.generated...)
	cmd = append(cmd, a.raw...)
	return append(cmd, a.RecorderArgs()...)
}

// HelpOnly reports whether the user asked for help instead of a run.
func (a *App) HelpOnly() bool { return a.helpOnly }

// Err returns the joined numeric selector errors, or nil.
func (a *App) Err() error { return errors.Join(a.errs...) }

// Warnings returns non-fatal problems found while interpreting.
func (a *App) Warnings() []string { return append([]string(nil), a.warnings...) }

// NoFailures reports that "f" was given and the failure store is empty.
func (a *App) NoFailures() bool { return a.noFailures }

// Rerun reports whether stored failures were selected.
func (a *App) Rerun() bool { return a.rerun }

// Tracking reports whether this run should update the failure store.
func (a *App) Tracking() bool { return a.tracking }

// FailuresPath returns the failure store path after FAILURES= overrides.
func (a *App) FailuresPath() string { return a.failuresPath }
