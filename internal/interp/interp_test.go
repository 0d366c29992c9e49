package interp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir      string
	failPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{dir: dir, failPath: filepath.Join(dir, "failures.txt")}
}

func (f *fixture) touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func (f *fixture) failures(t *testing.T, path string, locs ...string) {
	t.Helper()
	var b strings.Builder
	for _, l := range locs {
		b.WriteString(l + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func (f *fixture) opts() Options {
	return Options{
		FailuresPath: f.failPath,
		BinstubPath:  filepath.Join(f.dir, "bin", "rspec"),
		GemfilePath:  filepath.Join(f.dir, "Gemfile"),
		RecorderPath: "/shim/recorder.rb",
	}
}

func (f *fixture) app(t *testing.T, tokens ...string) *App {
	t.Helper()
	return New(context.Background(), tokens, f.opts())
}

type fakeLister struct {
	files []string
	err   error
	scope []string
}

func (l *fakeLister) ListChangedTestFiles(_ context.Context, scope []string) ([]string, error) {
	l.scope = scope
	return l.files, l.err
}

func TestFailuresPath(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, f.failPath, f.app(t).FailuresPath())
	assert.Equal(t, "overridden.txt", f.app(t, "FAILURES=overridden.txt").FailuresPath())
}

func TestPrefix(t *testing.T) {
	t.Run("binstub wins over gemfile", func(t *testing.T) {
		f := newFixture(t)
		stub := f.touch(t, "bin/rspec")
		f.touch(t, "Gemfile")
		assert.Equal(t, []string{stub}, f.app(t).Prefix())
	})
	t.Run("gemfile uses bundler", func(t *testing.T) {
		f := newFixture(t)
		f.touch(t, "Gemfile")
		assert.Equal(t, []string{"bundle", "exec", "rspec"}, f.app(t).Prefix())
	})
	t.Run("bare engine", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, []string{"rspec"}, f.app(t).Prefix())
	})
}

func TestRecorderArgs(t *testing.T) {
	f := newFixture(t)
	f.failures(t, f.failPath, "a")

	assert.Equal(t, []string{"/shim/recorder.rb"}, f.app(t).RecorderArgs())
	assert.Empty(t, f.app(t, "f").RecorderArgs())
	assert.Empty(t, f.app(t, "1").RecorderArgs())

	opts := f.opts()
	opts.RecorderPath = ""
	assert.Empty(t, New(context.Background(), nil, opts).RecorderArgs())
}

func TestGeneratedArgs(t *testing.T) {
	tests := []struct {
		name   string
		files  []string
		stored []string
		tokens []string
		want   []string
	}{
		{
			name:   "default directory when nothing given",
			tokens: nil,
			want:   []string{"spec"},
		},
		{
			name:   "dash arguments pass through",
			files:  []string{"file"},
			tokens: []string{"-a", "-b", "-c", "{dir}/file"},
			want:   []string{"-a", "-b", "-c", "{dir}/file"},
		},
		{
			name:   "options that need values",
			files:  []string{"file"},
			tokens: []string{"-I", "lib", "-t", "mytag", "{dir}/file"},
			want:   []string{"-I", "lib", "-t", "mytag", "{dir}/file"},
		},
		{
			name:   "option value is never classified",
			tokens: []string{"--seed", "1234", "--tag", "f", "-e", "help"},
			want:   []string{"--seed", "1234", "--tag", "f", "-e", "help", "spec"},
		},
		{
			name:   "all failures",
			stored: []string{"a", "b"},
			tokens: []string{"f"},
			want:   []string{"-e", "a", "-e", "b", "spec"},
		},
		{
			name:   "failure with spaces stays one argument",
			stored: []string{"a a"},
			tokens: []string{"f"},
			want:   []string{"-e", "a a", "spec"},
		},
		{
			name:   "n-th failure",
			stored: []string{"a", "b"},
			tokens: []string{"2"},
			want:   []string{"-e", "b", "spec"},
		},
		{
			name:   "existing file",
			files:  []string{"existing.rb"},
			tokens: []string{"{dir}/existing.rb"},
			want:   []string{"{dir}/existing.rb"},
		},
		{
			name:   "existing file with line number",
			files:  []string{"existing.rb"},
			tokens: []string{"{dir}/existing.rb:123"},
			want:   []string{"{dir}/existing.rb:123"},
		},
		{
			name:   "existing file with example id",
			files:  []string{"existing.rb"},
			tokens: []string{"{dir}/existing.rb[1:2]"},
			want:   []string{"{dir}/existing.rb[1:2]"},
		},
		{
			name:   "other tokens are example patterns",
			tokens: []string{"a", "b"},
			want:   []string{"-e", "a", "-e", "b", "spec"},
		},
		{
			name:   "pattern escapes dollar",
			tokens: []string{"a$b"},
			want:   []string{"-e", `a\$b`, "spec"},
		},
		{
			name:   "named file kept with numeric selector",
			files:  []string{"FILE"},
			stored: []string{"a"},
			tokens: []string{"{dir}/FILE", "1"},
			want:   []string{"-e", "a", "{dir}/FILE"},
		},
		{
			name:   "named file kept with f",
			files:  []string{"FILE"},
			stored: []string{"a"},
			tokens: []string{"{dir}/FILE", "f"},
			want:   []string{"-e", "a", "{dir}/FILE"},
		},
		{
			name:   "rerun truncates line numbers",
			files:  []string{"x.rb"},
			stored: []string{"a"},
			tokens: []string{"{dir}/x.rb:10", "f"},
			want:   []string{"-e", "a", "{dir}/x.rb"},
		},
		{
			name:   "rerun truncates example ids",
			files:  []string{"x.rb"},
			stored: []string{"a"},
			tokens: []string{"{dir}/x.rb[1:1]", "1"},
			want:   []string{"-e", "a", "{dir}/x.rb"},
		},
		{
			name:   "help is not forwarded",
			tokens: []string{"HELP", "--Help"},
			want:   []string{"spec"},
		},
		{
			name:   "failures override is not forwarded",
			tokens: []string{"FAILURES=/nowhere"},
			want:   []string{"spec"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for _, name := range tt.files {
				f.touch(t, name)
			}
			if tt.stored != nil {
				f.failures(t, f.failPath, tt.stored...)
			}
			tokens := make([]string, len(tt.tokens))
			for i, tok := range tt.tokens {
				tokens[i] = strings.ReplaceAll(tok, "{dir}", f.dir)
			}
			want := make([]string, len(tt.want))
			for i, w := range tt.want {
				want[i] = strings.ReplaceAll(w, "{dir}", f.dir)
			}

			app := f.app(t, tokens...)
			require.NoError(t, app.Err())
			assert.Equal(t, want, app.GeneratedArgs())
		})
	}
}

func TestFailuresOverrideAfterF(t *testing.T) {
	f := newFixture(t)
	other := f.failPath + "-overridden"
	f.failures(t, other, "a", "b")

	app := f.app(t, "f", "FAILURES="+other)
	assert.Equal(t, []string{"-e", "a", "-e", "b", "spec"}, app.GeneratedArgs())
	assert.Equal(t, other, app.FailuresPath())
}

func TestNumericSelectorBounds(t *testing.T) {
	f := newFixture(t)
	f.failures(t, f.failPath, "first", "second")

	app := f.app(t, "3")
	require.Error(t, app.Err())
	assert.Contains(t, app.Err().Error(), "invalid failure: 3 for (1..2)")
	assert.Equal(t, []string{"spec"}, app.GeneratedArgs())
	assert.False(t, app.Rerun())
	assert.True(t, app.Tracking())

	app = f.app(t, "2")
	require.NoError(t, app.Err())
	assert.Equal(t, []string{"-e", "second", "spec"}, app.GeneratedArgs())
	assert.True(t, app.Rerun())

	app = f.app(t, "0", "2", "9")
	assert.Contains(t, app.Err().Error(), "invalid failure: 0 for (1..2)")
	assert.Contains(t, app.Err().Error(), "invalid failure: 9 for (1..2)")
	assert.Equal(t, []string{"-e", "second", "spec"}, app.GeneratedArgs())
}

func TestNumericSelectorWithoutStore(t *testing.T) {
	f := newFixture(t)
	app := f.app(t, "1")
	require.Error(t, app.Err())
	assert.Equal(t, "invalid failure: 1 for (1..0)", app.Err().Error())
}

func TestFWithoutStore(t *testing.T) {
	f := newFixture(t)
	app := f.app(t, "f")
	require.NoError(t, app.Err())
	assert.Equal(t, []string{"no fail file - ignoring 'f' argument"}, app.Warnings())
	assert.Equal(t, []string{"spec"}, app.GeneratedArgs())
	assert.False(t, app.NoFailures())
	assert.True(t, app.Tracking())
}

func TestFWithEmptyStore(t *testing.T) {
	f := newFixture(t)
	f.failures(t, f.failPath)

	app := f.app(t, "f")
	require.NoError(t, app.Err())
	assert.True(t, app.NoFailures())
	assert.Empty(t, app.Warnings())
	assert.Equal(t, []string{"spec"}, app.GeneratedArgs())
}

func TestFileWithoutRerunKeepsLine(t *testing.T) {
	f := newFixture(t)
	path := f.touch(t, "x.rb")
	app := f.app(t, path+":10")
	assert.Equal(t, []string{path + ":10"}, app.Files())
	assert.False(t, app.Rerun())
}

func TestHelpOnly(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.app(t, "help").HelpOnly())
	assert.True(t, f.app(t, "--help").HelpOnly())
	assert.True(t, f.app(t, "a", "Help").HelpOnly())
	assert.False(t, f.app(t, "helper").HelpOnly())
	assert.False(t, f.app(t, "--", "--help").HelpOnly())
}

func TestRawArgs(t *testing.T) {
	f := newFixture(t)
	app := f.app(t, "--", "--blah", "f", "1")
	assert.Equal(t, []string{"--blah", "f", "1"}, app.RawArgs())
	assert.Equal(t, []string{"spec"}, app.GeneratedArgs())
}

func TestCommand(t *testing.T) {
	f := newFixture(t)
	f.touch(t, "Gemfile")
	app := f.app(t, "--", "-t", "TAG")
	assert.Equal(t,
		[]string{"bundle", "exec", "rspec", "spec", "-t", "TAG", "/shim/recorder.rb"},
		app.Command())
}

func TestCommandRerunOmitsRecorder(t *testing.T) {
	f := newFixture(t)
	f.failures(t, f.failPath, "a")
	app := f.app(t, "f", "--", "-b")
	assert.Equal(t, []string{"rspec", "-e", "a", "spec", "-b"}, app.Command())
}

func TestChangedFiles(t *testing.T) {
	t.Run("default scope", func(t *testing.T) {
		f := newFixture(t)
		lister := &fakeLister{files: []string{"spec/a_spec.rb", "spec/helper.rb", "spec/b_spec.rb"}}
		opts := f.opts()
		opts.Changed = lister

		app := New(context.Background(), []string{"d"}, opts)
		assert.Equal(t, []string{"spec"}, lister.scope)
		assert.Equal(t, []string{"spec/a_spec.rb", "spec/b_spec.rb"}, app.GeneratedArgs())
	})

	t.Run("scope from named files", func(t *testing.T) {
		f := newFixture(t)
		dir := filepath.Join(f.dir, "models")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		file := f.touch(t, "x_spec.rb")
		lister := &fakeLister{files: []string{filepath.Join(dir, "m_spec.rb")}}
		opts := f.opts()
		opts.Changed = lister

		app := New(context.Background(), []string{dir, file + ":3", "d"}, opts)
		assert.Equal(t, []string{dir, file}, lister.scope)
		assert.Equal(t, []string{filepath.Join(dir, "m_spec.rb")}, app.Files())
	})

	t.Run("no changes falls back to default directory", func(t *testing.T) {
		f := newFixture(t)
		opts := f.opts()
		opts.Changed = &fakeLister{}

		app := New(context.Background(), []string{"d"}, opts)
		assert.Equal(t, []string{"spec"}, app.GeneratedArgs())
		assert.Equal(t, []string{"no changed test files"}, app.Warnings())
	})

	t.Run("lister failure keeps files", func(t *testing.T) {
		f := newFixture(t)
		file := f.touch(t, "x_spec.rb")
		opts := f.opts()
		opts.Changed = &fakeLister{err: errors.New("not a git repository")}

		app := New(context.Background(), []string{file, "d"}, opts)
		assert.Equal(t, []string{file}, app.GeneratedArgs())
		require.Len(t, app.Warnings(), 1)
		assert.Contains(t, app.Warnings()[0], "not a git repository")
	})

	t.Run("no lister", func(t *testing.T) {
		f := newFixture(t)
		app := f.app(t, "d")
		assert.Equal(t, []string{"spec"}, app.GeneratedArgs())
		assert.Len(t, app.Warnings(), 1)
	})
}

func TestMultipleSelectors(t *testing.T) {
	f := newFixture(t)
	f.failures(t, f.failPath, "a", "b")

	app := f.app(t, "1", "2", "f")
	require.NoError(t, app.Err())
	assert.Equal(t, []string{"-e", "a", "-e", "b", "-e", "a", "-e", "b", "spec"}, app.GeneratedArgs())
	assert.False(t, app.Tracking())
}
