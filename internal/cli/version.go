package cli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scbrown/respec/internal/cmdparse"
	"github.com/scbrown/respec/internal/config"
	"github.com/scbrown/respec/internal/interp"
)

// Version and Commit are set at build time via -ldflags.
//
//	go build -ldflags "-X github.com/scbrown/respec/internal/cli.Version=v0.3.0
//	  -X github.com/scbrown/respec/internal/cli.Commit=48cae1d"
var (
	Version = ""
	Commit  = ""
)

var versionEngine bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and commit hash",
	Long: `Print the respec version string.

When built from a tagged release, shows the release version.
Otherwise shows "dev". The git commit hash is included when known.

With --engine, also resolves the engine command respec would run in the
current directory (binstub, bundle exec or bare engine) and prints the
first line of its --version output.`,
	Example: `  respecctl version
  respec v0.3.0 (48cae1d)

  respecctl version --engine
  respec dev (48cae1d)
  engine: bundle exec rspec (RSpec 3.13)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(versionString())
		if !versionEngine {
			return nil
		}
		line, err := engineVersion(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(line)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionEngine, "engine", false, "also report the resolved engine and its version")
	rootCmd.AddCommand(versionCmd)
}

// versionString formats the line printed by respecctl version.
func versionString() string {
	v := Version
	if v == "" {
		v = "dev"
	}

	c := Commit
	if c == "" {
		c = commitFromBuildInfo()
	}

	if c != "" {
		return fmt.Sprintf("respec %s (%s)", v, shortCommit(c))
	}
	return fmt.Sprintf("respec %s", v)
}

// engineVersion runs the engine prefix respec would use here with
// --version and formats "engine: <prefix> (<first output line>)".
func engineVersion(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	prefix := interp.New(ctx, nil, interpOptions(cfg)).Prefix()

	var out bytes.Buffer
	c := exec.CommandContext(ctx, prefix[0], append(prefix[1:], "--version")...)
	c.Stdout = &out
	c.Stderr = &out
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("engine version: %s: %w", cmdparse.Join(prefix), err)
	}

	first := ""
	for _, l := range strings.Split(out.String(), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			first = l
			break
		}
	}
	return fmt.Sprintf("engine: %s (%s)", cmdparse.Join(prefix), first), nil
}

// commitFromBuildInfo extracts vcs.revision from Go's embedded build info.
func commitFromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// shortCommit returns the first 7 characters of a commit hash.
func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
