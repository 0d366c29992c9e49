package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scbrown/respec/internal/cmdparse"
	"github.com/scbrown/respec/internal/store"
	"github.com/spf13/cobra"
)

var (
	historySince  string
	historyLimit  int
	historyFailed bool
	historyHere   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent respec runs",
	Long: `History displays the runs respec has recorded, newest first, with their
exit status, duration and number of failures. Reruns of stored failures
are not tracked, so they show a failure count of 0 even when they fail.`,
	Example: `  respecctl history
  respecctl history --since 7d --failed
  respecctl history --here --limit 5
  respecctl history --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openHistory()
		if err != nil {
			return err
		}
		defer s.Close()

		opts := store.ListOpts{
			FailedOnly: historyFailed,
			Limit:      historyLimit,
		}
		if historySince != "" {
			d, err := parseDuration(historySince)
			if err != nil {
				return fmt.Errorf("invalid --since value %q: %w", historySince, err)
			}
			opts.Since = time.Now().Add(-d)
		}
		if historyHere {
			if opts.Dir, err = os.Getwd(); err != nil {
				return fmt.Errorf("current directory: %w", err)
			}
		}

		runs, err := s.ListRuns(context.Background(), opts)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}

		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		tbl := NewTable(os.Stdout, "STARTED", "STATUS", "DURATION", "FAILURES", "COMMAND")
		// The fixed columns take roughly 45 characters.
		cmdWidth := max(20, tbl.Width()-45)
		for _, r := range runs {
			status := tbl.Green("pass")
			if !r.Passed() {
				status = tbl.Red("exit " + strconv.Itoa(r.ExitCode))
			}
			tbl.Row(
				humanize.Time(r.StartedAt),
				status,
				r.Duration.Round(10*time.Millisecond).String(),
				strconv.Itoa(len(r.Failures)),
				truncate(cmdparse.Join(r.Command), cmdWidth),
			)
		}
		return tbl.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "", "show runs within this duration (e.g., 30m, 24h, 7d)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of results")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "only show runs that failed")
	historyCmd.Flags().BoolVar(&historyHere, "here", false, "only show runs started in the current directory")
	rootCmd.AddCommand(historyCmd)
}

// parseDuration parses a duration string that supports d (days), h (hours), m (minutes), s (seconds).
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	// Handle "d" suffix for days, which time.ParseDuration doesn't support.
	if strings.HasSuffix(s, "d") {
		numStr := s[:len(s)-1]
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", numStr)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
