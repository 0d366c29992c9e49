package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/scbrown/respec/internal/cmdparse"
	"github.com/scbrown/respec/internal/model"
	"github.com/scbrown/respec/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportSince  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the raw run history",
	Long: `Export dumps recorded runs in JSON (one per line) or CSV format, oldest
first.

Output is written to stdout, suitable for piping to jq, spreadsheets, or
other processing tools. In CSV output the failure locations of a run are
joined with spaces.`,
	Example: `  respecctl export
  respecctl export --format csv > runs.csv
  respecctl export --since 2026-01-01
  respecctl export --since 2026-01-01T00:00:00Z | jq '.failures'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openHistory()
		if err != nil {
			return err
		}
		defer s.Close()

		format := exportFormat
		if jsonOutput {
			format = "json"
		}

		var opts store.ListOpts
		if exportSince != "" {
			t, err := parseSince(exportSince)
			if err != nil {
				return fmt.Errorf("invalid --since value %q: %w", exportSince, err)
			}
			opts.Since = t
		}

		runs, err := s.ListRuns(context.Background(), opts)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		// ListRuns is newest first; exports read better in order.
		for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
			runs[i], runs[j] = runs[j], runs[i]
		}

		switch format {
		case "json":
			return writeJSON(runs)
		case "csv":
			return writeCSV(runs)
		default:
			return fmt.Errorf("unsupported format %q (use json or csv)", format)
		}
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json or csv")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only export runs after this time (RFC3339 or YYYY-MM-DD)")
	rootCmd.AddCommand(exportCmd)
}

// parseSince parses a time string in RFC3339 or date-only format.
func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected RFC3339 (e.g. 2026-01-01T00:00:00Z) or date (e.g. 2026-01-01)")
}

// writeJSON writes runs as one JSON object per line (JSONL).
func writeJSON(runs []model.Run) error {
	enc := json.NewEncoder(os.Stdout)
	for _, r := range runs {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
	}
	return nil
}

// writeCSV writes runs as CSV with a header row.
func writeCSV(runs []model.Run) error {
	w := csv.NewWriter(os.Stdout)
	header := []string{"id", "started_at", "duration_ms", "exit_code", "tracked", "rerun", "dir", "command", "failures"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range runs {
		row := []string{
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
			strconv.Itoa(r.ExitCode),
			strconv.FormatBool(r.Tracked),
			strconv.FormatBool(r.Rerun),
			r.Dir,
			cmdparse.Join(r.Command),
			strings.Join(r.Failures, " "),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
