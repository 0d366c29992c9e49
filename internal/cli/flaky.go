package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scbrown/respec/internal/store"
	"github.com/spf13/cobra"
)

var (
	flakyTop   int
	flakySince string
	flakyHere  bool
)

var flakyCmd = &cobra.Command{
	Use:   "flaky",
	Short: "Show the examples that fail most often",
	Long: `Flaky ranks failing locations across the run history by how many times
they failed. Ties go to the location that failed most recently.

Only tracked runs report locations: reruns of stored failures ("respec f" or
"respec <n>") do not register the recorder, so they count as runs but never
as failures here.`,
	Example: `  respecctl flaky
  respecctl flaky --top 5 --since 7d
  respecctl flaky --here --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openHistory()
		if err != nil {
			return err
		}
		defer s.Close()

		opts := store.FlakyOpts{Top: flakyTop}
		if flakySince != "" {
			d, err := parseDuration(flakySince)
			if err != nil {
				return fmt.Errorf("invalid --since value %q: %w", flakySince, err)
			}
			opts.Since = time.Now().Add(-d)
		}
		if flakyHere {
			if opts.Dir, err = os.Getwd(); err != nil {
				return fmt.Errorf("current directory: %w", err)
			}
		}

		locs, err := s.FlakyLocations(context.Background(), opts)
		if err != nil {
			return fmt.Errorf("flaky locations: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(locs)
		}

		if len(locs) == 0 {
			fmt.Println("No failures recorded.")
			return nil
		}

		tbl := NewTable(os.Stdout, "LOCATION", "FAILURES", "RUNS", "LAST FAILED")
		for _, fl := range locs {
			tbl.Row(
				truncate(fl.Location, 70),
				strconv.Itoa(fl.Count),
				strconv.Itoa(fl.Runs),
				humanize.Time(fl.LastFailed),
			)
		}
		return tbl.Flush()
	},
}

func init() {
	flakyCmd.Flags().IntVar(&flakyTop, "top", 10, "number of locations to show")
	flakyCmd.Flags().StringVar(&flakySince, "since", "", "only count failures within this duration (e.g., 24h, 7d)")
	flakyCmd.Flags().BoolVar(&flakyHere, "here", false, "only count runs started in the current directory")
	rootCmd.AddCommand(flakyCmd)
}
