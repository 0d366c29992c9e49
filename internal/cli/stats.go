package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scbrown/respec/internal/model"
	"github.com/scbrown/respec/internal/store"
	"github.com/spf13/cobra"
)

var statsTop int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show summary statistics about recorded runs",
	Long: `Display a summary of the run history: total runs, how many passed,
failed or were reruns, time spent in the engine, the date range, recent
activity counts and the locations that fail most often.`,
	Example: `  respecctl stats
  respecctl stats --top 10
  respecctl stats --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openHistory()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()
		st, err := s.Stats(ctx)
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		top, err := s.FlakyLocations(ctx, store.FlakyOpts{Top: statsTop})
		if err != nil {
			return fmt.Errorf("top failures: %w", err)
		}

		if jsonOutput {
			if top == nil {
				top = []model.FlakyLocation{}
			}
			out := struct {
				store.Stats
				TopFailures []model.FlakyLocation `json:"top_failures"`
			}{st, top}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		printStatsText(st, top)
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsTop, "top", 5, "number of most frequent failures to show")
	rootCmd.AddCommand(statsCmd)
}

func printStatsText(st store.Stats, top []model.FlakyLocation) {
	au := colorsFor(os.Stdout)

	fmt.Printf("Total runs:         %d\n", st.TotalRuns)
	if st.TotalRuns == 0 {
		return
	}
	fmt.Printf("Passed:             %d (%.0f%%)\n", st.PassedRuns, 100*float64(st.PassedRuns)/float64(st.TotalRuns))
	fmt.Printf("Failed:             %d\n", st.FailedRuns)
	fmt.Printf("Reruns:             %d\n", st.RerunRuns)
	fmt.Printf("Time in engine:     %s\n", st.TotalDuration.Round(time.Second))
	fmt.Printf("Failing locations:  %d\n", st.UniqueLocations)

	fmt.Println()
	fmt.Printf("Date range:         %s to %s\n",
		st.Earliest.Local().Format("2006-01-02"), st.Latest.Local().Format("2006-01-02"))
	fmt.Printf("Last run:           %s\n", humanize.Time(st.Latest))

	fmt.Println()
	fmt.Printf("Last 24h:           %d\n", st.Last24h)
	fmt.Printf("Last 7d:            %d\n", st.Last7d)
	fmt.Printf("Last 30d:           %d\n", st.Last30d)

	if len(top) > 0 {
		fmt.Println()
		fmt.Println(au.Bold("Most frequent failures:"))
		for _, fl := range top {
			fmt.Printf("  %-50s %d\n", truncate(fl.Location, 50), fl.Count)
		}
	}
}
