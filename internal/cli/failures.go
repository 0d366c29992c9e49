package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/scbrown/respec/internal/failures"
	"github.com/spf13/cobra"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List the failures respec f would rerun",
	Long: `Failures prints the locations recorded by the last tracked respec run,
numbered the way "respec <n>" selects them.

The store is read from RESPEC_FAILURES, the failures_path config key, or
~/.respec_failures, in that order.`,
	Example: `  respecctl failures
  respecctl failures --json
  RESPEC_FAILURES=.respec_failures respecctl failures`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		locs, err := failures.Load(failuresPath)
		missing := errors.Is(err, failures.ErrMissing)
		if err != nil && !missing {
			return fmt.Errorf("read failures: %w", err)
		}

		if jsonOutput {
			out := struct {
				Path     string   `json:"path"`
				Exists   bool     `json:"exists"`
				Failures []string `json:"failures"`
			}{failuresPath, !missing, locs}
			if out.Failures == nil {
				out.Failures = []string{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		if missing {
			fmt.Printf("No failure store at %s.\n", failuresPath)
			return nil
		}
		if len(locs) == 0 {
			fmt.Println("No specs failed!")
			return nil
		}

		tbl := NewTable(os.Stdout, "#", "LOCATION")
		for i, loc := range locs {
			tbl.Row(strconv.Itoa(i+1), loc)
		}
		return tbl.Flush()
	},
}

func init() {
	rootCmd.AddCommand(failuresCmd)
}
