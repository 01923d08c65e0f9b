package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkglens/internal/output"
)

var (
	historyClear bool

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show the uninstall history",
		Long: `Show packages removed over time, as detected by snapshot diffs between
collection passes.

Each entry records the manager, name, last-seen version, when the
removal was detected, and its source: "dashboard" for uninstalls pkglens
performed, "external" for packages that disappeared between passes
without pkglens involvement (e.g. 'brew uninstall' run by hand).

The log keeps the most recent 100 entries.`,
		Example: `  # Show removal history
  pkglens history

  # Clear the log
  pkglens history --clear`,
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "clear the uninstall history log")
}

func runHistory(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	if historyClear {
		if err := p.tracker.Clear(); err != nil {
			return err
		}
		fmt.Println("Uninstall history cleared.")
		return nil
	}

	fmt.Print(output.RenderHistoryTable(p.tracker.Entries()))
	return nil
}
