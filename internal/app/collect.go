package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkglens/internal/output"
)

var (
	collectJSON bool

	collectCmd = &cobra.Command{
		Use:   "collect",
		Short: "Collect installed packages from pip, Homebrew, and npm",
		Long: `Collect installed-package metadata from every detected manager and print
the merged inventory with per-package sizes and install paths.

Each manager is queried independently. A manager whose tool is missing,
or whose listing command fails, contributes zero packages and a warning;
the other managers still report. The same package name installed under
two managers appears twice, once per manager.

Collection also records a snapshot of the package set. Packages present
in the previous snapshot but gone now are appended to the uninstall
history (see 'pkglens history').`,
		Example: `  # Full inventory across all managers
  pkglens collect

  # Machine-readable output
  pkglens collect --json`,
		RunE: runCollect,
	}
)

func init() {
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "emit the collection result as JSON")
}

func runCollect(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	spinner := output.NewSpinner("Collecting packages")
	spinner.Start()
	result := p.collector.Collect(cmd.Context())
	spinner.Stop()

	removed, err := p.tracker.RecordSnapshot(result.Records)
	if err != nil {
		p.log.Warn("snapshot recording failed; history will miss this pass")
	}

	if collectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Print(output.RenderAdvisories(result.Advisories))
	fmt.Print(output.RenderPackageTable(result.Records))
	fmt.Println()
	fmt.Println(output.RenderStats(result.Stats))

	if len(removed) > 0 {
		fmt.Printf("\n%d package(s) removed since last collection:\n", len(removed))
		fmt.Print(output.RenderHistoryTable(removed))
	}

	return nil
}
