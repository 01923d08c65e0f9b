package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkglens/internal/output"
)

var (
	conflictsRulesFile string

	conflictsCmd = &cobra.Command{
		Use:   "conflicts",
		Short: "Detect conflicts across the collected package set",
		Long: `Scan the collected package set with a fixed table of heuristic rules:

  • the same package name installed under more than one manager
  • known-incompatible version pairs (e.g. old numpy with pandas 2.x)
  • an unusual number of very large packages
  • problems reported by 'pip check' and 'brew doctor'

This is a heuristic screen, not a dependency resolver. Findings carry a
severity (low, medium, high) and a suggested action; false positives
and false negatives are possible.`,
		Example: `  # Scan with the built-in rule table
  pkglens conflicts

  # Use a custom incompatibility table
  pkglens conflicts --rules ./rules.yaml`,
		RunE: runConflicts,
	}
)

func init() {
	conflictsCmd.Flags().StringVar(&conflictsRulesFile, "rules", "", "YAML file with a custom version-conflict table")
}

func runConflicts(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	spinner := output.NewSpinner("Scanning for conflicts")
	spinner.Start()
	result := p.collector.Collect(cmd.Context())
	findings := p.scanner.Scan(cmd.Context(), result.Records)
	spinner.Stop()

	fmt.Print(output.RenderAdvisories(result.Advisories))
	fmt.Print(output.RenderConflictTable(findings))
	return nil
}
