package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkglens/internal/output"
)

var (
	exportOutput string

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export the package inventory as CSV",
		Long: `Collect the current package set and write it as CSV with the columns
manager, name, version, size_bytes, install_path.

Rows are ordered by manager then name, so repeated exports of an
unchanged system produce identical files.`,
		Example: `  # Write to a file
  pkglens export -o packages.csv

  # Write to stdout (pipe into other tools)
  pkglens export | column -t -s,`,
		RunE: runExport,
	}
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	result := p.collector.Collect(cmd.Context())

	w := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := output.WriteCSV(w, result.Records); err != nil {
		return err
	}

	if exportOutput != "" {
		fmt.Fprintf(os.Stderr, "Exported %d packages to %s\n", len(result.Records), exportOutput)
	}
	return nil
}
