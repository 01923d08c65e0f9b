package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkglens/internal/manager"
	"github.com/blackwell-systems/pkglens/internal/output"
)

var (
	verifyAll bool

	verifyCmd = &cobra.Command{
		Use:   "verify [manager] [name]",
		Short: "Run integrity checks on installed packages",
		Long: `Verify installed packages using each manager's own tooling: import
checks and pip-audit for pip, 'brew audit' for Homebrew, 'npm audit' for
npm globals.

Verification is fail-soft. A check that cannot run (auditing tool not
installed, no audit metadata) yields status "unknown" with an
explanation, not an error. Each package's latest result overwrites the
previous one; pkglens keeps no per-check history.

With --all, every collected package is verified with a bounded worker
pool and a summary is printed. One slow or failing package never blocks
the rest of the batch.`,
		Example: `  # Verify one package
  pkglens verify pip requests

  # Verify everything
  pkglens verify --all`,
		RunE: runVerify,
	}
)

func init() {
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "verify every collected package")
}

func runVerify(cmd *cobra.Command, args []string) error {
	if !verifyAll && len(args) != 2 {
		return fmt.Errorf("expected <manager> <name> arguments, or --all")
	}

	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	if verifyAll {
		return runVerifyAll(cmd, p)
	}

	id, err := parseIdentityArgs(args)
	if err != nil {
		return err
	}

	rec, err := findRecord(cmd, p, id)
	if err != nil {
		return err
	}

	spinner := output.NewSpinner(fmt.Sprintf("Verifying %s", id.Key()))
	spinner.Start()
	status, err := p.verifier.VerifyOne(cmd.Context(), rec)
	spinner.Stop()
	if err != nil {
		p.log.Warn("verification result not persisted")
	}

	fmt.Printf("%s: %s", id.Key(), status.Status)
	if status.Message != "" {
		fmt.Printf(" (%s)", status.Message)
	}
	fmt.Println()
	return nil
}

func runVerifyAll(cmd *cobra.Command, p *pipeline) error {
	spinner := output.NewSpinner("Collecting packages")
	spinner.Start()
	result := p.collector.Collect(cmd.Context())
	spinner.UpdateMessage(fmt.Sprintf("Verifying %d packages", len(result.Records)))

	batch, err := p.verifier.VerifyAll(cmd.Context(), result.Records)
	spinner.Stop()
	if err != nil {
		return err
	}

	fmt.Print(output.RenderVerificationTable(result.Records, batch.Statuses))
	fmt.Println()
	fmt.Printf("Verified %d packages: %d verified, %d failed, %d unknown\n",
		batch.Summary.Total,
		batch.Summary.Counts[manager.StatusVerified],
		batch.Summary.Counts[manager.StatusFailed],
		batch.Summary.Counts[manager.StatusUnknown])
	return nil
}

// findRecord lists the identity's manager and returns the matching record.
func findRecord(cmd *cobra.Command, p *pipeline, id manager.Identity) (manager.PackageRecord, error) {
	adapter, err := p.registry.Lookup(id.Manager)
	if err != nil {
		return manager.PackageRecord{}, err
	}
	if !adapter.Detect() {
		return manager.PackageRecord{}, &manager.ToolMissingError{Manager: id.Manager, Tool: string(id.Manager)}
	}
	records, err := adapter.List(cmd.Context())
	if err != nil {
		return manager.PackageRecord{}, err
	}
	for _, rec := range records {
		if rec.Name == id.Name {
			return rec, nil
		}
	}
	return manager.PackageRecord{}, fmt.Errorf("package %s not found", id.Key())
}
