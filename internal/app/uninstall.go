package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkglens/internal/manager"
	"github.com/blackwell-systems/pkglens/internal/output"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <manager> <name>",
	Short: "Uninstall a package through its manager",
	Long: `Uninstall a package by delegating to its manager's own uninstall
command (pip uninstall -y, brew uninstall, npm uninstall -g).

Before the manager runs, the package is marked as a pending removal, so
the next collection pass classifies its disappearance as
dashboard-initiated in the uninstall history. The marker is written
first: even if the process dies mid-uninstall, the history stays
accurate.`,
	Example: `  # Remove a pip package
  pkglens uninstall pip requests

  # Remove a Homebrew formula
  pkglens uninstall brew jq`,
	Args: cobra.ExactArgs(2),
	RunE: runUninstall,
}

func runUninstall(cmd *cobra.Command, args []string) error {
	id, err := parseIdentityArgs(args)
	if err != nil {
		return err
	}

	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	adapter, err := p.registry.Lookup(id.Manager)
	if err != nil {
		return err
	}
	if !adapter.Detect() {
		return &manager.ToolMissingError{Manager: id.Manager, Tool: string(id.Manager)}
	}

	if err := p.tracker.MarkPending(id); err != nil {
		return fmt.Errorf("failed to mark pending removal: %w", err)
	}

	spinner := output.NewSpinner(fmt.Sprintf("Uninstalling %s", id.Key()))
	spinner.Start()
	err = adapter.Uninstall(cmd.Context(), id.Name)
	spinner.Stop()
	if err != nil {
		// The package is still installed; withdraw the marker so a later
		// external removal is not misclassified.
		if unmarkErr := p.tracker.UnmarkPending(id); unmarkErr != nil {
			p.log.Warn("failed to withdraw pending marker")
		}
		return fmt.Errorf("uninstall of %s failed: %w", id.Key(), err)
	}

	fmt.Printf("Uninstalled %s. Run 'pkglens collect' to refresh the inventory.\n", id.Key())
	return nil
}
