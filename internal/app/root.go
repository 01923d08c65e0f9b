package app

import (
	"github.com/spf13/cobra"
)

var (
	flagStateDir string
	flagLogLevel string

	// RootCmd is the root command for pkglens
	RootCmd = &cobra.Command{
		Use:   "pkglens",
		Short: "Unified view of pip, Homebrew, and npm packages",
		Long: `pkglens aggregates installed-package metadata from pip, Homebrew, and
npm global packages into one place: what is installed, how big it is,
whether it passes its manager's integrity checks, what conflicts exist
across managers, and what was uninstalled over time.

pkglens is read-mostly and request-driven. Nothing runs in the
background; every command does its work and exits. The only mutation it
ever performs is an uninstall you explicitly ask for.

Managers whose tools are not installed are skipped with a warning, never
an error. Running pkglens on a machine with only npm is fine.

Quick Start:
  1. pkglens collect            # see everything that is installed
  2. pkglens verify --all       # run integrity checks
  3. pkglens conflicts          # cross-manager conflict heuristics
  4. pkglens serve              # local dashboard API on 127.0.0.1:8008

Examples:
  # List all packages with sizes
  pkglens collect

  # Verify a single package
  pkglens verify pip requests

  # Export the package list as CSV
  pkglens export -o packages.csv

  # Show uninstall history
  pkglens history`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "state directory (default: ~/.pkglens)")
	RootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	// Register subcommands
	RootCmd.AddCommand(collectCmd)
	RootCmd.AddCommand(verifyCmd)
	RootCmd.AddCommand(conflictsCmd)
	RootCmd.AddCommand(historyCmd)
	RootCmd.AddCommand(uninstallCmd)
	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(serveCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}
