// Package commands wires the quicklook CLI subcommands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maverick250/aml-interactive-dashboard/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "quicklook",
		Short:   "First-pass AML transaction review dashboard",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newAlertWorkerCommand())

	return rootCmd
}
