package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for gantry
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gantry",
		Short: "Local CI workflow runner",
		Long: `Gantry executes CI workflow definitions locally, without a CI server.

It parses workflow files (YAML, or YAML embedded in Markdown), expands
job matrices, resolves job dependencies, and runs shell steps with the
same pass/fail semantics a hosted CI system would apply.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewJobsCommand())
	cmd.AddCommand(NewGuardCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
