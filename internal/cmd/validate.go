package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calder/gantry/internal/executor"
	"github.com/calder/gantry/internal/parser"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow-file>",
		Short: "Validate a workflow file without executing it",
		Long: `Validate a workflow file and report any problems.

Validation parses the file, checks every job and step, expands each
matrix, and verifies the needs graph is acyclic and references only
declared jobs. Nothing is executed.

Examples:
  gantry validate ci.yaml
  gantry validate docs/release.md`,
		Args: cobra.ExactArgs(1),
		RunE: validateCommand,
	}

	return cmd
}

// validateCommand implements the validate command logic
func validateCommand(cmd *cobra.Command, args []string) error {
	path := args[0]

	workflow, err := parser.ParseFile(path)
	if err != nil {
		return fmt.Errorf("workflow is invalid: %w", err)
	}

	graph, err := executor.BuildJobGraph(workflow.Jobs)
	if err != nil {
		return fmt.Errorf("workflow is invalid: %w", err)
	}

	instances := 0
	steps := 0
	for _, job := range workflow.Jobs {
		instances += len(job.Strategy.Expand())
		steps += len(job.Steps)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workflow %s is valid.\n\n", workflow.Name)
	fmt.Fprintf(out, "  Triggers:  %v\n", workflow.On)
	fmt.Fprintf(out, "  Jobs:      %d (%d matrix instance(s))\n", len(workflow.Jobs), instances)
	fmt.Fprintf(out, "  Steps:     %d\n", steps)
	fmt.Fprintf(out, "  Levels:    %d\n", len(graph.Levels()))

	return nil
}
