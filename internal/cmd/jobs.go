package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calder/gantry/internal/executor"
	"github.com/calder/gantry/internal/models"
	"github.com/calder/gantry/internal/parser"
)

// NewJobsCommand creates the jobs command
func NewJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs <workflow-file>",
		Short: "List the jobs and matrix instances a workflow would run",
		Long: `List every job of a workflow in execution order.

Jobs are grouped into levels derived from their needs graph. Jobs in the
same level run concurrently; each job is expanded into its matrix
instances.

Examples:
  gantry jobs ci.yaml
  gantry jobs --event pull_request ci.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: jobsCommand,
	}

	cmd.Flags().String("event", "", "Only list jobs when the workflow triggers on this event")

	return cmd
}

// jobsCommand implements the jobs command logic
func jobsCommand(cmd *cobra.Command, args []string) error {
	workflow, err := parser.ParseFile(args[0])
	if err != nil {
		return err
	}

	if event, _ := cmd.Flags().GetString("event"); event != "" {
		if !workflow.TriggersOn(event) {
			return fmt.Errorf("workflow %s does not trigger on %q (triggers: %v)",
				workflow.Name, event, workflow.On)
		}
	}

	graph, err := executor.BuildJobGraph(workflow.Jobs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workflow: %s\n", workflow.Name)

	for i, level := range graph.Levels() {
		fmt.Fprintf(out, "\nLevel %d:\n", i+1)
		for _, jobID := range level {
			job := workflow.JobByID(jobID)
			needs := ""
			if len(job.Needs) > 0 {
				needs = fmt.Sprintf(" (needs: %s)", strings.Join(job.Needs, ", "))
			}
			fmt.Fprintf(out, "  %s%s\n", jobID, needs)
			for _, instance := range job.Strategy.Expand() {
				fmt.Fprintf(out, "    - %s\n", models.InstanceName(job, instance))
			}
		}
	}

	return nil
}
