package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/calder/gantry/internal/config"
	"github.com/calder/gantry/internal/filelock"
	"github.com/calder/gantry/internal/history"
)

// NewHistoryCommand creates the history command and its subcommands
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past workflow runs",
		Long: `Inspect workflow runs recorded in the workspace history database.

Runs are recorded automatically unless history is disabled in the
configuration or with --no-history. With no subcommand, recent runs
are listed.`,
		Args: cobra.NoArgs,
		RunE: historyListCommand,
	}

	cmd.PersistentFlags().String("db", "", "Path to the history database (default: .gantry/history.db)")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryExportCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

// openHistoryStore opens the history database named by --db or the config.
func openHistoryStore(cmd *cobra.Command) (*history.Store, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg, err := config.LoadConfigFromDir(".")
		if err != nil {
			return nil, err
		}
		dbPath = cfg.History.DBPath
	}
	return history.NewStore(dbPath)
}

func newHistoryListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  historyListCommand,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")
	return cmd
}

// historyListCommand backs both "gantry history" and "gantry history list".
func historyListCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-20s  %-12s  %-19s  %s\n",
		"RUN", "WORKFLOW", "EVENT", "STARTED", "RESULT")
	for _, run := range runs {
		fmt.Fprintf(out, "%-36s  %-20s  %-12s  %-19s  %s\n",
			run.RunID, run.Workflow, run.Event,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runVerdict(run))
	}
	return nil
}

// runVerdict summarizes a run's counters in one word plus detail.
func runVerdict(run history.RunRecord) string {
	verdict := "passed"
	if run.Failed > 0 || run.Canceled > 0 {
		verdict = "failed"
	}
	return fmt.Sprintf("%s (%d/%d passed, %s)",
		verdict, run.Passed, run.TotalJobs, run.Duration.Round(time.Millisecond))
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its job and step results",
		Long: `Show a recorded run in detail.

The run ID may be abbreviated to any unique prefix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:      %s\n", run.RunID)
			fmt.Fprintf(out, "Workflow: %s (event: %s)\n", run.Workflow, run.Event)
			fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Duration: %s\n", run.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "Jobs:     %d total, %d passed, %d failed, %d skipped, %d canceled\n",
				run.TotalJobs, run.Passed, run.Failed, run.Skipped, run.Canceled)

			for _, job := range run.Jobs {
				fmt.Fprintf(out, "\n%s [%s] (%s)\n", job.Name, job.Status, job.Duration.Round(time.Millisecond))
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "  error: %s\n", job.ErrorMessage)
				}
				for _, step := range job.Steps {
					name := step.Name
					if name == "" {
						name = step.Run
					}
					fmt.Fprintf(out, "  [%s] %s (exit %d, %s)\n",
						step.Status, name, step.ExitCode, step.Duration.Round(time.Millisecond))
				}
			}
			return nil
		},
	}
}

func newHistoryExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export one run as JSON",
		Long: `Export a recorded run, with all job and step results, as JSON.

The run ID may be abbreviated to any unique prefix. Output goes to
stdout unless --output names a file; file writes are atomic.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode run: %w", err)
			}
			data = append(data, '\n')

			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := filelock.AtomicWrite(output, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported run %s to %s\n", run.RunID, output)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Write JSON to this file instead of stdout")
	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThanStr, _ := cmd.Flags().GetString("older-than")
			olderThan, err := time.ParseDuration(olderThanStr)
			if err != nil {
				return fmt.Errorf("invalid --older-than %q: %w", olderThanStr, err)
			}

			store, err := openHistoryStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d run(s).\n", deleted)
			return nil
		},
	}

	cmd.Flags().String("older-than", "2160h", "Delete runs older than this duration (e.g., 720h for 30 days)")
	return cmd
}
