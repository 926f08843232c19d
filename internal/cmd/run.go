package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calder/gantry/internal/config"
	"github.com/calder/gantry/internal/executor"
	"github.com/calder/gantry/internal/filelock"
	"github.com/calder/gantry/internal/history"
	"github.com/calder/gantry/internal/logger"
	"github.com/calder/gantry/internal/models"
	"github.com/calder/gantry/internal/parser"
	"github.com/calder/gantry/internal/watch"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Execute a workflow",
		Long: `Execute a workflow file locally.

The run command parses the workflow (YAML, or YAML embedded in Markdown),
expands each job's matrix, orders jobs by their needs graph, and runs the
shell steps of every matrix instance. The command exits non-zero when any
instance fails.

Configuration is loaded from .gantry/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  gantry run ci.yaml                      # Run the push event
  gantry run --event pull_request ci.yaml # Run a different trigger
  gantry run --job test ci.yaml           # Run one job (plus its needs)
  gantry run --dry-run ci.yaml            # Show the plan without executing
  gantry run --max-parallel 2 ci.yaml     # Cap concurrent matrix instances
  gantry run --watch ci.yaml              # Re-run on file changes`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	// Add flags
	cmd.Flags().String("config", "", "Path to config file (default: .gantry/config.yaml)")
	cmd.Flags().String("event", "", "Trigger event to run (default: config default_event)")
	cmd.Flags().String("job", "", "Run only this job and the jobs it needs")
	cmd.Flags().Int("max-parallel", -1, "Maximum concurrent matrix instances (0 = per-job strategy only)")
	cmd.Flags().String("timeout", "", "Maximum run time (e.g., 30m, 2h, 1h30m)")
	cmd.Flags().Bool("fail-fast", false, "Cancel remaining matrix instances on first failure (overrides workflow)")
	cmd.Flags().Bool("no-fail-fast", false, "Run all matrix instances to completion (overrides workflow)")
	cmd.Flags().Bool("dry-run", false, "Validate and show the execution plan without running steps")
	cmd.Flags().Bool("verbose", false, "Show detailed execution information")
	cmd.Flags().String("log-dir", "", "Directory for run log files")
	cmd.Flags().Bool("watch", false, "Watch the workspace and re-run on changes")
	cmd.Flags().Bool("no-history", false, "Do not record this run in history")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	workflowFile := args[0]
	event := cfg.DefaultEvent
	jobFilter, _ := cmd.Flags().GetString("job")
	verbose, _ := cmd.Flags().GetBool("verbose")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	watchMode, _ := cmd.Flags().GetBool("watch")

	if dryRun {
		return dryRunWorkflow(cmd, cfg, workflowFile, event, jobFilter, verbose)
	}

	// One run per workspace at a time. The lock also covers watch mode,
	// where runs repeat.
	lock, err := filelock.NewRunLock(config.DefaultDir)
	if err != nil {
		return err
	}
	acquired, err := lock.TryAcquire()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another gantry run is already in progress (lock: %s)", lock.Path())
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !watchMode {
		ok, err := executeOnce(ctx, cmd, cfg, workflowFile, event, jobFilter, verbose)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run failed")
		}
		return nil
	}

	return watchLoop(ctx, cmd, cfg, workflowFile, event, jobFilter, verbose)
}

// loadRunConfig loads the config file and merges explicitly-set CLI flags.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if cmd.Flags().Changed("fail-fast") && cmd.Flags().Changed("no-fail-fast") {
		return nil, fmt.Errorf("cannot use both --fail-fast and --no-fail-fast")
	}

	var overrides config.Overrides

	if cmd.Flags().Changed("max-parallel") {
		v, _ := cmd.Flags().GetInt("max-parallel")
		overrides.MaxParallel = &v
	}
	if cmd.Flags().Changed("timeout") {
		s, _ := cmd.Flags().GetString("timeout")
		timeout, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", s, err)
		}
		overrides.Timeout = &timeout
	}
	if cmd.Flags().Changed("log-dir") {
		v, _ := cmd.Flags().GetString("log-dir")
		overrides.LogDir = &v
	}
	if cmd.Flags().Changed("event") {
		v, _ := cmd.Flags().GetString("event")
		overrides.Event = &v
	}
	if cmd.Flags().Changed("fail-fast") {
		v, _ := cmd.Flags().GetBool("fail-fast")
		overrides.FailFast = &v
	} else if cmd.Flags().Changed("no-fail-fast") {
		v, _ := cmd.Flags().GetBool("no-fail-fast")
		failFast := !v
		overrides.FailFast = &failFast
	}
	if cmd.Flags().Changed("no-history") {
		v, _ := cmd.Flags().GetBool("no-history")
		overrides.NoHistory = &v
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level := "debug"
		overrides.LogLevel = &level
	}

	cfg.Merge(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadWorkflow parses the workflow file and applies the job filter and
// the configured fail-fast override.
func loadWorkflow(cfg *config.Config, path, jobFilter string) (*models.Workflow, error) {
	workflow, err := parser.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	if jobFilter != "" {
		workflow, err = selectJob(workflow, jobFilter)
		if err != nil {
			return nil, err
		}
	}

	if cfg.FailFast != nil {
		for i := range workflow.Jobs {
			workflow.Jobs[i].Strategy.FailFast = *cfg.FailFast
		}
	}
	return workflow, nil
}

// selectJob narrows a workflow to one job plus the transitive closure of
// its needs, preserving declaration order.
func selectJob(workflow *models.Workflow, jobID string) (*models.Workflow, error) {
	if workflow.JobByID(jobID) == nil {
		return nil, fmt.Errorf("job %q not found in workflow", jobID)
	}

	keep := map[string]bool{}
	queue := []string{jobID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if keep[id] {
			continue
		}
		keep[id] = true
		if job := workflow.JobByID(id); job != nil {
			queue = append(queue, job.Needs...)
		}
	}

	narrowed := *workflow
	narrowed.Jobs = nil
	for _, job := range workflow.Jobs {
		if keep[job.ID] {
			narrowed.Jobs = append(narrowed.Jobs, job)
		}
	}
	return &narrowed, nil
}

// dryRunWorkflow validates the workflow and prints the execution plan.
func dryRunWorkflow(cmd *cobra.Command, cfg *config.Config, path, event, jobFilter string, verbose bool) error {
	workflow, err := loadWorkflow(cfg, path, jobFilter)
	if err != nil {
		return err
	}
	if !workflow.TriggersOn(event) {
		return fmt.Errorf("workflow %s does not trigger on %q (triggers: %v)", workflow.Name, event, workflow.On)
	}

	graph, err := executor.BuildJobGraph(workflow.Jobs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	total := 0
	fmt.Fprintf(out, "Workflow: %s (event: %s)\n", workflow.Name, event)
	fmt.Fprintf(out, "\nExecution plan:\n")
	for i, level := range graph.Levels() {
		fmt.Fprintf(out, "  Level %d:\n", i+1)
		for _, jobID := range level {
			job := workflow.JobByID(jobID)
			instances := job.Strategy.Expand()
			total += len(instances)
			for _, instance := range instances {
				fmt.Fprintf(out, "    - %s\n", models.InstanceName(job, instance))
				if verbose {
					for _, step := range job.Steps {
						fmt.Fprintf(out, "        %s\n", step.DisplayName())
					}
				}
			}
		}
	}
	fmt.Fprintf(out, "\nTotal instances: %d\n", total)
	fmt.Fprintf(out, "\nDry-run mode: workflow is valid and ready for execution.\n")
	return nil
}

// executeOnce performs one full workflow run: parse, execute, record
// history. Returns whether the run succeeded; the error covers
// infrastructure failures only.
func executeOnce(ctx context.Context, cmd *cobra.Command, cfg *config.Config, path, event, jobFilter string, verbose bool) (bool, error) {
	workflow, err := loadWorkflow(cfg, path, jobFilter)
	if err != nil {
		return false, err
	}

	runID := uuid.NewString()

	consoleLog := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir, runID)
	if err != nil {
		return false, fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()

	multiLog := logger.NewMultiLogger(consoleLog, fileLog)

	stepExec := executor.NewStepExecutor(executor.NewShellCommandRunner())
	jobExec := executor.NewJobExecutor(stepExec, multiLog, workspaceRoot(workflow))
	matrixExec := executor.NewMatrixExecutor(jobExec, multiLog, cfg.MaxParallel)
	orch := executor.NewOrchestrator(matrixExec, multiLog)
	orch.SetRunID(runID)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	result, err := orch.Run(runCtx, workflow, event)
	if err != nil {
		return false, err
	}

	if cfg.History.Enabled {
		if err := recordHistory(ctx, cfg, result); err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Warning: failed to record run history: %v\n", err)
		}
	}

	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), "Logs written to: %s\n", fileLog.Path())
	}

	return result.Success(), nil
}

// workspaceRoot derives the execution root from the workflow location.
// Steps run relative to the directory holding the workflow file.
func workspaceRoot(workflow *models.Workflow) string {
	if workflow.FilePath == "" {
		return "."
	}
	return filepath.Dir(workflow.FilePath)
}

// recordHistory persists the run and prunes expired entries.
func recordHistory(ctx context.Context, cfg *config.Config, result *models.RunResult) error {
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RecordRun(ctx, result); err != nil {
		return err
	}
	if cfg.History.KeepDays > 0 {
		if _, err := store.Prune(ctx, time.Duration(cfg.History.KeepDays)*24*time.Hour); err != nil {
			return err
		}
	}
	return nil
}

// watchLoop runs the workflow, then re-runs it after every settled batch
// of workspace changes until interrupted.
func watchLoop(ctx context.Context, cmd *cobra.Command, cfg *config.Config, path, event, jobFilter string, verbose bool) error {
	// The runs themselves write into the log dir; watching it would
	// re-trigger forever when it sits inside the workspace.
	watcher, err := watch.NewWatcher(".", watch.WithIgnorePaths(cfg.LogDir))
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	failedRuns := 0
	for {
		ok, err := executeOnce(ctx, cmd, cfg, path, event, jobFilter, verbose)
		if err != nil {
			// Infrastructure errors in watch mode are reported, not fatal;
			// the next change may fix a broken workflow file.
			fmt.Fprintf(cmd.OutOrStderr(), "Error: %v\n", err)
			failedRuns++
		} else if !ok {
			failedRuns++
		}

		if ctx.Err() != nil {
			break
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes (press Ctrl-C to stop)...\n")
		change, alive := watcher.Wait(ctx)
		if !alive {
			break
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Changes detected (%d path(s)), re-running...\n\n", len(change.Paths))
	}

	if failedRuns > 0 {
		return fmt.Errorf("%d run(s) failed", failedRuns)
	}
	return nil
}
