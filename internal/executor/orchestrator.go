package executor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/calder/gantry/internal/models"
)

// Logger defines the interface for logging run progress and results.
type Logger interface {
	LogRunStart(workflow *models.Workflow, event, runID string)
	LogJobStart(instance string)
	LogStepStart(instance string, step models.Step)
	LogStepResult(instance string, result models.StepResult)
	LogJobResult(result models.JobResult)
	LogSummary(result models.RunResult)
}

// JobDispatcher defines the behavior required to execute all matrix
// instances of one job.
type JobDispatcher interface {
	ExecuteJob(ctx context.Context, workflow *models.Workflow, job *models.Job) []models.JobResult
}

// ErrEventNotTriggered indicates the workflow does not declare the event
// the run was invoked for.
var ErrEventNotTriggered = fmt.Errorf("workflow does not trigger on event")

// Orchestrator coordinates workflow execution: event filtering, level
// ordering, graceful shutdown on SIGINT/SIGTERM, and result aggregation.
type Orchestrator struct {
	dispatcher JobDispatcher
	logger     Logger
	runID      string
}

// NewOrchestrator creates a new Orchestrator instance.
// The logger parameter is optional and can be nil.
func NewOrchestrator(dispatcher JobDispatcher, logger Logger) *Orchestrator {
	if dispatcher == nil {
		panic("job dispatcher cannot be nil")
	}
	return &Orchestrator{dispatcher: dispatcher, logger: logger}
}

// SetRunID pins the run identifier for the next Run call. Callers that
// create per-run resources (log files, history rows) ahead of time use
// this to keep identifiers consistent. When unset, Run generates one.
func (o *Orchestrator) SetRunID(id string) {
	o.runID = id
}

// Run executes a workflow for the given trigger event. Jobs run level by
// level per their needs graph; a failed job marks its transitive
// dependents skipped. The returned error reports infrastructure problems
// only; job failures are expressed through the RunResult.
func (o *Orchestrator) Run(ctx context.Context, workflow *models.Workflow, event string) (*models.RunResult, error) {
	if workflow == nil {
		return nil, fmt.Errorf("workflow cannot be nil")
	}
	if !workflow.TriggersOn(event) {
		return nil, fmt.Errorf("%w: %q not in %v", ErrEventNotTriggered, event, workflow.On)
	}

	graph, err := BuildJobGraph(workflow.Jobs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Graceful shutdown: first signal cancels the run context, in-flight
	// steps observe it through exec.CommandContext.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	result := &models.RunResult{
		RunID:     runID,
		Workflow:  workflow.Name,
		Event:     event,
		StartedAt: time.Now(),
	}

	if o.logger != nil {
		o.logger.LogRunStart(workflow, event, runID)
	}

	startTime := time.Now()
	succeeded := make(map[string]bool, len(workflow.Jobs))

	// Levels run sequentially; jobs within a level run concurrently, each
	// fanning out over its own matrix.
	for _, level := range graph.Levels() {
		levelResults := make(map[string][]models.JobResult, len(level))
		var wg sync.WaitGroup
		var mu sync.Mutex

		for _, jobID := range level {
			job := workflow.JobByID(jobID)

			if blocked := graph.BlockedBy(jobID, succeeded); blocked != "" {
				// Dependency failed: every instance of this job is skipped.
				var skipped []models.JobResult
				for _, instance := range job.Strategy.Expand() {
					jr := models.JobResult{
						JobID:    jobID,
						Name:     models.InstanceName(job, instance),
						Instance: instance,
						Status:   models.StatusSkipped,
						Error:    fmt.Errorf("skipped: needs %s, which did not succeed", blocked),
					}
					skipped = append(skipped, jr)
					if o.logger != nil {
						o.logger.LogJobResult(jr)
					}
				}
				levelResults[jobID] = skipped
				succeeded[jobID] = false
				continue
			}

			wg.Add(1)
			go func(jobID string, job *models.Job) {
				defer wg.Done()
				jobResults := o.dispatcher.ExecuteJob(ctx, workflow, job)
				mu.Lock()
				levelResults[jobID] = jobResults
				mu.Unlock()
			}(jobID, job)
		}

		wg.Wait()

		// Append in level declaration order regardless of completion order.
		for _, jobID := range level {
			jobResults := levelResults[jobID]
			result.JobResults = append(result.JobResults, jobResults...)

			if _, done := succeeded[jobID]; done {
				continue // blocked job, already recorded
			}
			jobOK := true
			for _, jr := range jobResults {
				if jr.Status != models.StatusPassed {
					jobOK = false
					break
				}
			}
			succeeded[jobID] = jobOK
		}
	}

	result.Duration = time.Since(startTime)
	aggregate(result)

	if o.logger != nil {
		o.logger.LogSummary(*result)
	}

	return result, nil
}

// aggregate fills the run-level counters from the per-instance results.
func aggregate(result *models.RunResult) {
	result.TotalJobs = len(result.JobResults)
	for _, jr := range result.JobResults {
		switch jr.Status {
		case models.StatusPassed:
			result.Passed++
		case models.StatusFailed:
			result.Failed++
		case models.StatusSkipped:
			result.Skipped++
		case models.StatusCanceled:
			result.Canceled++
		}
	}
}
