package executor

import (
	"context"
	"sync"

	"github.com/calder/gantry/internal/models"
)

// InstanceExecutor defines the behavior required to execute one matrix
// instance of a job.
type InstanceExecutor interface {
	Execute(ctx context.Context, workflow *models.Workflow, job *models.Job, instance models.MatrixInstance) models.JobResult
}

// MatrixExecutor fans a job out across its matrix instances with bounded
// parallelism. Fail-fast cancels in-flight siblings on the first failure.
type MatrixExecutor struct {
	instances   InstanceExecutor
	logger      Logger
	maxParallel int // Global cap on concurrent instances (0 = per-job strategy only)
}

// NewMatrixExecutor constructs a MatrixExecutor with the provided instance
// executor implementation. The logger is optional and can be nil.
func NewMatrixExecutor(instances InstanceExecutor, logger Logger, maxParallel int) *MatrixExecutor {
	return &MatrixExecutor{
		instances:   instances,
		logger:      logger,
		maxParallel: maxParallel,
	}
}

type instanceExecutionResult struct {
	index  int
	result models.JobResult
}

// ExecuteJob runs all matrix instances of a job and returns their results
// in expansion order, regardless of completion order.
func (m *MatrixExecutor) ExecuteJob(ctx context.Context, workflow *models.Workflow, job *models.Job) []models.JobResult {
	instances := job.Strategy.Expand()
	count := len(instances)

	maxParallel := job.Strategy.MaxParallel
	if m.maxParallel > 0 && (maxParallel == 0 || maxParallel > m.maxParallel) {
		maxParallel = m.maxParallel
	}
	if maxParallel <= 0 || maxParallel > count {
		maxParallel = count
	}
	if maxParallel == 0 {
		maxParallel = 1
	}

	// Fail-fast gets its own cancel scope so one instance's failure stops
	// its siblings without tearing down the whole run.
	jobCtx := ctx
	var cancel context.CancelFunc
	if job.Strategy.FailFast {
		jobCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	semaphore := make(chan struct{}, maxParallel)
	resultsCh := make(chan instanceExecutionResult, count)

	var wg sync.WaitGroup

	for i, instance := range instances {
		// Check before acquiring the semaphore to avoid blocking on a
		// cancelled context.
		select {
		case <-jobCtx.Done():
		case semaphore <- struct{}{}:
		}
		if jobCtx.Err() != nil {
			// Record unlaunched instances as canceled (or skipped when the
			// outer run is still live and fail-fast tripped).
			status := models.StatusCanceled
			if ctx.Err() == nil {
				status = models.StatusSkipped
			}
			resultsCh <- instanceExecutionResult{
				index: i,
				result: models.JobResult{
					JobID:    job.ID,
					Name:     models.InstanceName(job, instance),
					Instance: instance,
					Status:   status,
				},
			}
			continue
		}

		wg.Add(1)
		go func(index int, instance models.MatrixInstance) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if m.logger != nil {
				m.logger.LogJobStart(models.InstanceName(job, instance))
			}

			result := m.instances.Execute(jobCtx, workflow, job, instance)

			if result.Failed() && cancel != nil {
				cancel()
			}
			if m.logger != nil {
				m.logger.LogJobResult(result)
			}

			resultsCh <- instanceExecutionResult{index: index, result: result}
		}(i, instance)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	results := make([]models.JobResult, count)
	for r := range resultsCh {
		results[r.index] = r.result
	}

	return results
}
