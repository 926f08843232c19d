package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder/gantry/internal/models"
)

// fakeInstanceExecutor tracks concurrency and returns scripted results.
type fakeInstanceExecutor struct {
	mu         sync.Mutex
	running    int
	maxRunning int
	delay      time.Duration
	fn         func(instance models.MatrixInstance) models.JobResult
}

func (f *fakeInstanceExecutor) Execute(ctx context.Context, workflow *models.Workflow, job *models.Job, instance models.MatrixInstance) models.JobResult {
	f.mu.Lock()
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.running--
	f.mu.Unlock()

	if ctx.Err() != nil {
		return models.JobResult{
			JobID:    job.ID,
			Name:     models.InstanceName(job, instance),
			Instance: instance,
			Status:   models.StatusCanceled,
		}
	}
	if f.fn != nil {
		return f.fn(instance)
	}
	return models.JobResult{
		JobID:    job.ID,
		Name:     models.InstanceName(job, instance),
		Instance: instance,
		Status:   models.StatusPassed,
	}
}

func matrixJob(maxParallel int, failFast bool, values ...string) *models.Job {
	return &models.Job{
		ID: "test",
		Strategy: models.Strategy{
			Axes:        []models.MatrixAxis{{Key: "version", Values: values}},
			MaxParallel: maxParallel,
			FailFast:    failFast,
		},
		Steps: []models.Step{{Run: "true"}},
	}
}

func TestMatrixExecutorRunsAllInstances(t *testing.T) {
	fake := &fakeInstanceExecutor{}
	m := NewMatrixExecutor(fake, nil, 0)

	job := matrixJob(0, false, "3.9", "3.10", "3.11")
	results := m.ExecuteJob(context.Background(), testWorkflow(*job), job)

	require.Len(t, results, 3)
	// Results come back in expansion order regardless of completion order.
	assert.Equal(t, "test (3.9)", results[0].Name)
	assert.Equal(t, "test (3.10)", results[1].Name)
	assert.Equal(t, "test (3.11)", results[2].Name)
	for _, r := range results {
		assert.Equal(t, models.StatusPassed, r.Status)
	}
}

func TestMatrixExecutorMaxParallel(t *testing.T) {
	fake := &fakeInstanceExecutor{delay: 20 * time.Millisecond}
	m := NewMatrixExecutor(fake, nil, 0)

	job := matrixJob(2, false, "a", "b", "c", "d", "e")
	results := m.ExecuteJob(context.Background(), testWorkflow(*job), job)

	require.Len(t, results, 5)
	assert.LessOrEqual(t, fake.maxRunning, 2, "max-parallel must bound concurrency")
	assert.GreaterOrEqual(t, fake.maxRunning, 1)
}

func TestMatrixExecutorGlobalCapOverridesStrategy(t *testing.T) {
	fake := &fakeInstanceExecutor{delay: 20 * time.Millisecond}
	m := NewMatrixExecutor(fake, nil, 1)

	job := matrixJob(4, false, "a", "b", "c")
	results := m.ExecuteJob(context.Background(), testWorkflow(*job), job)

	require.Len(t, results, 3)
	assert.Equal(t, 1, fake.maxRunning, "global cap is tighter than the job strategy")
}

func TestMatrixExecutorFailFast(t *testing.T) {
	fake := &fakeInstanceExecutor{
		fn: func(instance models.MatrixInstance) models.JobResult {
			status := models.StatusPassed
			if instance.Values["version"] == "bad" {
				status = models.StatusFailed
			}
			return models.JobResult{
				Name:     instance.Suffix(),
				Instance: instance,
				Status:   status,
			}
		},
	}
	// Serialize instances so the failure happens before later launches.
	m := NewMatrixExecutor(fake, nil, 1)

	job := matrixJob(1, true, "bad", "b", "c")
	results := m.ExecuteJob(context.Background(), testWorkflow(*job), job)

	require.Len(t, results, 3)
	assert.Equal(t, models.StatusFailed, results[0].Status)
	for _, r := range results[1:] {
		assert.Contains(t,
			[]string{models.StatusSkipped, models.StatusCanceled}, r.Status,
			"instances after a fail-fast failure must not pass")
	}
}

func TestMatrixExecutorNoFailFastRunsEverything(t *testing.T) {
	var executed int32
	var mu sync.Mutex
	fake := &fakeInstanceExecutor{
		fn: func(instance models.MatrixInstance) models.JobResult {
			mu.Lock()
			executed++
			mu.Unlock()
			return models.JobResult{Instance: instance, Status: models.StatusFailed}
		},
	}
	m := NewMatrixExecutor(fake, nil, 1)

	job := matrixJob(1, false, "a", "b", "c")
	results := m.ExecuteJob(context.Background(), testWorkflow(*job), job)

	require.Len(t, results, 3)
	mu.Lock()
	assert.EqualValues(t, 3, executed, "without fail-fast every instance runs")
	mu.Unlock()
}

func TestMatrixExecutorCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeInstanceExecutor{}
	m := NewMatrixExecutor(fake, nil, 0)

	job := matrixJob(0, false, "a", "b")
	results := m.ExecuteJob(ctx, testWorkflow(*job), job)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, models.StatusCanceled, r.Status)
	}
}

func TestMatrixExecutorSingleInstanceJob(t *testing.T) {
	fake := &fakeInstanceExecutor{}
	m := NewMatrixExecutor(fake, nil, 0)

	job := &models.Job{ID: "lint", Steps: []models.Step{{Run: "flake8"}}}
	results := m.ExecuteJob(context.Background(), testWorkflow(*job), job)

	require.Len(t, results, 1)
	assert.Equal(t, "lint", results[0].Name)
	assert.Equal(t, models.StatusPassed, results[0].Status)
}
