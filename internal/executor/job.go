package executor

import (
	"context"
	"time"

	"github.com/calder/gantry/internal/models"
)

// StepRunner defines the behavior required to execute individual steps
// within a job instance.
type StepRunner interface {
	Execute(ctx context.Context, step models.Step, jc JobContext) models.StepResult
}

// JobExecutor runs a single matrix instance of a job: steps strictly in
// order, first failure aborting the instance unless the step is marked
// continue-on-error.
type JobExecutor struct {
	steps  StepRunner
	logger Logger
	root   string // Workspace root
}

// NewJobExecutor constructs a JobExecutor. The logger is optional and can
// be nil to disable logging.
func NewJobExecutor(steps StepRunner, logger Logger, root string) *JobExecutor {
	if steps == nil {
		steps = NewStepExecutor(nil)
	}
	return &JobExecutor{steps: steps, logger: logger, root: root}
}

// Execute runs every step of the given instance and returns one JobResult.
// Steps after a failing step are recorded as skipped, so the result always
// carries exactly one entry per declared step.
func (e *JobExecutor) Execute(ctx context.Context, workflow *models.Workflow, job *models.Job, instance models.MatrixInstance) models.JobResult {
	name := models.InstanceName(job, instance)
	result := models.JobResult{
		JobID:    job.ID,
		Name:     name,
		Instance: instance,
		Status:   models.StatusPassed,
	}

	// Workflow env under job env; both may reference matrix values.
	env := layerEnv(
		models.InterpolateMap(workflow.Env, instance.Values, nil),
		models.InterpolateMap(job.Env, instance.Values, workflow.Env),
	)

	jc := JobContext{
		Matrix:       instance.Values,
		Env:          env,
		WorkingDir:   job.WorkingDir,
		Root:         e.root,
		WorkflowFile: workflow.FilePath,
	}

	start := time.Now()
	aborted := false

	for _, step := range job.Steps {
		// Step names may reference the matrix ("Test on ${{ matrix.v }}"),
		// so resolve them before anything logs or records the step.
		step.Name = models.Interpolate(step.Name, instance.Values, env)

		if aborted || ctx.Err() != nil {
			skipStatus := models.StatusSkipped
			if !aborted && ctx.Err() != nil {
				skipStatus = models.StatusCanceled
			}
			result.Steps = append(result.Steps, models.StepResult{
				Step:     step,
				Status:   skipStatus,
				ExitCode: -1,
			})
			continue
		}

		if e.logger != nil {
			e.logger.LogStepStart(name, step)
		}

		stepResult := e.steps.Execute(ctx, step, jc)
		result.Steps = append(result.Steps, stepResult)

		if e.logger != nil {
			e.logger.LogStepResult(name, stepResult)
		}

		switch stepResult.Status {
		case models.StatusCanceled:
			result.Status = models.StatusCanceled
			if result.Error == nil {
				result.Error = stepResult.Error
			}
			aborted = true
		case models.StatusFailed:
			if result.Error == nil {
				result.Error = NewJobError(name, stepResult.Error)
			}
			if !step.ContinueOnError {
				result.Status = models.StatusFailed
				aborted = true
			}
		}
	}

	// A job whose only failures were continue-on-error steps still passes;
	// the first error is preserved for reporting either way.

	result.Duration = time.Since(start)
	return result
}
