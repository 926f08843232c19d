package models

import "time"

// Execution status constants shared by step, job, and run results.
const (
	StatusPassed   = "passed"   // Completed with exit code 0
	StatusFailed   = "failed"   // Non-zero exit, guard match, or launch error
	StatusSkipped  = "skipped"  // Not run (earlier failure or needs-filtered)
	StatusCanceled = "canceled" // Aborted by signal, timeout, or fail-fast
)

// StepResult represents the outcome of executing a single step.
type StepResult struct {
	Step     Step          // The step that was executed
	Status   string        // passed, failed, skipped, canceled
	Output   string        // Combined stdout/stderr
	ExitCode int           // Process exit code (-1 if the step never ran)
	Error    error         // Error if execution failed
	Duration time.Duration // Time taken to execute
}

// JobResult represents the outcome of one matrix instance of a job.
type JobResult struct {
	JobID    string         // Job identifier
	Name     string         // Instance display name, e.g. "test (3.9)"
	Instance MatrixInstance // Matrix assignment for this instance
	Status   string         // passed, failed, skipped, canceled
	Steps    []StepResult   // Step results in execution order
	Error    error          // First error encountered, if any
	Duration time.Duration  // Time taken to execute
}

// Failed reports whether the instance ended in failure.
func (r *JobResult) Failed() bool {
	return r.Status == StatusFailed
}

// RunResult represents the aggregate result of executing a workflow.
type RunResult struct {
	RunID      string        // Unique run identifier
	Workflow   string        // Workflow name
	Event      string        // Trigger event the run was invoked for
	TotalJobs  int           // Total matrix instances scheduled
	Passed     int           // Instances that passed
	Failed     int           // Instances that failed
	Skipped    int           // Instances skipped (dependency failures)
	Canceled   int           // Instances canceled
	Duration   time.Duration // Total execution time
	JobResults []JobResult   // All instance results in schedule order
	StartedAt  time.Time     // Run start timestamp
}

// Success reports whether the run completed with no failed or canceled
// instances.
func (r *RunResult) Success() bool {
	return r.Failed == 0 && r.Canceled == 0
}

// FailedJobs returns the instance results that ended in failure.
func (r *RunResult) FailedJobs() []JobResult {
	var failed []JobResult
	for _, jr := range r.JobResults {
		if jr.Failed() {
			failed = append(failed, jr)
		}
	}
	return failed
}
