package executor

import (
	"errors"
	"fmt"
)

// ErrStepFailed indicates a step's command exited non-zero or its guard
// scan found the forbidden marker.
var ErrStepFailed = errors.New("step failed")

// JobError wraps an error with the job instance it belongs to.
type JobError struct {
	Instance string // Instance display name, e.g. "test (3.9)"
	Err      error
}

// NewJobError creates a JobError for the given instance.
func NewJobError(instance string, err error) *JobError {
	return &JobError{Instance: instance, Err: err}
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Instance, e.Err)
}

// Unwrap returns the wrapped error.
func (e *JobError) Unwrap() error {
	return e.Err
}
