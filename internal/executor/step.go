package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/calder/gantry/internal/guard"
	"github.com/calder/gantry/internal/models"
)

// JobContext carries the resolved execution environment for one matrix
// instance: the matrix assignment, the layered environment, and the
// directories commands run in.
type JobContext struct {
	Matrix       map[string]string // Matrix key -> value for this instance
	Env          map[string]string // Workflow + job env, already merged
	WorkingDir   string            // Job-level working directory (may be empty)
	Root         string            // Workspace root (guard scans and relative dirs)
	WorkflowFile string            // Workflow definition path, excluded from guard scans
}

// StepExecutor runs individual steps: shell commands and guard scans.
type StepExecutor struct {
	runner CommandRunner
}

// NewStepExecutor constructs a StepExecutor with the provided runner.
// A nil runner falls back to the real shell runner.
func NewStepExecutor(runner CommandRunner) *StepExecutor {
	if runner == nil {
		runner = NewShellCommandRunner()
	}
	return &StepExecutor{runner: runner}
}

// Execute runs one step under the given job context and returns its
// result. Failures are reported through the result's Status and Error
// fields rather than a separate return value.
func (e *StepExecutor) Execute(ctx context.Context, step models.Step, jc JobContext) models.StepResult {
	result := models.StepResult{Step: step, ExitCode: -1}

	if ctx.Err() != nil {
		result.Status = models.StatusCanceled
		result.Error = ctx.Err()
		return result
	}

	env := layerEnv(jc.Env, models.InterpolateMap(step.Env, jc.Matrix, jc.Env))

	if step.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutMinutes)*time.Minute)
		defer cancel()
	}

	start := time.Now()
	if step.Guard != nil {
		e.runGuard(ctx, step, jc, env, &result)
	} else {
		e.runShell(ctx, step, jc, env, &result)
	}
	result.Duration = time.Since(start)

	return result
}

// runShell executes a run step via the command runner.
func (e *StepExecutor) runShell(ctx context.Context, step models.Step, jc JobContext, env map[string]string, result *models.StepResult) {
	script := models.Interpolate(step.Run, jc.Matrix, env)

	output, exitCode, err := e.runner.Run(ctx, Command{
		Script: script,
		Shell:  step.Shell,
		Dir:    resolveDir(jc, step),
		Env:    flattenEnv(env, jc.Matrix),
	})

	result.Output = output
	result.ExitCode = exitCode

	switch {
	case err == nil:
		result.Status = models.StatusPassed
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		// A timeout is a failure, the way hosted CI reports it; only an
		// outside cancellation (signal, fail-fast) counts as canceled.
		result.Status = models.StatusFailed
		result.Error = fmt.Errorf("%w: %q timed out", ErrStepFailed, script)
	case ctx.Err() != nil:
		result.Status = models.StatusCanceled
		result.Error = ctx.Err()
	default:
		result.Status = models.StatusFailed
		result.Error = fmt.Errorf("%w: %q exited with code %d", ErrStepFailed, script, exitCode)
	}
}

// runGuard executes a guard step: scan the tree for the forbidden marker
// and fail the step when any match exists.
func (e *StepExecutor) runGuard(ctx context.Context, step models.Step, jc JobContext, env map[string]string, result *models.StepResult) {
	spec := step.Guard
	scanner := &guard.Scanner{
		Marker:  models.Interpolate(spec.Marker, jc.Matrix, env),
		Paths:   spec.Paths,
		Exclude: spec.Exclude,
	}
	// The workflow file declares the marker, so scanning it would make
	// every guard step self-match on a clean tree.
	if jc.WorkflowFile != "" {
		scanner.SkipFiles = []string{jc.WorkflowFile}
	}

	root := jc.Root
	if root == "" {
		root = "."
	}

	matches, err := scanner.Scan(ctx, root)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.Status = models.StatusFailed
			result.Error = fmt.Errorf("%w: guard scan timed out", ErrStepFailed)
		case ctx.Err() != nil:
			result.Status = models.StatusCanceled
			result.Error = ctx.Err()
		default:
			result.Status = models.StatusFailed
			result.Error = fmt.Errorf("%w: guard scan: %v", ErrStepFailed, err)
		}
		return
	}

	if len(matches) == 0 {
		result.Status = models.StatusPassed
		result.ExitCode = 0
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "found forbidden marker %q in %d location(s):\n", scanner.Marker, len(matches))
	for _, m := range matches {
		fmt.Fprintf(&sb, "  %s:%d: %s\n", m.File, m.Line, m.Text)
	}

	result.Output = sb.String()
	result.ExitCode = 1
	result.Status = models.StatusFailed
	result.Error = fmt.Errorf("%w: %v", ErrStepFailed, guard.ErrMarkerFound)
}

// resolveDir picks the step working directory: step override wins over the
// job directory; relative paths resolve against the workspace root.
func resolveDir(jc JobContext, step models.Step) string {
	dir := step.WorkingDir
	if dir == "" {
		dir = jc.WorkingDir
	}
	dir = models.Interpolate(dir, jc.Matrix, jc.Env)
	if dir == "" {
		return jc.Root
	}
	if !filepath.IsAbs(dir) && jc.Root != "" {
		return filepath.Join(jc.Root, dir)
	}
	return dir
}

// layerEnv merges step env over base env without mutating either.
func layerEnv(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// flattenEnv converts the merged env to KEY=VALUE form and appends the
// matrix assignment as MATRIX_<KEY> variables so scripts can branch on
// their matrix coordinates. Output is sorted for determinism.
func flattenEnv(env, matrix map[string]string) []string {
	flat := make([]string, 0, len(env)+len(matrix))
	for k, v := range env {
		flat = append(flat, k+"="+v)
	}
	for k, v := range matrix {
		flat = append(flat, "MATRIX_"+sanitizeEnvKey(k)+"="+v)
	}
	sort.Strings(flat)
	return flat
}

// sanitizeEnvKey uppercases a matrix key and replaces characters that are
// not valid in environment variable names.
func sanitizeEnvKey(key string) string {
	upper := strings.ToUpper(key)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, upper)
}
