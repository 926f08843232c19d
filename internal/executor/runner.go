package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
)

// Command describes one shell invocation.
type Command struct {
	Script string   // Shell script to run
	Shell  string   // Shell binary (default "sh")
	Dir    string   // Working directory (empty = current dir)
	Env    []string // Extra KEY=VALUE pairs appended to the parent environment
}

// CommandRunner abstracts shell command execution for testability.
type CommandRunner interface {
	// Run executes the command and returns its combined output and exit
	// code. err is non-nil when the command exited non-zero or could not
	// be started.
	Run(ctx context.Context, cmd Command) (output string, exitCode int, err error)
}

// ShellCommandRunner executes commands via the system shell.
type ShellCommandRunner struct{}

// NewShellCommandRunner creates a CommandRunner that executes real shell commands.
func NewShellCommandRunner() *ShellCommandRunner {
	return &ShellCommandRunner{}
}

// Run executes a command via `<shell> -c` and returns combined
// stdout/stderr plus the process exit code. Failure handling stays with
// the invoked tool: a non-zero exit is reported as-is, never retried.
func (r *ShellCommandRunner) Run(ctx context.Context, cmd Command) (string, int, error) {
	shell := cmd.Shell
	if shell == "" {
		shell = "sh"
	}

	c := exec.CommandContext(ctx, shell, "-c", cmd.Script)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	output, err := c.CombinedOutput()
	if err == nil {
		return string(output), 0, nil
	}

	// Prefer the context error so callers can distinguish cancellation and
	// timeout from an ordinary non-zero exit.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return string(output), -1, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(output), exitErr.ExitCode(), err
	}
	return string(output), -1, err
}
