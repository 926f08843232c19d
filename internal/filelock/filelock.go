// Package filelock serializes gantry runs per workspace and provides
// atomic file writes for run state.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock is an advisory lock that ensures at most one gantry run executes
// in a workspace at a time. The lock file lives in the workspace state
// directory.
type RunLock struct {
	flock *flock.Flock
	path  string
}

// NewRunLock creates the run lock for the given workspace state directory
// (typically ".gantry"), creating the directory if needed.
func NewRunLock(stateDir string) (*RunLock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, "run.lock")
	return &RunLock{flock: flock.New(path), path: path}, nil
}

// Path returns the lock file path.
func (rl *RunLock) Path() string {
	return rl.path
}

// TryAcquire attempts to take the lock without blocking. Returns false if
// another run holds it.
func (rl *RunLock) TryAcquire() (bool, error) {
	acquired, err := rl.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock %s: %w", rl.path, err)
	}
	return acquired, nil
}

// Acquire takes the lock, blocking until it is available.
func (rl *RunLock) Acquire() error {
	if err := rl.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire run lock %s: %w", rl.path, err)
	}
	return nil
}

// Release gives the lock up.
func (rl *RunLock) Release() error {
	if err := rl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock %s: %w", rl.path, err)
	}
	return nil
}

// AtomicWrite writes data to a file atomically using a temp file and
// rename, so readers never observe a partial write. If the operation
// fails, the original file (if any) remains unchanged.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Temp file in the target directory keeps the rename on one filesystem,
	// which is what makes it atomic.
	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	tempFile = nil // renamed, skip cleanup
	return nil
}
