package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/calder/gantry/internal/models"
)

// FileLogger writes run progress as JSON lines to a per-run log file under
// the configured log directory. One record per event, flushed on every
// write so logs survive a crash. Thread safe.
type FileLogger struct {
	mutex sync.Mutex
	file  *os.File
	path  string
}

// logRecord is one JSON line in the run log.
type logRecord struct {
	Time     time.Time `json:"time"`
	Event    string    `json:"event"`
	Workflow string    `json:"workflow,omitempty"`
	RunID    string    `json:"run_id,omitempty"`
	Trigger  string    `json:"trigger,omitempty"`
	Instance string    `json:"instance,omitempty"`
	Step     string    `json:"step,omitempty"`
	Status   string    `json:"status,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Duration string    `json:"duration,omitempty"`
	Error    string    `json:"error,omitempty"`
	Passed   int       `json:"passed,omitempty"`
	Failed   int       `json:"failed,omitempty"`
	Skipped  int       `json:"skipped,omitempty"`
	Canceled int       `json:"canceled,omitempty"`
}

// NewFileLogger creates a FileLogger writing to <logDir>/<runID>.jsonl,
// creating the directory if needed.
func NewFileLogger(logDir, runID string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	path := filepath.Join(logDir, runID+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	return &FileLogger{file: file, path: path}, nil
}

// Path returns the log file path.
func (fl *FileLogger) Path() string {
	return fl.path
}

// Close closes the underlying file.
func (fl *FileLogger) Close() error {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}

// write appends one record. Encoding errors are swallowed: logging must
// never fail a run.
func (fl *FileLogger) write(record logRecord) {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	if fl.file == nil {
		return
	}
	record.Time = time.Now().UTC()
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	fl.file.Write(append(data, '\n'))
}

// LogRunStart records the start of a workflow run.
func (fl *FileLogger) LogRunStart(workflow *models.Workflow, event, runID string) {
	fl.write(logRecord{Event: "run_start", Workflow: workflow.Name, RunID: runID, Trigger: event})
}

// LogJobStart records the start of one matrix instance.
func (fl *FileLogger) LogJobStart(instance string) {
	fl.write(logRecord{Event: "job_start", Instance: instance})
}

// LogStepStart records the start of a step.
func (fl *FileLogger) LogStepStart(instance string, step models.Step) {
	fl.write(logRecord{Event: "step_start", Instance: instance, Step: step.DisplayName()})
}

// LogStepResult records the outcome of a step.
func (fl *FileLogger) LogStepResult(instance string, result models.StepResult) {
	record := logRecord{
		Event:    "step_result",
		Instance: instance,
		Step:     result.Step.DisplayName(),
		Status:   result.Status,
		Duration: result.Duration.String(),
	}
	exitCode := result.ExitCode
	record.ExitCode = &exitCode
	if result.Error != nil {
		record.Error = result.Error.Error()
	}
	fl.write(record)
}

// LogJobResult records the aggregate outcome of one matrix instance.
func (fl *FileLogger) LogJobResult(result models.JobResult) {
	record := logRecord{
		Event:    "job_result",
		Instance: result.Name,
		Status:   result.Status,
		Duration: result.Duration.String(),
	}
	if result.Error != nil {
		record.Error = result.Error.Error()
	}
	fl.write(record)
}

// LogSummary records the run summary.
func (fl *FileLogger) LogSummary(result models.RunResult) {
	fl.write(logRecord{
		Event:    "run_summary",
		Workflow: result.Workflow,
		RunID:    result.RunID,
		Duration: result.Duration.String(),
		Passed:   result.Passed,
		Failed:   result.Failed,
		Skipped:  result.Skipped,
		Canceled: result.Canceled,
	})
}
