package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder/gantry/internal/models"
)

func readRecords(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestFileLoggerWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, "run-abc")
	require.NoError(t, err)
	defer fl.Close()

	fl.LogRunStart(sampleWorkflow(), "push", "run-abc")
	fl.LogJobStart("test (3.9)")
	fl.LogStepResult("test (3.9)", models.StepResult{
		Step:     models.Step{Run: "pytest"},
		Status:   models.StatusPassed,
		ExitCode: 0,
		Duration: time.Second,
	})
	fl.LogSummary(models.RunResult{Workflow: "CI", RunID: "run-abc", Passed: 1})

	require.NoError(t, fl.Close())

	records := readRecords(t, filepath.Join(dir, "run-abc.jsonl"))
	require.Len(t, records, 4)

	assert.Equal(t, "run_start", records[0]["event"])
	assert.Equal(t, "CI", records[0]["workflow"])
	assert.Equal(t, "job_start", records[1]["event"])
	assert.Equal(t, "step_result", records[2]["event"])
	assert.Equal(t, "passed", records[2]["status"])
	assert.EqualValues(t, 0, records[2]["exit_code"])
	assert.Equal(t, "run_summary", records[3]["event"])
	assert.EqualValues(t, 1, records[3]["passed"])
}

func TestFileLoggerCreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	fl, err := NewFileLogger(dir, "run-1")
	require.NoError(t, err)
	defer fl.Close()

	assert.FileExists(t, fl.Path())
}

func TestFileLoggerWriteAfterClose(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir(), "run-2")
	require.NoError(t, err)
	require.NoError(t, fl.Close())

	// Must not panic, and a second Close is a no-op.
	fl.LogJobStart("x")
	assert.NoError(t, fl.Close())
}

func TestMultiLoggerFansOut(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, "run-3")
	require.NoError(t, err)
	defer fl.Close()

	ml := NewMultiLogger(nil, fl)
	ml.LogJobStart("test")
	ml.LogJobResult(models.JobResult{Name: "test", Status: models.StatusPassed})

	require.NoError(t, fl.Close())
	records := readRecords(t, fl.Path())
	require.Len(t, records, 2)
	assert.Equal(t, "job_result", records[1]["event"])
}
