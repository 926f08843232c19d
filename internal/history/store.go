// Package history persists workflow run results to a per-workspace
// SQLite database so past runs can be listed and inspected.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calder/gantry/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// StepRecord is a persisted step result.
type StepRecord struct {
	Name         string
	Run          string
	Status       string
	ExitCode     int
	Output       string
	ErrorMessage string
	Duration     time.Duration
}

// JobRecord is a persisted matrix instance result.
type JobRecord struct {
	JobID        string
	Name         string
	Matrix       map[string]string
	Status       string
	ErrorMessage string
	Duration     time.Duration
	Steps        []StepRecord
}

// RunRecord is a persisted workflow run. ListRuns leaves Jobs empty;
// GetRun fills it.
type RunRecord struct {
	RunID     string
	Workflow  string
	Event     string
	TotalJobs int
	Passed    int
	Failed    int
	Skipped   int
	Canceled  int
	Duration  time.Duration
	StartedAt time.Time
	Jobs      []JobRecord
}

// Store manages the SQLite database holding run history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new Store instance and initializes the database.
func NewStore(dbPath string) (*Store, error) {
	// Handle in-memory database
	if dbPath == ":memory:" {
		return openAndInitStore(dbPath)
	}

	// Ensure parent directory exists for file-based databases
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	return openAndInitStore(dbPath)
}

func openAndInitStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure SQLite for concurrent access with retry logic.
	// Set busy_timeout FIRST so subsequent operations wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, sql string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(sql)
		if err == nil {
			return nil
		}

		// Only retry on "database is locked" errors
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		lastErr = err
		delay := baseDelay * time.Duration(1<<attempt)
		time.Sleep(delay)
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun persists a completed run with all its job and step results.
func (s *Store) RecordRun(ctx context.Context, result *models.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, workflow, event, total_jobs, passed, failed, skipped, canceled, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.Workflow, result.Event,
		result.TotalJobs, result.Passed, result.Failed, result.Skipped, result.Canceled,
		result.Duration.Milliseconds(), result.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", result.RunID, err)
	}

	for i, jr := range result.JobResults {
		matrix, err := json.Marshal(jr.Instance.Values)
		if err != nil {
			return fmt.Errorf("marshal matrix for %s: %w", jr.Name, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO job_results (run_id, position, job_id, name, matrix, status, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID, i, jr.JobID, jr.Name, string(matrix), jr.Status,
			errorMessage(jr.Error), jr.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert job result %s: %w", jr.Name, err)
		}

		jobRowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("job result id: %w", err)
		}

		for j, sr := range jr.Steps {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO step_results (job_result_id, position, name, run_script, status, exit_code, output, error, duration_ms)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				jobRowID, j, sr.Step.Name, sr.Step.Run, sr.Status, sr.ExitCode,
				sr.Output, errorMessage(sr.Error), sr.Duration.Milliseconds())
			if err != nil {
				return fmt.Errorf("insert step result: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", result.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A limit of 0 or
// less returns all runs. Jobs are not populated.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, workflow, event, total_jobs, passed, failed, skipped, canceled, duration_ms, started_at
		FROM runs ORDER BY started_at DESC, run_id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var durationMs int64
		if err := rows.Scan(&r.RunID, &r.Workflow, &r.Event,
			&r.TotalJobs, &r.Passed, &r.Failed, &r.Skipped, &r.Canceled,
			&durationMs, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run with all job and step results. Run IDs may
// be abbreviated to a unique prefix.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, workflow, event, total_jobs, passed, failed, skipped, canceled, duration_ms, started_at
		FROM runs WHERE run_id LIKE ? ORDER BY started_at DESC LIMIT 2`,
		runID+"%")
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	defer rows.Close()

	var matches []RunRecord
	for rows.Next() {
		var r RunRecord
		var durationMs int64
		if err := rows.Scan(&r.RunID, &r.Workflow, &r.Event,
			&r.TotalJobs, &r.Passed, &r.Failed, &r.Skipped, &r.Canceled,
			&durationMs, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("run %s not found", runID)
	case 1:
	default:
		return nil, fmt.Errorf("run id %s is ambiguous", runID)
	}

	run := matches[0]
	if err := s.loadJobs(ctx, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) loadJobs(ctx context.Context, run *RunRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, name, matrix, status, error, duration_ms
		FROM job_results WHERE run_id = ? ORDER BY position`,
		run.RunID)
	if err != nil {
		return fmt.Errorf("query job results: %w", err)
	}
	defer rows.Close()

	var rowIDs []int64
	for rows.Next() {
		var jr JobRecord
		var rowID, durationMs int64
		var matrix string
		var errMsg sql.NullString
		if err := rows.Scan(&rowID, &jr.JobID, &jr.Name, &matrix, &jr.Status, &errMsg, &durationMs); err != nil {
			return fmt.Errorf("scan job result: %w", err)
		}
		if err := json.Unmarshal([]byte(matrix), &jr.Matrix); err != nil {
			return fmt.Errorf("unmarshal matrix for %s: %w", jr.Name, err)
		}
		jr.ErrorMessage = errMsg.String
		jr.Duration = time.Duration(durationMs) * time.Millisecond
		run.Jobs = append(run.Jobs, jr)
		rowIDs = append(rowIDs, rowID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i, rowID := range rowIDs {
		steps, err := s.loadSteps(ctx, rowID)
		if err != nil {
			return err
		}
		run.Jobs[i].Steps = steps
	}
	return nil
}

func (s *Store) loadSteps(ctx context.Context, jobRowID int64) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, run_script, status, exit_code, output, error, duration_ms
		FROM step_results WHERE job_result_id = ? ORDER BY position`,
		jobRowID)
	if err != nil {
		return nil, fmt.Errorf("query step results: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var sr StepRecord
		var durationMs int64
		var output, errMsg sql.NullString
		if err := rows.Scan(&sr.Name, &sr.Run, &sr.Status, &sr.ExitCode, &output, &errMsg, &durationMs); err != nil {
			return nil, fmt.Errorf("scan step result: %w", err)
		}
		sr.Output = output.String
		sr.ErrorMessage = errMsg.String
		sr.Duration = time.Duration(durationMs) * time.Millisecond
		steps = append(steps, sr)
	}
	return steps, rows.Err()
}

// Prune deletes runs older than the given age along with their job and
// step results. Returns the number of runs deleted.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM step_results WHERE job_result_id IN (
			SELECT jr.id FROM job_results jr
			JOIN runs r ON r.run_id = jr.run_id
			WHERE r.started_at < ?)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune step results: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM job_results WHERE run_id IN (
			SELECT run_id FROM runs WHERE started_at < ?)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune job results: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return deleted, nil
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
