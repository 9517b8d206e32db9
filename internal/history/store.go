// Package history records task outcomes per run in a local SQLite database,
// surfaced through the `drover history` command.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Record is one task execution within a run.
type Record struct {
	RunID    string
	Task     string
	Success  bool
	Error    string
	Duration time.Duration
	Started  time.Time
}

// RunSummary aggregates the records of one run.
type RunSummary struct {
	RunID   string
	Started time.Time
	Tasks   int
	Failed  int
}

// Store manages the SQLite run history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// busy_timeout first, so later statements wait on locks instead of
	// failing when another drover run holds the database.
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordTask inserts one task execution record.
func (s *Store) RecordTask(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs (run_id, task, success, error, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Task, rec.Success, rec.Error, rec.Duration.Milliseconds(), rec.Started)
	if err != nil {
		return fmt.Errorf("record task %s: %w", rec.Task, err)
	}
	return nil
}

// timestampFormats lists the layouts the sqlite driver uses to store
// TIMESTAMP values. An aggregate column carries no declared type, so the
// driver returns the raw string and parsing happens here.
var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp decodes a stored timestamp string.
func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampFormats {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// RecentRuns returns summaries of the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, MIN(started_at), COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		 FROM task_runs
		 GROUP BY run_id
		 ORDER BY MIN(started_at) DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		var started string
		if err := rows.Scan(&run.RunID, &started, &run.Tasks, &run.Failed); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		run.Started, err = parseTimestamp(started)
		if err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunTasks returns the task records of one run in execution order.
func (s *Store) RunTasks(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, task, success, error, duration_ms, started_at
		 FROM task_runs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var ms int64
		if err := rows.Scan(&rec.RunID, &rec.Task, &rec.Success, &rec.Error, &ms, &rec.Started); err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}
