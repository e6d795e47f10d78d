// Package journal persists build run history in a SQLite database.
//
// The journal is observability, not state: the resume store alone decides
// what gets skipped on a re-run. Journal writes are best effort and must
// never fail a build.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run states as stored in the runs table.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one recorded pipeline run.
type Run struct {
	ID         string
	Target     string
	SubArch    string
	Version    string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or after a crash
	Status     string
}

// Event is one stage transition within a run.
type Event struct {
	ID     int64
	RunID  string
	Stage  string
	Event  string
	Detail string
	At     time.Time
}

// Store records runs and stage events in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the journal database. Use ":memory:" for an
// in-memory journal in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		subarch TEXT NOT NULL,
		version TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		event TEXT NOT NULL,
		detail TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RunStarted records a new run in the running state.
func (s *Store) RunStarted(ctx context.Context, runID, target, subarch, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, target, subarch, version, started_at, status) VALUES (?, ?, ?, ?, ?, ?)",
		runID, target, subarch, version, time.Now().Unix(), StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RunFinished marks a run as succeeded or failed.
func (s *Store) RunFinished(ctx context.Context, runID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, status = ? WHERE id = ?",
		time.Now().Unix(), status, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// StageEvent appends one stage transition to a run.
func (s *Store) StageEvent(ctx context.Context, runID, stage, event, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (run_id, stage, event, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		runID, stage, event, detail, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert stage event: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, target, subarch, version, started_at, finished_at, status FROM runs ORDER BY started_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Target, &r.SubArch, &r.Version, &started, &finished, &r.Status); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		if finished.Valid {
			r.FinishedAt = time.Unix(finished.Int64, 0)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Events returns every stage event of a run in insertion order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, stage, event, detail, created_at FROM events WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created int64
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Event, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Detail = detail.String
		e.At = time.Unix(created, 0)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
