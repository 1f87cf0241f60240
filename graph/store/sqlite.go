package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It persists checkpoints in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-process pipelines
//   - Local runs that must survive a process restart
//
// SQLiteStore uses WAL mode for concurrent reads and auto-migrates its
// schema on first use. Saving the same (run, step) pair again overwrites
// the row, which is what crash replay of an uncommitted superstep needs.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a SQLite-backed checkpoint store.
//
// The path parameter specifies the database file location:
//   - "./newsgraph.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// Example:
//
//	st, err := store.NewSQLiteStore[pipeline.State]("./newsgraph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step_id INTEGER NOT NULL,
			state TEXT NOT NULL,
			frontier TEXT NOT NULL,
			interrupt TEXT,
			status TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create run_checkpoints table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON run_checkpoints(run_id)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_run_id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_checkpoints_run_step ON run_checkpoints(run_id, step_id)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_run_step: %w", err)
	}
	return nil
}

// Save persists a checkpoint (implements Store).
//
// Thread-safe for concurrent writes.
func (s *SQLiteStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	stateJSON, frontierJSON, interruptJSON, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO run_checkpoints (run_id, step_id, state, frontier, interrupt, status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step_id) DO UPDATE SET
			state = excluded.state,
			frontier = excluded.frontier,
			interrupt = excluded.interrupt,
			status = excluded.status,
			timestamp = excluded.timestamp
	`

	_, err = s.db.ExecContext(ctx, query,
		cp.RunID,
		cp.StepID,
		stateJSON,
		frontierJSON,
		interruptJSON,
		string(cp.Status),
		cp.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadLatest retrieves the highest-step checkpoint for a run (implements
// Store). Returns ErrNotFound if the run has no checkpoints.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return zero, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT run_id, step_id, state, frontier, interrupt, status, timestamp
		FROM run_checkpoints
		WHERE run_id = ?
		ORDER BY step_id DESC
		LIMIT 1
	`

	var (
		stateJSON     string
		frontierJSON  string
		interruptJSON sql.NullString
		status        string
		timestampStr  string
		cp            Checkpoint[S]
	)

	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&cp.RunID,
		&cp.StepID,
		&stateJSON,
		&frontierJSON,
		&interruptJSON,
		&status,
		&timestampStr,
	)
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}

	if err := decodeCheckpoint(&cp, stateJSON, frontierJSON, interruptJSON.String, status, timestampStr); err != nil {
		return zero, err
	}
	return cp, nil
}

// Close closes the database connection. Calling Close multiple times is
// safe.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// encodeCheckpoint serializes the JSON columns shared by the SQL backends.
// The interrupt column is empty when the checkpoint carries none.
func encodeCheckpoint[S any](cp Checkpoint[S]) (stateJSON, frontierJSON, interruptJSON string, err error) {
	stateBytes, err := json.Marshal(cp.State)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal state: %w", err)
	}
	frontierBytes, err := json.Marshal(cp.Frontier)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal frontier: %w", err)
	}
	if cp.Interrupt != nil {
		interruptBytes, err := json.Marshal(cp.Interrupt)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal interrupt: %w", err)
		}
		interruptJSON = string(interruptBytes)
	}
	return string(stateBytes), string(frontierBytes), interruptJSON, nil
}

// decodeCheckpoint fills cp from the JSON columns shared by the SQL
// backends.
func decodeCheckpoint[S any](cp *Checkpoint[S], stateJSON, frontierJSON, interruptJSON, status, timestampStr string) error {
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal([]byte(frontierJSON), &cp.Frontier); err != nil {
		return fmt.Errorf("failed to unmarshal frontier: %w", err)
	}
	if interruptJSON != "" {
		cp.Interrupt = &PendingInterrupt{}
		if err := json.Unmarshal([]byte(interruptJSON), cp.Interrupt); err != nil {
			return fmt.Errorf("failed to unmarshal interrupt: %w", err)
		}
	}
	cp.Status = RunStatus(status)

	ts, err := time.Parse(time.RFC3339Nano, timestampStr)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp: %w", err)
	}
	cp.Timestamp = ts
	return nil
}
