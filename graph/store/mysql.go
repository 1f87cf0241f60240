package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Designed for:
//   - Production runs requiring persistence
//   - Deployments where several services share one checkpoint database
//   - Long-running pipelines that survive process restarts
//
// MySQLStore uses connection pooling and upserts keyed on (run_id, step_id).
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed checkpoint store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Example DSN:
//
//	user:password@tcp(localhost:3306)/newsgraph?parseTime=true
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("MYSQL_DSN")
//	st, err := store.NewMySQLStore[pipeline.State](dsn)
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step_id INT NOT NULL,
			state JSON NOT NULL,
			frontier JSON NOT NULL,
			` + "`interrupt`" + ` JSON NULL,
			status VARCHAR(32) NOT NULL,
			timestamp VARCHAR(64) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run_id (run_id),
			UNIQUE KEY unique_run_step (run_id, step_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create run_checkpoints table: %w", err)
	}
	return nil
}

// Save persists a checkpoint (implements Store).
//
// Thread-safe for concurrent writes.
func (m *MySQLStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	stateJSON, frontierJSON, interruptJSON, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}
	var interruptArg any
	if interruptJSON != "" {
		interruptArg = interruptJSON
	}

	query := `
		INSERT INTO run_checkpoints (run_id, step_id, state, frontier, ` + "`interrupt`" + `, status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			frontier = VALUES(frontier),
			` + "`interrupt`" + ` = VALUES(` + "`interrupt`" + `),
			status = VALUES(status),
			timestamp = VALUES(timestamp)
	`

	_, err = m.db.ExecContext(ctx, query,
		cp.RunID,
		cp.StepID,
		stateJSON,
		frontierJSON,
		interruptArg,
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
func (m *MySQLStore[S]) LoadLatest(ctx context.Context, runID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return zero, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT run_id, step_id, state, frontier, ` + "`interrupt`" + `, status, timestamp
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

	err := m.db.QueryRowContext(ctx, query, runID).Scan(
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
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()
	return m.db.PingContext(ctx)
}
