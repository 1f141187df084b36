package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteRepository persists saga state to SQLite. Suitable for
// single-process production use; grounded on the teacher's
// checkpoint.SQLiteStore (WAL mode, restrictive file permissions on
// creation, a single table keyed by correlation id).
type SQLiteRepository struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteRepository opens (creating if necessary) a SQLite database at
// path and ensures its schema exists. path may be ":memory:" for tests.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, createErr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
			if createErr == nil {
				if closeErr := f.Close(); closeErr != nil {
					slog.Warn("failed to close saga state file after creation", "path", path, "error", closeErr)
				}
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS saga_state (
			saga_id    INTEGER PRIMARY KEY,
			saga_name  TEXT NOT NULL,
			status     TEXT NOT NULL,
			fields     TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS saga_seen_replies (
			saga_id         INTEGER NOT NULL,
			reply_task_name TEXT NOT NULL,
			PRIMARY KEY (saga_id, reply_task_name)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: create seen-replies table: %w", err)
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0o600); err != nil {
			slog.Warn("failed to set restrictive permissions on saga state file", "path", path, "error", err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

var _ Repository = (*SQLiteRepository)(nil)

// ErrClosed is returned by every method once Close has been called.
var ErrClosed = errors.New("state: repository closed")

// Close releases the underlying database handle.
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

// Create implements Repository.
func (r *SQLiteRepository) Create(_ context.Context, sagaID int64, sagaName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.db.Exec(`
		INSERT INTO saga_state (saga_id, saga_name, status, fields, created_at, updated_at)
		VALUES (?, ?, 'new', '{}', ?, ?)
	`, sagaID, sagaName, now, now)
	if err != nil {
		return fmt.Errorf("state: create saga %d: %w", sagaID, err)
	}
	return nil
}

// GetSagaStateByID implements Repository.
func (r *SQLiteRepository) GetSagaStateByID(_ context.Context, sagaID int64) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return Record{}, ErrClosed
	}

	var rec Record
	var fieldsJSON, createdAt, updatedAt string
	err := r.db.QueryRow(`
		SELECT saga_name, status, fields, created_at, updated_at
		FROM saga_state WHERE saga_id = ?
	`, sagaID).Scan(&rec.SagaName, &rec.Status, &fieldsJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("state: get saga %d: %w", sagaID, err)
	}

	rec.SagaID = sagaID
	rec.Fields = map[string]any{}
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return Record{}, fmt.Errorf("state: decode fields for saga %d: %w", sagaID, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

// UpdateStatus implements Repository.
func (r *SQLiteRepository) UpdateStatus(_ context.Context, sagaID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	res, err := r.db.Exec(`
		UPDATE saga_state SET status = ?, updated_at = ? WHERE saga_id = ?
	`, status, time.Now().UTC().Format(time.RFC3339Nano), sagaID)
	if err != nil {
		return fmt.Errorf("state: update status for saga %d: %w", sagaID, err)
	}
	return requireRowsAffected(res, sagaID)
}

// Update implements Repository. New keys are merged into the persisted
// fields blob; existing keys are overwritten.
func (r *SQLiteRepository) Update(_ context.Context, sagaID int64, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	var fieldsJSON string
	if err := r.db.QueryRow(`SELECT fields FROM saga_state WHERE saga_id = ?`, sagaID).Scan(&fieldsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("state: load fields for saga %d: %w", sagaID, err)
	}

	current := map[string]any{}
	if err := json.Unmarshal([]byte(fieldsJSON), &current); err != nil {
		return fmt.Errorf("state: decode fields for saga %d: %w", sagaID, err)
	}
	for k, v := range fields {
		current[k] = v
	}

	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("state: encode fields for saga %d: %w", sagaID, err)
	}

	res, err := r.db.Exec(`
		UPDATE saga_state SET fields = ?, updated_at = ? WHERE saga_id = ?
	`, string(merged), time.Now().UTC().Format(time.RFC3339Nano), sagaID)
	if err != nil {
		return fmt.Errorf("state: update fields for saga %d: %w", sagaID, err)
	}
	return requireRowsAffected(res, sagaID)
}

// OnStepFailure implements Repository.
func (r *SQLiteRepository) OnStepFailure(ctx context.Context, sagaID int64, failedStep string, initialFailure map[string]any) error {
	return r.Update(ctx, sagaID, map[string]any{
		"failed_step":     failedStep,
		"initial_failure": initialFailure,
	})
}

// MarkReplySeen implements Repository.
func (r *SQLiteRepository) MarkReplySeen(_ context.Context, sagaID int64, replyTaskName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrClosed
	}

	var exists int
	err := r.db.QueryRow(`
		SELECT 1 FROM saga_seen_replies WHERE saga_id = ? AND reply_task_name = ?
	`, sagaID, replyTaskName).Scan(&exists)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("state: check seen reply for saga %d: %w", sagaID, err)
	}

	if _, err := r.db.Exec(`
		INSERT INTO saga_seen_replies (saga_id, reply_task_name) VALUES (?, ?)
	`, sagaID, replyTaskName); err != nil {
		return false, fmt.Errorf("state: record seen reply for saga %d: %w", sagaID, err)
	}
	return false, nil
}

// GetSagaStatus implements Repository.
func (r *SQLiteRepository) GetSagaStatus(ctx context.Context, sagaID int64) (string, bool, error) {
	rec, err := r.GetSagaStateByID(ctx, sagaID)
	if errors.Is(err, ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Status, true, nil
}

func requireRowsAffected(res sql.Result, sagaID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("state: rows affected for saga %d: %w", sagaID, err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
