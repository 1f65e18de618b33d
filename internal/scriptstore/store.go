// Package scriptstore persists parse sessions in SQLite. The store deals in
// opaque JSON state blobs keyed by (scriptID, projectID); interpreting the
// blob is the state manager's job.
package scriptstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store manages parse-state persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the script database at dir/scripts.db.
func Open(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "scripts.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create script schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// GetParseState returns the saved state blob for (scriptID, projectID), or
// ok=false when no session exists.
func (s *Store) GetParseState(ctx context.Context, scriptID, projectID string) (string, bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM parse_states WHERE script_id = ? AND project_id = ?`,
		scriptID, projectID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get parse state: %w", err)
	}
	return state, true, nil
}

// UpdateParseState applies mutate to the current state blob inside a single
// transaction. mutate receives the persisted blob (empty string when no
// session exists yet) and returns the blob to write. Returning an error from
// mutate rolls the transaction back.
func (s *Store) UpdateParseState(ctx context.Context, scriptID, projectID string, mutate func(current string) (string, error)) error {
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var current string
		err = tx.QueryRowContext(ctx,
			`SELECT state FROM parse_states WHERE script_id = ? AND project_id = ?`,
			scriptID, projectID).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO parse_states (script_id, project_id, state, updated_at) VALUES (?, ?, ?, ?)
             ON CONFLICT(script_id, project_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
			scriptID, projectID, next, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("update parse state: %w", err)
	}
	return nil
}

// Delete removes the session for (scriptID, projectID). Deleting an absent
// session is not an error.
func (s *Store) Delete(ctx context.Context, scriptID, projectID string) error {
	if err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`DELETE FROM parse_states WHERE script_id = ? AND project_id = ?`, scriptID, projectID)
		return execErr
	}); err != nil {
		return fmt.Errorf("delete parse state: %w", err)
	}
	return nil
}

// SessionRecord is a row returned by List. State is the raw JSON blob.
type SessionRecord struct {
	ScriptID  string
	ProjectID string
	State     string
	UpdatedAt time.Time
}

// List returns every saved session, most recently updated first.
func (s *Store) List(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT script_id, project_id, state, updated_at FROM parse_states ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list parse states: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var updatedAt string
		if err := rows.Scan(&rec.ScriptID, &rec.ProjectID, &rec.State, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan parse state row: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
			rec.UpdatedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
