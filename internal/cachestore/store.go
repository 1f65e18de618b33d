// Package cachestore provides the SQLite-backed key-value store consumed by
// the multi-level cache's persistent tier. Keys are namespaced by the caller;
// the store itself is a dumb, durable map.
package cachestore

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

// Store manages cache persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the cache database at dir/cache.db.
func Open(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "cache.db")
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
		return nil, fmt.Errorf("create cache schema: %w", err)
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

// Get returns the stored value for key, or ok=false when absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cache entry: %w", err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any existing entry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
             ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UTC().Format(time.RFC3339Nano),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
		return execErr
	}); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry whose key starts with prefix. An empty prefix
// clears the whole store.
func (s *Store) Clear(ctx context.Context, prefix string) (int64, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		if prefix == "" {
			res, execErr = s.db.ExecContext(ctx, `DELETE FROM kv_entries`)
		} else {
			res, execErr = s.db.ExecContext(ctx,
				`DELETE FROM kv_entries WHERE key GLOB ?`, glob(prefix))
		}
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("clear cache entries: %w", err)
	}
	return res.RowsAffected()
}

// Keys returns every key matching prefix, oldest first.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE key GLOB ? ORDER BY updated_at ASC`, glob(prefix))
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Count returns the number of entries matching prefix.
func (s *Store) Count(ctx context.Context, prefix string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM kv_entries WHERE key GLOB ?`, glob(prefix)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

// Trim deletes the oldest entries under prefix until at most max remain.
func (s *Store) Trim(ctx context.Context, prefix string, max int) (int64, error) {
	if max < 0 {
		max = 0
	}
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`DELETE FROM kv_entries WHERE key IN (
                SELECT key FROM kv_entries WHERE key GLOB ?
                ORDER BY updated_at DESC LIMIT -1 OFFSET ?
             )`, glob(prefix), max)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("trim cache entries: %w", err)
	}
	return res.RowsAffected()
}

func glob(prefix string) string {
	return prefix + "*"
}
