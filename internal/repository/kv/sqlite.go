package kv

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"storefront/internal/migrate"
)

// SQLite is a file-backed Repository. Callers must Close it.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("kv sqlite: path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "kv sqlite: open")
	}
	// database/sql pools connections; a single writer avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "kv sqlite: ping")
	}
	if err := migrate.ApplySQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "kv sqlite: migrate")
	}
	return &SQLite{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "kv sqlite: get %s", key)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv_entries (key, value, updated_at)
VALUES (?, ?, strftime('%s', 'now'))
ON CONFLICT (key) DO UPDATE
SET value = excluded.value,
    updated_at = excluded.updated_at
`, key, value)
	if err != nil {
		if strings.Contains(err.Error(), "SQLITE_FULL") || strings.Contains(err.Error(), "database or disk is full") {
			return errors.Wrapf(ErrQuotaExceeded, "kv sqlite: set %s", key)
		}
		return errors.Wrapf(err, "kv sqlite: set %s", key)
	}
	return nil
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "kv sqlite: remove %s", key)
	}
	return nil
}

func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT key
FROM kv_entries
WHERE substr(key, 1, length(?1)) = ?1
ORDER BY rowid ASC
`, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "kv sqlite: keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "kv sqlite: scan key")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "kv sqlite: keys rows")
	}
	return keys, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "kv sqlite: ping")
}
