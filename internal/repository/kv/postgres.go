package kv

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// SQLSTATE disk_full / program_limit_exceeded are surfaced as quota errors.
var pgQuotaCodes = map[string]bool{"53100": true, "54000": true}

type postgresRepo struct {
	pool *pgxpool.Pool
}

// NewPostgres stores entries in the kv_entries table (see internal/migrate).
func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "kv postgres: get %s", key)
	}
	return value, true, nil
}

func (r *postgresRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO kv_entries (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value,
    updated_at = now()
`, key, value)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgQuotaCodes[pgErr.Code] {
			return errors.Wrapf(ErrQuotaExceeded, "kv postgres: set %s: %s", key, pgErr.Message)
		}
		return errors.Wrapf(err, "kv postgres: set %s", key)
	}
	return nil
}

func (r *postgresRepo) Remove(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return errors.Wrapf(err, "kv postgres: remove %s", key)
	}
	return nil
}

func (r *postgresRepo) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT key
FROM kv_entries
WHERE left(key, length($1)) = $1
ORDER BY seq ASC
`, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "kv postgres: keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "kv postgres: scan key")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "kv postgres: keys rows")
	}
	return keys, nil
}

func (r *postgresRepo) Ping(ctx context.Context) error {
	return errors.Wrap(r.pool.Ping(ctx), "kv postgres: ping")
}
