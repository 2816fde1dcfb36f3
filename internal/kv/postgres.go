package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcontarini/converse/internal/logger"
)

// PostgresStore emulates the key-value contract on a single relational table.
// Expiry is enforced on read; a janitor sweeps dead rows in the background so
// the table does not grow without bound.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string, log *logger.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at TIMESTAMPTZ
	);`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init kv schema: %w", err)
	}

	log.Info("connected to postgres kv store")
	return &PostgresStore{
		pool: pool,
		log:  log.With("component", "kv_postgres"),
		now:  time.Now,
	}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_entries WHERE key=$1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now().UTC(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	deadline := deadlineArg(s.now(), ttl)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at`,
		key, value, deadline,
	)
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	deadline := deadlineArg(s.now(), ttl)
	tag, err := s.pool.Exec(ctx,
		`UPDATE kv_entries SET expires_at=$2 WHERE key=$1 AND (expires_at IS NULL OR expires_at > $3)`,
		key, deadline, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("kv expire %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Del(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key=$1`, key); err != nil {
		return fmt.Errorf("kv del %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, '1', NULL)
		 ON CONFLICT (key) DO UPDATE SET value=(kv_entries.value::bigint + 1)::text
		 RETURNING value::bigint`,
		key,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("kv incr %q: %w", key, err)
	}
	return n, nil
}

func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM kv_entries WHERE key LIKE $1 || '%' AND (expires_at IS NULL OR expires_at > $2)`,
		prefix, s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("kv keys %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan kv key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kv keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// StartJanitor periodically deletes expired rows until ctx is done.
func (s *PostgresStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tag, err := s.pool.Exec(ctx,
					`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`,
					s.now().UTC(),
				)
				if err != nil {
					s.log.Warn("kv janitor sweep failed", "error", err)
					continue
				}
				if n := tag.RowsAffected(); n > 0 {
					s.log.Debug("kv janitor removed expired rows", "rows", n)
				}
			}
		}
	}()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func deadlineArg(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	d := now.UTC().Add(ttl)
	return &d
}
