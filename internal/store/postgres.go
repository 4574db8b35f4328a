package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/verdantlab/flora-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool creates a PostgresStore from an existing pool.
// Used by tests to inject pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lookup_cache (
	pipeline   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      JSONB NOT NULL,
	success    BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pipeline, key)
);

CREATE INDEX IF NOT EXISTS idx_lookup_cache_success ON lookup_cache(pipeline, success);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, pipeline, key string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT pipeline, key, value, success, updated_at FROM lookup_cache
		 WHERE pipeline = $1 AND key = $2`,
		pipeline, key,
	)

	var e Entry
	var value []byte
	err := row.Scan(&e.Pipeline, &e.Key, &value, &e.Success, &e.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s/%s", pipeline, key)
	}
	e.Value = json.RawMessage(value)
	return &e, nil
}

func (s *PostgresStore) Put(ctx context.Context, pipeline, key string, value json.RawMessage, success bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lookup_cache (pipeline, key, value, success, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (pipeline, key) DO UPDATE SET
		   value = EXCLUDED.value,
		   success = EXCLUDED.success,
		   updated_at = EXCLUDED.updated_at`,
		pipeline, key, []byte(value), success, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put %s/%s", pipeline, key)
}

func (s *PostgresStore) Stats(ctx context.Context, pipeline string) ([]Stats, error) {
	query := `SELECT pipeline, COUNT(*), COUNT(*) FILTER (WHERE success) FROM lookup_cache`
	var args []any
	if pipeline != "" {
		query += ` WHERE pipeline = $1`
		args = append(args, pipeline)
	}
	query += ` GROUP BY pipeline ORDER BY pipeline`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		var st Stats
		if err := rows.Scan(&st.Pipeline, &st.Total, &st.Succeeded); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: stats iterate")
}

// Flush is a no-op: every Put is immediately durable.
func (s *PostgresStore) Flush(ctx context.Context) error {
	return nil
}
