package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lookup_cache (
	pipeline   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	success    INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (pipeline, key)
);

CREATE INDEX IF NOT EXISTS idx_lookup_cache_success ON lookup_cache(pipeline, success);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, pipeline, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pipeline, key, value, success, updated_at FROM lookup_cache
		 WHERE pipeline = ? AND key = ?`,
		pipeline, key,
	)

	var e Entry
	var value string
	var success int
	err := row.Scan(&e.Pipeline, &e.Key, &value, &success, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s/%s", pipeline, key)
	}
	e.Value = json.RawMessage(value)
	e.Success = success != 0
	return &e, nil
}

func (s *SQLiteStore) Put(ctx context.Context, pipeline, key string, value json.RawMessage, success bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookup_cache (pipeline, key, value, success, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(pipeline, key) DO UPDATE SET
		   value = excluded.value,
		   success = excluded.success,
		   updated_at = excluded.updated_at`,
		pipeline, key, string(value), boolToInt(success), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put %s/%s", pipeline, key)
}

func (s *SQLiteStore) Stats(ctx context.Context, pipeline string) ([]Stats, error) {
	query := `SELECT pipeline, COUNT(*), COALESCE(SUM(success), 0) FROM lookup_cache`
	var args []any
	if pipeline != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipeline)
	}
	query += ` GROUP BY pipeline ORDER BY pipeline`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		var st Stats
		if err := rows.Scan(&st.Pipeline, &st.Total, &st.Succeeded); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stats")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: stats iterate")
}

// Flush checkpoints the WAL so a crash after Flush loses nothing.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return eris.Wrap(err, "sqlite: checkpoint")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
