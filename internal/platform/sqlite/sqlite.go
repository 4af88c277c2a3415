// Package sqlite provides a single-node SQLite backend for the generation
// lock table. It satisfies the same store.LockStore contract as the
// PostgreSQL implementation, including the partial unique index that gives
// the lock its mutual exclusion, and is meant for local development and
// single-instance deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS generation_locks (
    id             TEXT PRIMARY KEY,
    subject_id     TEXT NOT NULL,
    user_id        TEXT NOT NULL,
    work_kind      TEXT NOT NULL CHECK (work_kind IN ('flashcards', 'quiz', 'both')),
    status         TEXT NOT NULL CHECK (status IN ('queued', 'running', 'completed', 'failed')),
    owner_token    TEXT NOT NULL,
    acquired_at    INTEGER NOT NULL,
    started_at     INTEGER,
    completed_at   INTEGER,
    expires_at     INTEGER NOT NULL,
    error_message  TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS generation_locks_active_key
    ON generation_locks (subject_id, user_id, work_kind)
    WHERE status IN ('queued', 'running');

CREATE INDEX IF NOT EXISTS idx_generation_locks_expires_at ON generation_locks (expires_at);
`

// Open opens the SQLite database at path and creates the lock schema.
// ":memory:" is accepted for tests; the pool is then pinned to a single
// connection so every query sees the same database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := CreateSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("sqlite lock database opened", "path", path)
	return db, nil
}

// CreateSchema creates the generation_locks table and its indexes if missing.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create lock schema: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
