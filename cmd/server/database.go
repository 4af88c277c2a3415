package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/scry-engine/internal/config"
	"github.com/phrazzld/scry-engine/internal/platform/postgres"
	"github.com/phrazzld/scry-engine/internal/platform/sqlite"
	"github.com/phrazzld/scry-engine/internal/store"
)

const pingTimeout = 10 * time.Second

// openDatabase connects to PostgreSQL, verifies the connection and applies
// pending migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := postgres.Migrate(ctx, db, "up", log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info("database ready", slog.Int("max_open_conns", cfg.MaxOpenConns))
	return db, nil
}

// openLockStore returns the lock store for the configured backend. The
// returned close func releases a backend-owned connection and is never nil.
func openLockStore(
	ctx context.Context,
	cfg config.LockConfig,
	db *sql.DB,
	log *slog.Logger,
) (store.LockStore, func() error, error) {
	switch cfg.Backend {
	case "sqlite":
		ldb, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite lock store: %w", err)
		}
		log.Info("using sqlite lock store", slog.String("path", cfg.SQLitePath))
		return sqlite.NewLockStore(ldb, log), ldb.Close, nil
	default:
		return postgres.NewPostgresLockStore(db, log), func() error { return nil }, nil
	}
}
