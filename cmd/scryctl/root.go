package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/scry-engine/internal/config"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/lock"
	"github.com/phrazzld/scry-engine/internal/platform/logger"
	"github.com/phrazzld/scry-engine/internal/platform/postgres"
	"github.com/phrazzld/scry-engine/internal/platform/sqlite"
	"github.com/spf13/cobra"
)

// lockAdmin is the part of lock.Service the lock commands use.
type lockAdmin interface {
	List(ctx context.Context, userID uuid.UUID) ([]*domain.GenerationLock, error)
	ForceDelete(ctx context.Context, subjectID, userID uuid.UUID, kind domain.WorkKind) (int64, error)
	Sweep(ctx context.Context) (int64, error)
}

var _ lockAdmin = (*lock.Service)(nil)

// env holds the constructors the commands open resources through.
type env struct {
	loadConfig func(path string) (*config.Config, error)
	openDB     func(ctx context.Context, url string) (*sql.DB, error)
	openLocks  func(ctx context.Context, cfg *config.Config, log *slog.Logger) (lockAdmin, func() error, error)
	migrate    func(ctx context.Context, db *sql.DB, command string, log *slog.Logger) error
	now        func() time.Time
}

func defaultEnv() env {
	return env{
		loadConfig: config.LoadFrom,
		openDB:     openPostgres,
		openLocks:  openLockService,
		migrate:    postgres.Migrate,
		now:        time.Now,
	}
}

// cli carries state shared by every command invocation.
type cli struct {
	env        env
	configPath string
	logLevel   string
}

func newRootCmd(e env) *cobra.Command {
	c := &cli{env: e}

	root := &cobra.Command{
		Use:   "scryctl",
		Short: "Operate a scry-engine deployment",
		Long: `scryctl runs administrative tasks against the database and lock
store a scry-engine server uses.

Configuration is read from --config (or ./config.yaml) and SCRY_* environment
variables, the same sources the server reads.

Examples:
  scryctl migrate up
  scryctl locks list --user 6f1c...
  scryctl locks sweep
  scryctl token --user 6f1c...`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(c.newMigrateCmd())
	root.AddCommand(c.newLocksCmd())
	root.AddCommand(c.newTokenCmd())
	return root
}

func (c *cli) config() (*config.Config, error) {
	cfg, err := c.env.loadConfig(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// logger writes to stderr so command output on stdout stays parseable.
func (c *cli) logger(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := logger.ParseLevel(c.logLevel)
	if err != nil {
		return nil, err
	}
	return logger.New(cmd.ErrOrStderr(), level), nil
}

func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openLockService(ctx context.Context, cfg *config.Config, log *slog.Logger) (lockAdmin, func() error, error) {
	var (
		db  *sql.DB
		err error
	)
	if cfg.Lock.Backend == "sqlite" {
		db, err = sqlite.Open(ctx, cfg.Lock.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return lock.NewService(sqlite.NewLockStore(db, log), cfg.Lock.TTL(), log), db.Close, nil
	}

	db, err = openPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewService(postgres.NewPostgresLockStore(db, log), cfg.Lock.TTL(), log), db.Close, nil
}
