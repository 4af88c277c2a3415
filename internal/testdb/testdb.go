//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/scry-engine/internal/platform/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestTimeout bounds container startup and migration.
const TestTimeout = 60 * time.Second

// URLEnv names the variable that points tests at an existing database
// instead of starting a container.
const URLEnv = "SCRY_TEST_DB_URL"

var (
	shared     *sql.DB
	sharedErr  error
	sharedOnce sync.Once
)

// Open returns a migrated database shared by every test in the package
// binary. The test is skipped in -short mode.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sharedOnce.Do(func() {
		shared, sharedErr = open()
	})
	require.NoError(t, sharedErr, "failed to prepare test database")
	return shared
}

func open() (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	dsn := os.Getenv(URLEnv)
	if dsn == "" {
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("scry_test"),
			tcpostgres.WithUsername("scry"),
			tcpostgres.WithPassword("scry"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			return nil, err
		}
		// The container lives for the test binary; ryuk reaps it afterwards.
		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = testcontainers.TerminateContainer(container)
			return nil, err
		}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := postgres.Migrate(ctx, db, "up", nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// WithTx runs fn inside a transaction that is rolled back when fn returns.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err, "failed to begin transaction")

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	fn(t, tx)
}

// Truncate empties the given tables when the test finishes.
func Truncate(t *testing.T, db *sql.DB, tables ...string) {
	t.Helper()
	t.Cleanup(func() {
		if len(tables) == 0 {
			return
		}
		_, err := db.ExecContext(context.Background(),
			"TRUNCATE "+strings.Join(tables, ", ")+" CASCADE")
		if err != nil {
			t.Logf("Warning: failed to truncate %v: %v", tables, err)
		}
	})
}
