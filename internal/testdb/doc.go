//go:build integration

// Package testdb provides a migrated PostgreSQL database for integration tests.
//
// Open starts a disposable postgres:16-alpine container with testcontainers
// unless SCRY_TEST_DB_URL points at an existing server, applies the embedded
// goose migrations, and registers cleanup on the test. WithTx runs a test
// body inside a transaction that is always rolled back, so tests can share
// one database and still run in parallel:
//
//	func TestSomething(t *testing.T) {
//	    db := testdb.Open(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        s := postgres.NewPostgresLockStore(tx, nil)
//	        ...
//	    })
//	}
//
// Tests that need real cross-connection behavior, such as two sessions racing
// on a unique index, should use the *sql.DB directly and clean up with Truncate.
package testdb
