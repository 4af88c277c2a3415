// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store package, together with
// the embedded goose migrations for the schema they expect.
//
// Uniqueness violations are mapped to store.ErrDuplicate (or a more specific
// error wrapping it) so callers can tell a lost race from a failure.
package postgres
