package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/platform/logger"
	"github.com/phrazzld/scry-engine/internal/store"
)

const lockColumns = `id, subject_id, user_id, work_kind, status, owner_token,
	acquired_at, started_at, completed_at, expires_at, error_message`

// PostgresLockStore implements the store.LockStore interface
// on the generation_locks table.
type PostgresLockStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLockStore creates a new PostgreSQL implementation of the LockStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresLockStore(db store.DBTX, logger *slog.Logger) *PostgresLockStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLockStore{
		db:     db,
		logger: logger.With(slog.String("component", "lock_store")),
	}
}

// Ensure PostgresLockStore implements store.LockStore interface
var _ store.LockStore = (*PostgresLockStore)(nil)

// DeleteExpired implements store.LockStore.DeleteExpired
func (s *PostgresLockStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generation_locks WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// FindActive implements store.LockStore.FindActive
func (s *PostgresLockStore) FindActive(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.WorkKind,
) (*domain.GenerationLock, error) {
	query := `SELECT ` + lockColumns + `
		FROM generation_locks
		WHERE subject_id = $1 AND user_id = $2 AND work_kind = $3
		  AND status IN ('queued', 'running')`

	lock, err := scanLock(s.db.QueryRowContext(ctx, query, subjectID, userID, string(kind)))
	if err != nil {
		return nil, mapErrorAs(err, store.ErrLockNotFound, nil)
	}
	return lock, nil
}

// FindAnyActive implements store.LockStore.FindAnyActive
func (s *PostgresLockStore) FindAnyActive(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	now time.Time,
) (*domain.GenerationLock, error) {
	query := `SELECT ` + lockColumns + `
		FROM generation_locks
		WHERE subject_id = $1 AND user_id = $2
		  AND status IN ('queued', 'running')
		  AND expires_at > $3
		ORDER BY acquired_at DESC
		LIMIT 1`

	lock, err := scanLock(s.db.QueryRowContext(ctx, query, subjectID, userID, now.UTC()))
	if err != nil {
		return nil, mapErrorAs(err, store.ErrLockNotFound, nil)
	}
	return lock, nil
}

// Insert implements store.LockStore.Insert
func (s *PostgresLockStore) Insert(ctx context.Context, lock *domain.GenerationLock) error {
	query := `INSERT INTO generation_locks (` + lockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		lock.ID,
		lock.SubjectID,
		lock.UserID,
		string(lock.WorkKind),
		string(lock.Status),
		lock.OwnerToken,
		lock.AcquiredAt.UTC(),
		nullTime(lock.StartedAt),
		nullTime(lock.CompletedAt),
		lock.ExpiresAt.UTC(),
		nullString(lock.ErrorMessage),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			logger.FromContextOrDefault(ctx, s.logger).Debug("lock insert lost race",
				"subject_id", lock.SubjectID,
				"user_id", lock.UserID,
				"work_kind", lock.WorkKind)
		}
		return mapErrorAs(err, nil, store.ErrLockHeld)
	}
	return nil
}

// UpdateStatus implements store.LockStore.UpdateStatus
func (s *PostgresLockStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	owner string,
	status domain.LockStatus,
	started, completed *time.Time,
	errorMessage *string,
) error {
	query := `UPDATE generation_locks
		SET status = $3,
		    started_at = COALESCE($4, started_at),
		    completed_at = COALESCE($5, completed_at),
		    error_message = COALESCE($6, error_message)
		WHERE id = $1 AND owner_token = $2`

	res, err := s.db.ExecContext(ctx, query,
		id, owner, string(status), nullTime(started), nullTime(completed), nullString(errorMessage))
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrLockNotFound)
}

// Delete implements store.LockStore.Delete
func (s *PostgresLockStore) Delete(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.WorkKind,
) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM generation_locks WHERE subject_id = $1 AND user_id = $2 AND work_kind = $3`,
		subjectID, userID, string(kind))
	if err != nil {
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// List implements store.LockStore.List
func (s *PostgresLockStore) List(ctx context.Context, userID uuid.UUID) ([]*domain.GenerationLock, error) {
	query := `SELECT ` + lockColumns + ` FROM generation_locks`
	var args []any
	if userID != uuid.Nil {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY acquired_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var locks []*domain.GenerationLock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, MapError(err)
		}
		locks = append(locks, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return locks, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLock(row rowScanner) (*domain.GenerationLock, error) {
	var (
		lock                 domain.GenerationLock
		kind, status         string
		started, completed   sql.NullTime
		errorMessage         sql.NullString
		acquiredAt, expireAt time.Time
	)
	err := row.Scan(
		&lock.ID,
		&lock.SubjectID,
		&lock.UserID,
		&kind,
		&status,
		&lock.OwnerToken,
		&acquiredAt,
		&started,
		&completed,
		&expireAt,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	lock.WorkKind = domain.WorkKind(kind)
	lock.Status = domain.LockStatus(status)
	lock.AcquiredAt = acquiredAt.UTC()
	lock.ExpiresAt = expireAt.UTC()
	lock.StartedAt = timePtr(started)
	lock.CompletedAt = timePtr(completed)
	if errorMessage.Valid {
		msg := errorMessage.String
		lock.ErrorMessage = &msg
	}
	return &lock, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
