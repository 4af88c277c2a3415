package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/store"
)

const lockColumns = `id, subject_id, user_id, work_kind, status, owner_token,
	acquired_at, started_at, completed_at, expires_at, error_message`

// LockStore implements store.LockStore on SQLite. Timestamps are stored as
// unix milliseconds.
type LockStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewLockStore creates a SQLite implementation of the LockStore interface.
func NewLockStore(db store.DBTX, logger *slog.Logger) *LockStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LockStore{
		db:     db,
		logger: logger.With(slog.String("component", "sqlite_lock_store")),
	}
}

var _ store.LockStore = (*LockStore)(nil)

// DeleteExpired implements store.LockStore.DeleteExpired
func (s *LockStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generation_locks WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, mapError(err, nil)
	}
	return res.RowsAffected()
}

// FindActive implements store.LockStore.FindActive
func (s *LockStore) FindActive(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.WorkKind,
) (*domain.GenerationLock, error) {
	query := `SELECT ` + lockColumns + ` FROM generation_locks
		WHERE subject_id = ? AND user_id = ? AND work_kind = ? AND status IN ('queued', 'running')`

	lock, err := scanLock(s.db.QueryRowContext(ctx, query, subjectID.String(), userID.String(), string(kind)))
	if err != nil {
		return nil, mapError(err, store.ErrLockNotFound)
	}
	return lock, nil
}

// FindAnyActive implements store.LockStore.FindAnyActive
func (s *LockStore) FindAnyActive(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	now time.Time,
) (*domain.GenerationLock, error) {
	query := `SELECT ` + lockColumns + ` FROM generation_locks
		WHERE subject_id = ? AND user_id = ? AND status IN ('queued', 'running') AND expires_at > ?
		ORDER BY acquired_at DESC LIMIT 1`

	lock, err := scanLock(s.db.QueryRowContext(ctx, query, subjectID.String(), userID.String(), now.UnixMilli()))
	if err != nil {
		return nil, mapError(err, store.ErrLockNotFound)
	}
	return lock, nil
}

// Insert implements store.LockStore.Insert
func (s *LockStore) Insert(ctx context.Context, lock *domain.GenerationLock) error {
	query := `INSERT INTO generation_locks (` + lockColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		lock.ID.String(),
		lock.SubjectID.String(),
		lock.UserID.String(),
		string(lock.WorkKind),
		string(lock.Status),
		lock.OwnerToken,
		lock.AcquiredAt.UnixMilli(),
		nullMillis(lock.StartedAt),
		nullMillis(lock.CompletedAt),
		lock.ExpiresAt.UnixMilli(),
		nullString(lock.ErrorMessage),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			s.logger.DebugContext(ctx, "lock insert lost race",
				"subject_id", lock.SubjectID,
				"work_kind", lock.WorkKind)
		}
		return mapError(err, nil)
	}
	return nil
}

// UpdateStatus implements store.LockStore.UpdateStatus
func (s *LockStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	owner string,
	status domain.LockStatus,
	started, completed *time.Time,
	errorMessage *string,
) error {
	query := `UPDATE generation_locks
		SET status = ?,
		    started_at = COALESCE(?, started_at),
		    completed_at = COALESCE(?, completed_at),
		    error_message = COALESCE(?, error_message)
		WHERE id = ? AND owner_token = ?`

	res, err := s.db.ExecContext(ctx, query,
		string(status), nullMillis(started), nullMillis(completed), nullString(errorMessage),
		id.String(), owner)
	if err != nil {
		return mapError(err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrLockNotFound
	}
	return nil
}

// Delete implements store.LockStore.Delete
func (s *LockStore) Delete(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.WorkKind,
) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM generation_locks WHERE subject_id = ? AND user_id = ? AND work_kind = ?`,
		subjectID.String(), userID.String(), string(kind))
	if err != nil {
		return 0, mapError(err, nil)
	}
	return res.RowsAffected()
}

// List implements store.LockStore.List
func (s *LockStore) List(ctx context.Context, userID uuid.UUID) ([]*domain.GenerationLock, error) {
	query := `SELECT ` + lockColumns + ` FROM generation_locks`
	var args []any
	if userID != uuid.Nil {
		query += ` WHERE user_id = ?`
		args = append(args, userID.String())
	}
	query += ` ORDER BY acquired_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer func() { _ = rows.Close() }()

	var locks []*domain.GenerationLock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, mapError(err, nil)
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLock(row rowScanner) (*domain.GenerationLock, error) {
	var (
		lock                   domain.GenerationLock
		id, subjectID, userID  string
		kind, status           string
		acquiredAt, expiresAt  int64
		startedAt, completedAt sql.NullInt64
		errorMessage           sql.NullString
	)
	if err := row.Scan(
		&id, &subjectID, &userID, &kind, &status, &lock.OwnerToken,
		&acquiredAt, &startedAt, &completedAt, &expiresAt, &errorMessage,
	); err != nil {
		return nil, err
	}

	var err error
	if lock.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid lock id %q: %w", id, err)
	}
	if lock.SubjectID, err = uuid.Parse(subjectID); err != nil {
		return nil, fmt.Errorf("invalid subject id %q: %w", subjectID, err)
	}
	if lock.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	lock.WorkKind = domain.WorkKind(kind)
	lock.Status = domain.LockStatus(status)
	lock.AcquiredAt = time.UnixMilli(acquiredAt).UTC()
	lock.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	lock.StartedAt = millisPtr(startedAt)
	lock.CompletedAt = millisPtr(completedAt)
	if errorMessage.Valid {
		msg := errorMessage.String
		lock.ErrorMessage = &msg
	}
	return &lock, nil
}

// mapError translates driver errors into store sentinels.
func mapError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows) && notFound != nil:
		return notFound
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", store.ErrLockHeld, err)
	}
	return err
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
