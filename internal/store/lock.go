package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
)

// LockStore is the shared table behind the distributed lock service.
//
// Implementations must enforce at most one queued or running row per
// (subject, user, work kind) with a uniqueness constraint, and report a
// violation on Insert as ErrLockHeld.
type LockStore interface {
	// DeleteExpired removes every lock whose expiry is at or before now and
	// returns the number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// FindActive returns the queued or running lock for the key.
	// Returns ErrLockNotFound if there is none.
	FindActive(ctx context.Context, subjectID, userID uuid.UUID, kind domain.WorkKind) (*domain.GenerationLock, error)

	// FindAnyActive returns the most recently acquired queued or running lock
	// for the subject and user, whatever its work kind, ignoring rows that
	// have expired by now. Returns ErrLockNotFound if there is none.
	FindAnyActive(ctx context.Context, subjectID, userID uuid.UUID, now time.Time) (*domain.GenerationLock, error)

	// Insert creates a new lock row. Returns ErrLockHeld on a uniqueness violation.
	Insert(ctx context.Context, lock *domain.GenerationLock) error

	// UpdateStatus changes the status of a lock owned by owner. started and
	// completed are written when non-nil. Returns ErrLockNotFound if no row
	// with that id is owned by owner.
	UpdateStatus(
		ctx context.Context,
		id uuid.UUID,
		owner string,
		status domain.LockStatus,
		started, completed *time.Time,
		errorMessage *string,
	) error

	// Delete removes the lock rows for the key regardless of status or owner.
	// Returns the number of rows removed.
	Delete(ctx context.Context, subjectID, userID uuid.UUID, kind domain.WorkKind) (int64, error)

	// List returns all locks for the user, or every lock when userID is uuid.Nil,
	// most recently acquired first.
	List(ctx context.Context, userID uuid.UUID) ([]*domain.GenerationLock, error)
}
