package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
)

// ScheduleUpdate carries the scheduling fields written by a batch review.
type ScheduleUpdate struct {
	ItemID      uuid.UUID
	Kind        domain.ItemKind
	Interval    int
	Easiness    float64
	Repetitions int
	DueDate     time.Time
}

// ReviewStore reads and writes the scheduling slice of reviewable items.
type ReviewStore interface {
	// GetForUpdate retrieves an item's schedule with a row-level lock.
	// It should be called inside a transaction.
	// Returns ErrItemNotFound if the item does not exist.
	GetForUpdate(ctx context.Context, kind domain.ItemKind, id uuid.UUID) (*domain.ReviewableItem, error)

	// SaveState writes every scheduling field of the item.
	// Returns ErrItemNotFound if the item does not exist.
	SaveState(ctx context.Context, kind domain.ItemKind, id uuid.UUID, state domain.ReviewState) error

	// ApplySchedule writes interval, easiness, repetitions and due date for an
	// item owned by userID. Returns ErrItemNotFound when no such item exists.
	ApplySchedule(ctx context.Context, userID uuid.UUID, update ScheduleUpdate) error

	// CountDue counts the user's items for the subject that are due on or before day.
	CountDue(ctx context.Context, userID, subjectID uuid.UUID, day time.Time) (int, error)

	// WithTx returns a new ReviewStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ReviewStore
}
