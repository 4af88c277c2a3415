package lock_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/store"
)

// mockLockStore is a store.LockStore whose behavior is set per test through
// function fields. Unset fields behave like an empty table.
type mockLockStore struct {
	DeleteExpiredFn func(ctx context.Context, now time.Time) (int64, error)
	FindActiveFn    func(ctx context.Context, subjectID, userID uuid.UUID, kind domain.WorkKind) (*domain.GenerationLock, error)
	FindAnyActiveFn func(ctx context.Context, subjectID, userID uuid.UUID, now time.Time) (*domain.GenerationLock, error)
	InsertFn        func(ctx context.Context, lock *domain.GenerationLock) error
	UpdateStatusFn  func(ctx context.Context, id uuid.UUID, owner string, status domain.LockStatus,
		started, completed *time.Time, errorMessage *string) error
	DeleteFn func(ctx context.Context, subjectID, userID uuid.UUID, kind domain.WorkKind) (int64, error)
	ListFn   func(ctx context.Context, userID uuid.UUID) ([]*domain.GenerationLock, error)
}

var _ store.LockStore = (*mockLockStore)(nil)

func (m *mockLockStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFn != nil {
		return m.DeleteExpiredFn(ctx, now)
	}
	return 0, nil
}

func (m *mockLockStore) FindActive(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.WorkKind,
) (*domain.GenerationLock, error) {
	if m.FindActiveFn != nil {
		return m.FindActiveFn(ctx, subjectID, userID, kind)
	}
	return nil, store.ErrLockNotFound
}

func (m *mockLockStore) FindAnyActive(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	now time.Time,
) (*domain.GenerationLock, error) {
	if m.FindAnyActiveFn != nil {
		return m.FindAnyActiveFn(ctx, subjectID, userID, now)
	}
	return nil, store.ErrLockNotFound
}

func (m *mockLockStore) Insert(ctx context.Context, lock *domain.GenerationLock) error {
	if m.InsertFn != nil {
		return m.InsertFn(ctx, lock)
	}
	return nil
}

func (m *mockLockStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	owner string,
	status domain.LockStatus,
	started, completed *time.Time,
	errorMessage *string,
) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, owner, status, started, completed, errorMessage)
	}
	return nil
}

func (m *mockLockStore) Delete(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.WorkKind,
) (int64, error) {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, subjectID, userID, kind)
	}
	return 0, nil
}

func (m *mockLockStore) List(ctx context.Context, userID uuid.UUID) ([]*domain.GenerationLock, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, userID)
	}
	return nil, nil
}
