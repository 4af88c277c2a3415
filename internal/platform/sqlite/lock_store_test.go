package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LockStore {
	t.Helper()
	db, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewLockStore(db, nil)
}

func newLock(subjectID, userID uuid.UUID, kind domain.WorkKind, owner string, now time.Time) *domain.GenerationLock {
	return &domain.GenerationLock{
		ID:         uuid.New(),
		SubjectID:  subjectID,
		UserID:     userID,
		WorkKind:   kind,
		Status:     domain.LockStatusQueued,
		OwnerToken: owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(time.Minute),
	}
}

func TestLockStore_InsertAndFind(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	subjectID, userID := uuid.New(), uuid.New()

	lock := newLock(subjectID, userID, domain.WorkKindFlashcards, "owner-a", now)
	require.NoError(t, s.Insert(ctx, lock))

	got, err := s.FindActive(ctx, subjectID, userID, domain.WorkKindFlashcards)
	require.NoError(t, err)
	assert.Equal(t, lock.ID, got.ID)
	assert.Equal(t, "owner-a", got.OwnerToken)
	assert.True(t, lock.AcquiredAt.Equal(got.AcquiredAt))
	assert.True(t, lock.ExpiresAt.Equal(got.ExpiresAt))
	assert.Nil(t, got.StartedAt)

	_, err = s.FindActive(ctx, subjectID, userID, domain.WorkKindQuiz)
	assert.ErrorIs(t, err, store.ErrLockNotFound)
}

func TestLockStore_UniqueActiveKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	subjectID, userID := uuid.New(), uuid.New()

	require.NoError(t, s.Insert(ctx, newLock(subjectID, userID, domain.WorkKindFlashcards, "a", now)))

	err := s.Insert(ctx, newLock(subjectID, userID, domain.WorkKindFlashcards, "b", now))
	assert.ErrorIs(t, err, store.ErrLockHeld)

	// other kinds and other users are independent keys
	assert.NoError(t, s.Insert(ctx, newLock(subjectID, userID, domain.WorkKindQuiz, "b", now)))
	assert.NoError(t, s.Insert(ctx, newLock(subjectID, uuid.New(), domain.WorkKindFlashcards, "b", now)))
}

func TestLockStore_TerminalRowFreesKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	subjectID, userID := uuid.New(), uuid.New()

	first := newLock(subjectID, userID, domain.WorkKindQuiz, "a", now)
	require.NoError(t, s.Insert(ctx, first))

	msg := "model refused"
	require.NoError(t, s.UpdateStatus(ctx, first.ID, "a", domain.LockStatusFailed, nil, &now, &msg))

	assert.NoError(t, s.Insert(ctx, newLock(subjectID, userID, domain.WorkKindQuiz, "b", now)))

	all, err := s.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestLockStore_UpdateStatus(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	lock := newLock(uuid.New(), uuid.New(), domain.WorkKindFlashcards, "a", now)
	require.NoError(t, s.Insert(ctx, lock))

	err := s.UpdateStatus(ctx, lock.ID, "intruder", domain.LockStatusRunning, &now, nil, nil)
	assert.ErrorIs(t, err, store.ErrLockNotFound)

	require.NoError(t, s.UpdateStatus(ctx, lock.ID, "a", domain.LockStatusRunning, &now, nil, nil))
	later := now.Add(time.Second)
	require.NoError(t, s.UpdateStatus(ctx, lock.ID, "a", domain.LockStatusCompleted, nil, &later, nil))

	locks, err := s.List(ctx, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	got := locks[0]
	assert.Equal(t, domain.LockStatusCompleted, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, now.Equal(*got.StartedAt), "started_at is kept when not supplied")
	assert.True(t, later.Equal(*got.CompletedAt))
}

func TestLockStore_ExpiryAndFindAnyActive(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	subjectID, userID := uuid.New(), uuid.New()

	stale := newLock(subjectID, userID, domain.WorkKindFlashcards, "a", now.Add(-time.Hour))
	require.NoError(t, s.Insert(ctx, stale))

	_, err := s.FindAnyActive(ctx, subjectID, userID, now)
	assert.ErrorIs(t, err, store.ErrLockNotFound, "expired rows are not active")

	fresh := newLock(subjectID, userID, domain.WorkKindBoth, "b", now)
	require.NoError(t, s.Insert(ctx, fresh))

	got, err := s.FindAnyActive(ctx, subjectID, userID, now)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.ID)

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Delete(ctx, subjectID, userID, domain.WorkKindBoth)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewLockStore_NilDB(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewLockStore(nil, nil) })
}
