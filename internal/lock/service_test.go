package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/lock"
	"github.com/phrazzld/scry-engine/internal/platform/sqlite"
	"github.com/phrazzld/scry-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a manually advanced time source shared by services in a test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSQLiteStore(t *testing.T) store.LockStore {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewLockStore(db, nil)
}

func TestAcquire_Reentrant(t *testing.T) {
	t.Parallel()
	svc := lock.NewService(newSQLiteStore(t), time.Minute, nil)
	ctx := context.Background()
	subjectID, userID := uuid.New(), uuid.New()

	first, err := svc.Acquire(ctx, subjectID, userID, domain.WorkKindFlashcards, 0)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, domain.LockStatusQueued, first.Status)
	assert.Equal(t, svc.OwnerToken(), first.OwnerToken)

	again, err := svc.Acquire(ctx, subjectID, userID, domain.WorkKindFlashcards, 0)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
}

func TestAcquire_DeniedForOtherOwner(t *testing.T) {
	t.Parallel()
	lockStore := newSQLiteStore(t)
	a := lock.NewService(lockStore, time.Minute, nil)
	b := lock.NewService(lockStore, time.Minute, nil)
	ctx := context.Background()
	subjectID, userID := uuid.New(), uuid.New()

	held, err := a.Acquire(ctx, subjectID, userID, domain.WorkKindQuiz, 0)
	require.NoError(t, err)
	require.NotNil(t, held)

	denied, err := b.Acquire(ctx, subjectID, userID, domain.WorkKindQuiz, 0)
	assert.NoError(t, err, "contention is not an error")
	assert.Nil(t, denied)

	other, err := b.Acquire(ctx, subjectID, userID, domain.WorkKindFlashcards, 0)
	require.NoError(t, err)
	assert.NotNil(t, other, "a different work kind is a different key")
}

func TestAcquire_ConcurrentExactlyOneWins(t *testing.T) {
	t.Parallel()
	lockStore := newSQLiteStore(t)
	ctx := context.Background()
	subjectID, userID := uuid.New(), uuid.New()

	const racers = 10
	var (
		wg   sync.WaitGroup
		won  atomic.Int32
		errs atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		svc := lock.NewService(lockStore, time.Minute, nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, err := svc.Acquire(ctx, subjectID, userID, domain.WorkKindFlashcards, 0)
			if err != nil {
				errs.Add(1)
				return
			}
			if l != nil {
				won.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(0), errs.Load())
	assert.Equal(t, int32(1), won.Load())
}

func TestAcquire_ReclaimsAfterExpiry(t *testing.T) {
	t.Parallel()
	lockStore := newSQLiteStore(t)
	clk := newClock()
	a := lock.NewService(lockStore, time.Minute, nil, lock.WithClock(clk.Now))
	b := lock.NewService(lockStore, time.Minute, nil, lock.WithClock(clk.Now))
	ctx := context.Background()
	subjectID, userID := uuid.New(), uuid.New()

	held, err := a.Acquire(ctx, subjectID, userID, domain.WorkKindFlashcards, 0)
	require.NoError(t, err)
	require.NotNil(t, held)

	clk.Advance(30 * time.Second)
	denied, err := b.Acquire(ctx, subjectID, userID, domain.WorkKindFlashcards, 0)
	require.NoError(t, err)
	assert.Nil(t, denied)

	clk.Advance(31 * time.Second)
	reclaimed, err := b.Acquire(ctx, subjectID, userID, domain.WorkKindFlashcards, 0)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.NotEqual(t, held.ID, reclaimed.ID)
	assert.Equal(t, b.OwnerToken(), reclaimed.OwnerToken)
}

func TestUpdateStatusAndRelease(t *testing.T) {
	t.Parallel()
	lockStore := newSQLiteStore(t)
	clk := newClock()
	owner := lock.NewService(lockStore, time.Minute, nil, lock.WithClock(clk.Now))
	intruder := lock.NewService(lockStore, time.Minute, nil, lock.WithClock(clk.Now))
	ctx := context.Background()
	subjectID, userID := uuid.New(), uuid.New()

	l, err := owner.Acquire(ctx, subjectID, userID, domain.WorkKindFlashcards, 0)
	require.NoError(t, err)
	require.NotNil(t, l)

	err = intruder.UpdateStatus(ctx, l.ID, domain.LockStatusRunning, nil)
	assert.ErrorIs(t, err, store.ErrLockNotFound, "only the owner may advance a lock")

	require.NoError(t, owner.UpdateStatus(ctx, l.ID, domain.LockStatusRunning, nil))

	active, err := intruder.HasActiveLock(ctx, subjectID, userID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, domain.LockStatusRunning, active.Status)
	assert.Equal(t, owner.OwnerToken(), active.OwnerToken)
	assert.Equal(t, domain.WorkKindFlashcards, active.WorkKind)

	clk.Advance(5 * time.Second)
	require.NoError(t, owner.Release(ctx, l.ID, false, "model unavailable"))

	active, err = intruder.HasActiveLock(ctx, subjectID, userID)
	require.NoError(t, err)
	assert.Nil(t, active)

	locks, err := owner.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	got := locks[0]
	assert.Equal(t, domain.LockStatusFailed, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 5*time.Second, got.CompletedAt.Sub(*got.StartedAt))
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "model unavailable", *got.ErrorMessage)

	// a released key can be taken by anyone
	next, err := intruder.Acquire(ctx, subjectID, userID, domain.WorkKindFlashcards, 0)
	require.NoError(t, err)
	assert.NotNil(t, next)
}

func TestForceDeleteAndSweep(t *testing.T) {
	t.Parallel()
	lockStore := newSQLiteStore(t)
	clk := newClock()
	svc := lock.NewService(lockStore, time.Minute, nil, lock.WithClock(clk.Now))
	ctx := context.Background()
	subjectID, userID := uuid.New(), uuid.New()

	_, err := svc.Acquire(ctx, subjectID, userID, domain.WorkKindQuiz, 0)
	require.NoError(t, err)
	_, err = svc.Acquire(ctx, uuid.New(), userID, domain.WorkKindQuiz, 0)
	require.NoError(t, err)

	n, err := svc.ForceDelete(ctx, subjectID, userID, domain.WorkKindQuiz)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	clk.Advance(2 * time.Minute)
	n, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	t.Parallel()
	svc := lock.NewService(&mockLockStore{}, time.Minute, nil)
	err := svc.UpdateStatus(context.Background(), uuid.New(), domain.LockStatus("paused"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidLockStatus)
}

func TestAcquire_InvalidKind(t *testing.T) {
	t.Parallel()
	svc := lock.NewService(&mockLockStore{}, time.Minute, nil)
	_, err := svc.Acquire(context.Background(), uuid.New(), uuid.New(), domain.WorkKind("essays"), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidWorkKind)
}

func TestAcquire_StoreErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")

	testCases := []struct {
		name    string
		store   *mockLockStore
		wantErr bool
	}{
		{
			name: "sweep failure is best effort",
			store: &mockLockStore{
				DeleteExpiredFn: func(context.Context, time.Time) (int64, error) { return 0, boom },
			},
			wantErr: false,
		},
		{
			name: "lookup failure is surfaced",
			store: &mockLockStore{
				FindActiveFn: func(context.Context, uuid.UUID, uuid.UUID, domain.WorkKind) (*domain.GenerationLock, error) {
					return nil, boom
				},
			},
			wantErr: true,
		},
		{
			name: "insert failure is surfaced",
			store: &mockLockStore{
				InsertFn: func(context.Context, *domain.GenerationLock) error { return boom },
			},
			wantErr: true,
		},
		{
			name: "insert duplicate is contention",
			store: &mockLockStore{
				InsertFn: func(context.Context, *domain.GenerationLock) error { return store.ErrLockHeld },
			},
			wantErr: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := lock.NewService(tc.store, time.Minute, nil)
			l, err := svc.Acquire(context.Background(), uuid.New(), uuid.New(), domain.WorkKindFlashcards, 0)
			if tc.wantErr {
				assert.ErrorIs(t, err, boom)
				assert.Nil(t, l, "a store error never yields a lock")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHasActiveLock_StoreError(t *testing.T) {
	t.Parallel()
	boom := errors.New("timeout")
	svc := lock.NewService(&mockLockStore{
		FindAnyActiveFn: func(context.Context, uuid.UUID, uuid.UUID, time.Time) (*domain.GenerationLock, error) {
			return nil, boom
		},
	}, time.Minute, nil)

	_, err := svc.HasActiveLock(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, boom)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	t.Parallel()
	var sweeps atomic.Int32
	svc := lock.NewService(&mockLockStore{
		DeleteExpiredFn: func(context.Context, time.Time) (int64, error) {
			sweeps.Add(1)
			return 1, nil
		},
	}, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeps.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
