package review

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/domain/srs"
	"github.com/phrazzld/scry-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReviewStore struct {
	GetForUpdateFn  func(ctx context.Context, kind domain.ItemKind, id uuid.UUID) (*domain.ReviewableItem, error)
	SaveStateFn     func(ctx context.Context, kind domain.ItemKind, id uuid.UUID, state domain.ReviewState) error
	ApplyScheduleFn func(ctx context.Context, userID uuid.UUID, update store.ScheduleUpdate) error

	saved   []domain.ReviewState
	applied []store.ScheduleUpdate
	inTx    bool
}

var _ store.ReviewStore = (*mockReviewStore)(nil)

func (m *mockReviewStore) GetForUpdate(ctx context.Context, kind domain.ItemKind, id uuid.UUID) (*domain.ReviewableItem, error) {
	return m.GetForUpdateFn(ctx, kind, id)
}

func (m *mockReviewStore) SaveState(ctx context.Context, kind domain.ItemKind, id uuid.UUID, state domain.ReviewState) error {
	m.saved = append(m.saved, state)
	if m.SaveStateFn != nil {
		return m.SaveStateFn(ctx, kind, id, state)
	}
	return nil
}

func (m *mockReviewStore) ApplySchedule(ctx context.Context, userID uuid.UUID, update store.ScheduleUpdate) error {
	if m.ApplyScheduleFn != nil {
		if err := m.ApplyScheduleFn(ctx, userID, update); err != nil {
			return err
		}
	}
	m.applied = append(m.applied, update)
	return nil
}

func (m *mockReviewStore) CountDue(context.Context, uuid.UUID, uuid.UUID, time.Time) (int, error) {
	return 0, nil
}

func (m *mockReviewStore) WithTx(*sql.Tx) store.ReviewStore {
	m.inTx = true
	return m
}

// memoryStore serves a single item and keeps whatever SaveState writes.
func memoryStore(item *domain.ReviewableItem) *mockReviewStore {
	m := &mockReviewStore{}
	m.GetForUpdateFn = func(_ context.Context, kind domain.ItemKind, id uuid.UUID) (*domain.ReviewableItem, error) {
		if id != item.ID || kind != item.Kind {
			return nil, store.ErrItemNotFound
		}
		cp := *item
		return &cp, nil
	}
	m.SaveStateFn = func(_ context.Context, _ domain.ItemKind, _ uuid.UUID, state domain.ReviewState) error {
		item.State = state
		return nil
	}
	return m
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) NextDay() { c.now = c.now.AddDate(0, 0, 1) }

func newTestService(t *testing.T, reviews store.ReviewStore, c *clock) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	engine, err := srs.NewServiceWithParams(srs.NewDefaultParams(), time.UTC)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, reviews, engine, log, WithClock(c.Now)), mock
}

func newItem(kind domain.ItemKind, userID uuid.UUID, today time.Time) *domain.ReviewableItem {
	return &domain.ReviewableItem{
		ID:        uuid.New(),
		Kind:      kind,
		UserID:    userID,
		SubjectID: uuid.New(),
		State:     domain.NewReviewState(today),
	}
}

var day0 = time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

func TestReviewItem_WorkedExample(t *testing.T) {
	t.Parallel()

	c := &clock{now: day0}
	userID := uuid.New()
	item := newItem(domain.ItemKindFlashcard, userID, day0)
	svc, mock := newTestService(t, memoryStore(item), c)

	ratings := []srs.Quality{srs.QualityConfident, srs.QualityConfident, srs.QualityConfident, srs.QualityForgot}
	wantIntervals := []int{1, 6, 15, 1}
	wantEasiness := []float64{2.5, 2.5, 2.5, 1.96}

	for i, q := range ratings {
		mock.ExpectBegin()
		mock.ExpectCommit()

		out, err := svc.ReviewItem(context.Background(), userID, domain.ItemKindFlashcard, item.ID, q)
		require.NoError(t, err)
		require.True(t, out.Changed)
		assert.Equal(t, wantIntervals[i], out.Item.State.Interval, "step %d", i)
		assert.InDelta(t, wantEasiness[i], out.Item.State.Easiness, 1e-9, "step %d", i)
		c.NextDay()
	}

	assert.Equal(t, 0, item.State.Streak)
	assert.Equal(t, 1, item.State.Lapses)
	assert.Equal(t, 0, item.State.Repetitions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewItem_DailyGuard(t *testing.T) {
	t.Parallel()

	c := &clock{now: day0}
	userID := uuid.New()
	item := newItem(domain.ItemKindFlashcard, userID, day0)
	reviews := memoryStore(item)
	svc, mock := newTestService(t, reviews, c)

	mock.ExpectBegin()
	mock.ExpectCommit()
	first, err := svc.ReviewItem(context.Background(), userID, domain.ItemKindFlashcard, item.ID, srs.QualityConfident)
	require.NoError(t, err)
	require.True(t, first.Changed)

	c.now = c.now.Add(3 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectCommit()
	second, err := svc.ReviewItem(context.Background(), userID, domain.ItemKindFlashcard, item.ID, srs.QualityForgot)
	require.NoError(t, err)

	assert.False(t, second.Changed)
	assert.Equal(t, first.Item.State, second.Item.State)
	assert.Len(t, reviews.saved, 1, "second review on the same day writes nothing")
	assert.Equal(t, 1, item.State.Streak)
	assert.Equal(t, 0, item.State.Lapses)
	require.NotNil(t, item.State.LastReviewed)
	assert.Equal(t, domain.CalendarDay(day0, time.UTC), *item.State.LastReviewed)
	assert.True(t, reviews.inTx)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewItem_Errors(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	dbErr := errors.New("connection refused")

	tests := []struct {
		name    string
		store   func(item *domain.ReviewableItem) *mockReviewStore
		userID  uuid.UUID
		wantErr error
	}{
		{
			name: "unknown item",
			store: func(*domain.ReviewableItem) *mockReviewStore {
				return &mockReviewStore{GetForUpdateFn: func(context.Context, domain.ItemKind, uuid.UUID) (*domain.ReviewableItem, error) {
					return nil, store.ErrItemNotFound
				}}
			},
			userID:  userID,
			wantErr: ErrItemNotFound,
		},
		{
			name:    "owned by another user",
			store:   memoryStore,
			userID:  uuid.New(),
			wantErr: ErrItemNotOwned,
		},
		{
			name: "load fails",
			store: func(*domain.ReviewableItem) *mockReviewStore {
				return &mockReviewStore{GetForUpdateFn: func(context.Context, domain.ItemKind, uuid.UUID) (*domain.ReviewableItem, error) {
					return nil, dbErr
				}}
			},
			userID:  userID,
			wantErr: dbErr,
		},
		{
			name: "save fails",
			store: func(item *domain.ReviewableItem) *mockReviewStore {
				m := memoryStore(item)
				m.SaveStateFn = func(context.Context, domain.ItemKind, uuid.UUID, domain.ReviewState) error { return dbErr }
				return m
			},
			userID:  userID,
			wantErr: dbErr,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			item := newItem(domain.ItemKindQuizQuestion, userID, day0)
			svc, mock := newTestService(t, tc.store(item), &clock{now: day0})
			mock.ExpectBegin()
			mock.ExpectRollback()

			out, err := svc.ReviewItem(context.Background(), tc.userID, domain.ItemKindQuizQuestion, item.ID, srs.QualitySomewhat)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, out)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReviewItem_InvalidKind(t *testing.T) {
	t.Parallel()

	svc, mock := newTestService(t, &mockReviewStore{}, &clock{now: day0})
	_, err := svc.ReviewItem(context.Background(), uuid.New(), domain.ItemKind("deck"), uuid.New(), srs.QualitySomewhat)
	require.ErrorIs(t, err, domain.ErrInvalidItemKind)
	require.NoError(t, mock.ExpectationsWereMet(), "no transaction is opened")
}

func TestReviewQuizAnswer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		correct     bool
		wantStreak  int
		wantLapses  int
		wantEF      float64
		wantRepeats int
	}{
		// A correct answer rates SOMEWHAT: EF 2.5 + (0.1 - 2*(0.08+2*0.02)) = 2.36.
		{name: "correct", correct: true, wantStreak: 1, wantLapses: 0, wantEF: 2.36, wantRepeats: 1},
		// An incorrect answer rates FORGOT: EF 2.5 + (0.1 - 4*(0.08+4*0.02)) = 1.96.
		{name: "incorrect", correct: false, wantStreak: 0, wantLapses: 1, wantEF: 1.96, wantRepeats: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			userID := uuid.New()
			item := newItem(domain.ItemKindQuizQuestion, userID, day0)
			svc, mock := newTestService(t, memoryStore(item), &clock{now: day0})
			mock.ExpectBegin()
			mock.ExpectCommit()

			out, err := svc.ReviewQuizAnswer(context.Background(), userID, item.ID, tc.correct)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStreak, out.Item.State.Streak)
			assert.Equal(t, tc.wantLapses, out.Item.State.Lapses)
			assert.Equal(t, tc.wantRepeats, out.Item.State.Repetitions)
			assert.InDelta(t, tc.wantEF, out.Item.State.Easiness, 1e-9)
			assert.Equal(t, 1, out.Item.State.Interval)
		})
	}
}

func TestApplyBatch(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	update := func(kind domain.ItemKind) store.ScheduleUpdate {
		return store.ScheduleUpdate{ItemID: uuid.New(), Kind: kind, Interval: 6, Easiness: 2.5, Repetitions: 2, DueDate: due}
	}

	t.Run("commits every update", func(t *testing.T) {
		t.Parallel()

		reviews := &mockReviewStore{}
		svc, mock := newTestService(t, reviews, &clock{now: day0})
		mock.ExpectBegin()
		mock.ExpectCommit()

		updates := []store.ScheduleUpdate{update(domain.ItemKindFlashcard), update(domain.ItemKindQuizQuestion)}
		require.NoError(t, svc.ApplyBatch(context.Background(), uuid.New(), updates))
		assert.Equal(t, updates, reviews.applied)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when one item is missing", func(t *testing.T) {
		t.Parallel()

		missing := update(domain.ItemKindFlashcard)
		reviews := &mockReviewStore{
			ApplyScheduleFn: func(_ context.Context, _ uuid.UUID, u store.ScheduleUpdate) error {
				if u.ItemID == missing.ItemID {
					return store.ErrItemNotFound
				}
				return nil
			},
		}
		svc, mock := newTestService(t, reviews, &clock{now: day0})
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := svc.ApplyBatch(context.Background(), uuid.New(), []store.ScheduleUpdate{update(domain.ItemKindQuizQuestion), missing})
		require.ErrorIs(t, err, ErrItemNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects invalid entries before opening a transaction", func(t *testing.T) {
		t.Parallel()

		bad := []store.ScheduleUpdate{
			{ItemID: uuid.New(), Kind: domain.ItemKindFlashcard, Interval: 0, Easiness: 2.5, DueDate: due},
			{ItemID: uuid.New(), Kind: domain.ItemKindFlashcard, Interval: 1, Easiness: 1.2, DueDate: due},
			{ItemID: uuid.New(), Kind: domain.ItemKindFlashcard, Interval: 1, Easiness: 2.5, Repetitions: -1, DueDate: due},
			{ItemID: uuid.New(), Kind: domain.ItemKindFlashcard, Interval: 1, Easiness: 2.5},
			{ItemID: uuid.Nil, Kind: domain.ItemKindFlashcard, Interval: 1, Easiness: 2.5, DueDate: due},
		}
		for _, u := range bad {
			svc, mock := newTestService(t, &mockReviewStore{}, &clock{now: day0})
			err := svc.ApplyBatch(context.Background(), uuid.New(), []store.ScheduleUpdate{u})
			assert.ErrorIs(t, err, ErrInvalidUpdate)
			assert.NoError(t, mock.ExpectationsWereMet())
		}

		svc, _ := newTestService(t, &mockReviewStore{}, &clock{now: day0})
		err := svc.ApplyBatch(context.Background(), uuid.New(), []store.ScheduleUpdate{{ItemID: uuid.New(), Kind: "deck", Interval: 1, Easiness: 2.5, DueDate: due}})
		assert.ErrorIs(t, err, domain.ErrInvalidItemKind)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		t.Parallel()

		svc, mock := newTestService(t, &mockReviewStore{}, &clock{now: day0})
		require.NoError(t, svc.ApplyBatch(context.Background(), uuid.New(), nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNewService_PanicsOnNil(t *testing.T) {
	t.Parallel()

	engine, err := srs.NewDefaultService()
	require.NoError(t, err)
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.Panics(t, func() { NewService(nil, &mockReviewStore{}, engine, nil) })
	assert.Panics(t, func() { NewService(db, nil, engine, nil) })
	assert.Panics(t, func() { NewService(db, &mockReviewStore{}, nil, nil) })
}
