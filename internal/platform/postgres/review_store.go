package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/store"
)

const scheduleColumns = `id, user_id, subject_id, interval_days, repetitions, easiness,
	due_date, last_reviewed, streak, lapses`

// PostgresReviewStore implements the store.ReviewStore interface over the
// scheduling columns shared by flashcards and quiz_questions.
type PostgresReviewStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresReviewStore creates a new PostgreSQL implementation of the ReviewStore interface.
func NewPostgresReviewStore(db store.DBTX, logger *slog.Logger) *PostgresReviewStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReviewStore{
		db:     db,
		logger: logger.With(slog.String("component", "review_store")),
	}
}

// Ensure PostgresReviewStore implements store.ReviewStore interface
var _ store.ReviewStore = (*PostgresReviewStore)(nil)

// WithTx implements store.ReviewStore.WithTx
func (s *PostgresReviewStore) WithTx(tx *sql.Tx) store.ReviewStore {
	return &PostgresReviewStore{db: tx, logger: s.logger}
}

// GetForUpdate implements store.ReviewStore.GetForUpdate
func (s *PostgresReviewStore) GetForUpdate(
	ctx context.Context,
	kind domain.ItemKind,
	id uuid.UUID,
) (*domain.ReviewableItem, error) {
	table, err := itemTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, scheduleColumns, table)

	var (
		item     = domain.ReviewableItem{Kind: kind}
		reviewed sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID,
		&item.UserID,
		&item.SubjectID,
		&item.State.Interval,
		&item.State.Repetitions,
		&item.State.Easiness,
		&item.State.DueDate,
		&reviewed,
		&item.State.Streak,
		&item.State.Lapses,
	)
	if err != nil {
		return nil, mapErrorAs(err, store.ErrItemNotFound, nil)
	}
	item.State.DueDate = item.State.DueDate.UTC()
	item.State.LastReviewed = timePtr(reviewed)
	return &item, nil
}

// SaveState implements store.ReviewStore.SaveState
func (s *PostgresReviewStore) SaveState(
	ctx context.Context,
	kind domain.ItemKind,
	id uuid.UUID,
	state domain.ReviewState,
) error {
	table, err := itemTable(kind)
	if err != nil {
		return err
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := fmt.Sprintf(`UPDATE %s
		SET interval_days = $2, repetitions = $3, easiness = $4, due_date = $5,
		    last_reviewed = $6, streak = $7, lapses = $8
		WHERE id = $1`, table)

	res, err := s.db.ExecContext(ctx, query,
		id,
		state.Interval,
		state.Repetitions,
		state.Easiness,
		state.DueDate,
		nullTime(state.LastReviewed),
		state.Streak,
		state.Lapses,
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrItemNotFound)
}

// ApplySchedule implements store.ReviewStore.ApplySchedule
func (s *PostgresReviewStore) ApplySchedule(ctx context.Context, userID uuid.UUID, update store.ScheduleUpdate) error {
	table, err := itemTable(update.Kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s
		SET interval_days = $3, easiness = $4, repetitions = $5, due_date = $6
		WHERE id = $1 AND user_id = $2`, table)

	res, err := s.db.ExecContext(ctx, query,
		update.ItemID,
		userID,
		update.Interval,
		update.Easiness,
		update.Repetitions,
		update.DueDate,
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrItemNotFound)
}

// CountDue implements store.ReviewStore.CountDue
func (s *PostgresReviewStore) CountDue(ctx context.Context, userID, subjectID uuid.UUID, day time.Time) (int, error) {
	query := `SELECT
		(SELECT COUNT(*) FROM flashcards WHERE user_id = $1 AND subject_id = $2 AND due_date <= $3) +
		(SELECT COUNT(*) FROM quiz_questions WHERE user_id = $1 AND subject_id = $2 AND due_date <= $3)`

	var n int
	if err := s.db.QueryRowContext(ctx, query, userID, subjectID, day).Scan(&n); err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// itemTable returns the table holding items of the given kind.
func itemTable(kind domain.ItemKind) (string, error) {
	switch kind {
	case domain.ItemKindFlashcard:
		return "flashcards", nil
	case domain.ItemKindQuizQuestion:
		return "quiz_questions", nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidItemKind, kind)
}
