package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/platform/logger"
	"github.com/phrazzld/scry-engine/internal/store"
)

const (
	flashcardColumns = `id, subject_id, user_id, question, answer, difficulty,
	interval_days, repetitions, easiness, due_date, last_reviewed, streak, lapses, created_at`

	quizColumns = `id, subject_id, user_id, question, options, correct_index, difficulty,
	interval_days, repetitions, easiness, due_date, last_reviewed, streak, lapses, created_at`
)

// PostgresContentStore implements the store.ContentStore interface
// on the flashcards and quiz_questions tables.
type PostgresContentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresContentStore creates a new PostgreSQL implementation of the ContentStore interface.
func NewPostgresContentStore(db store.DBTX, logger *slog.Logger) *PostgresContentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresContentStore{
		db:     db,
		logger: logger.With(slog.String("component", "content_store")),
	}
}

// Ensure PostgresContentStore implements store.ContentStore interface
var _ store.ContentStore = (*PostgresContentStore)(nil)

// WithTx implements store.ContentStore.WithTx
func (s *PostgresContentStore) WithTx(tx *sql.Tx) store.ContentStore {
	return &PostgresContentStore{db: tx, logger: s.logger}
}

// Count implements store.ContentStore.Count
func (s *PostgresContentStore) Count(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.ContentKind,
) (int, error) {
	table, err := contentTable(kind)
	if err != nil {
		return 0, err
	}

	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE subject_id = $1 AND user_id = $2`, table)
	if err := s.db.QueryRowContext(ctx, query, subjectID, userID).Scan(&n); err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// InsertFlashcards implements store.ContentStore.InsertFlashcards.
// The batch is written with a single multi-row INSERT so it is atomic
// without requiring a caller-managed transaction.
func (s *PostgresContentStore) InsertFlashcards(ctx context.Context, cards []*domain.Flashcard) error {
	if len(cards) == 0 {
		return nil
	}

	const cols = 14
	args := make([]any, 0, len(cards)*cols)
	for _, c := range cards {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		r := c.Review
		args = append(args,
			c.ID, c.SubjectID, c.UserID, c.Question, c.Answer, c.Difficulty,
			r.Interval, r.Repetitions, r.Easiness, r.DueDate, nullTime(r.LastReviewed),
			r.Streak, r.Lapses, c.CreatedAt.UTC(),
		)
	}

	query := `INSERT INTO flashcards (` + flashcardColumns + `) VALUES ` + valuesList(len(cards), cols)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		mapped := mapErrorAs(err, nil, store.ErrContentExists)
		logger.FromContextOrDefault(ctx, s.logger).Debug("flashcard insert failed",
			"count", len(cards),
			"duplicate", store.IsDuplicateError(mapped),
			"error", err)
		return mapped
	}
	return nil
}

// InsertQuizQuestions implements store.ContentStore.InsertQuizQuestions
func (s *PostgresContentStore) InsertQuizQuestions(ctx context.Context, questions []*domain.QuizQuestion) error {
	if len(questions) == 0 {
		return nil
	}

	const cols = 15
	args := make([]any, 0, len(questions)*cols)
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("failed to encode quiz options: %w", err)
		}
		r := q.Review
		args = append(args,
			q.ID, q.SubjectID, q.UserID, q.Question, string(options), q.CorrectIndex, q.Difficulty,
			r.Interval, r.Repetitions, r.Easiness, r.DueDate, nullTime(r.LastReviewed),
			r.Streak, r.Lapses, q.CreatedAt.UTC(),
		)
	}

	query := `INSERT INTO quiz_questions (` + quizColumns + `) VALUES ` + valuesList(len(questions), cols)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return mapErrorAs(err, nil, store.ErrContentExists)
	}
	return nil
}

// ListFlashcards implements store.ContentStore.ListFlashcards
func (s *PostgresContentStore) ListFlashcards(
	ctx context.Context,
	subjectID, userID uuid.UUID,
) ([]*domain.Flashcard, error) {
	query := `SELECT ` + flashcardColumns + ` FROM flashcards
		WHERE subject_id = $1 AND user_id = $2 ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, subjectID, userID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var cards []*domain.Flashcard
	for rows.Next() {
		var (
			c        domain.Flashcard
			reviewed sql.NullTime
		)
		if err := rows.Scan(
			&c.ID, &c.SubjectID, &c.UserID, &c.Question, &c.Answer, &c.Difficulty,
			&c.Review.Interval, &c.Review.Repetitions, &c.Review.Easiness, &c.Review.DueDate,
			&reviewed, &c.Review.Streak, &c.Review.Lapses, &c.CreatedAt,
		); err != nil {
			return nil, MapError(err)
		}
		c.Review.DueDate = c.Review.DueDate.UTC()
		c.Review.LastReviewed = timePtr(reviewed)
		cards = append(cards, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return cards, nil
}

// ListQuizQuestions implements store.ContentStore.ListQuizQuestions
func (s *PostgresContentStore) ListQuizQuestions(
	ctx context.Context,
	subjectID, userID uuid.UUID,
) ([]*domain.QuizQuestion, error) {
	query := `SELECT ` + quizColumns + ` FROM quiz_questions
		WHERE subject_id = $1 AND user_id = $2 ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, subjectID, userID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var questions []*domain.QuizQuestion
	for rows.Next() {
		var (
			q        domain.QuizQuestion
			options  []byte
			reviewed sql.NullTime
		)
		if err := rows.Scan(
			&q.ID, &q.SubjectID, &q.UserID, &q.Question, &options, &q.CorrectIndex, &q.Difficulty,
			&q.Review.Interval, &q.Review.Repetitions, &q.Review.Easiness, &q.Review.DueDate,
			&reviewed, &q.Review.Streak, &q.Review.Lapses, &q.CreatedAt,
		); err != nil {
			return nil, MapError(err)
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("failed to decode quiz options for %s: %w", q.ID, err)
		}
		q.Review.DueDate = q.Review.DueDate.UTC()
		q.Review.LastReviewed = timePtr(reviewed)
		questions = append(questions, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return questions, nil
}

// contentTable returns the table holding items of the given content kind.
func contentTable(kind domain.ContentKind) (string, error) {
	switch kind {
	case domain.ContentKindFlashcards:
		return "flashcards", nil
	case domain.ContentKindQuiz:
		return "quiz_questions", nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidContentKind, kind)
}

// valuesList renders "($1, $2), ($3, $4)" for rows tuples of cols placeholders.
func valuesList(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}
