package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
)

// ContentStore persists generated flashcards and quiz questions.
type ContentStore interface {
	// Count returns how many items of the given kind exist for the subject and user.
	Count(ctx context.Context, subjectID, userID uuid.UUID, kind domain.ContentKind) (int, error)

	// InsertFlashcards saves the cards atomically. A card whose question
	// already exists for the same subject and user fails the whole batch
	// with ErrContentExists.
	InsertFlashcards(ctx context.Context, cards []*domain.Flashcard) error

	// InsertQuizQuestions saves the questions atomically with the same
	// uniqueness rule as InsertFlashcards.
	InsertQuizQuestions(ctx context.Context, questions []*domain.QuizQuestion) error

	// ListFlashcards returns the subject's flashcards for the user, oldest first.
	ListFlashcards(ctx context.Context, subjectID, userID uuid.UUID) ([]*domain.Flashcard, error)

	// ListQuizQuestions returns the subject's quiz questions for the user, oldest first.
	ListQuizQuestions(ctx context.Context, subjectID, userID uuid.UUID) ([]*domain.QuizQuestion, error)

	// WithTx returns a new ContentStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ContentStore
}
