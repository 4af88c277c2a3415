package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentKind identifies the type of study content produced by a generation task.
type ContentKind string

// Supported content kinds
const (
	ContentKindFlashcards ContentKind = "flashcards"
	ContentKindQuiz       ContentKind = "quiz"
)

// Valid reports whether k is a known content kind.
func (k ContentKind) Valid() bool {
	return k == ContentKindFlashcards || k == ContentKindQuiz
}

// ItemKind returns the kind of reviewable item this content produces.
func (k ContentKind) ItemKind() ItemKind {
	if k == ContentKindQuiz {
		return ItemKindQuizQuestion
	}
	return ItemKindFlashcard
}

// ParseContentKind converts a string into a ContentKind.
func ParseContentKind(s string) (ContentKind, error) {
	k := ContentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentKind, s)
	}
	return k, nil
}

// ItemKind identifies which table a reviewable item lives in.
type ItemKind string

// Supported item kinds
const (
	ItemKindFlashcard    ItemKind = "flashcard"
	ItemKindQuizQuestion ItemKind = "quiz_question"
)

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	return k == ItemKindFlashcard || k == ItemKindQuizQuestion
}

// ParseItemKind converts a string into an ItemKind.
func ParseItemKind(s string) (ItemKind, error) {
	k := ItemKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidItemKind, s)
	}
	return k, nil
}

// Content validation errors
var (
	ErrSubjectIDEmpty    = errors.New("subject ID cannot be empty")
	ErrUserIDEmpty       = errors.New("user ID cannot be empty")
	ErrQuestionEmpty     = errors.New("question cannot be empty")
	ErrAnswerEmpty       = errors.New("answer cannot be empty")
	ErrTooFewOptions     = errors.New("quiz question needs at least two options")
	ErrCorrectIndexRange = errors.New("correct index out of range")
)

// Subject is a piece of uploaded study material owned by a user. Content is
// generated from its material.
type Subject struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Material  string    `json:"material"`
	CreatedAt time.Time `json:"created_at"`
}

// Flashcard is a generated question/answer pair with its review schedule.
type Flashcard struct {
	ID         uuid.UUID   `json:"id"`
	SubjectID  uuid.UUID   `json:"subject_id"`
	UserID     uuid.UUID   `json:"user_id"`
	Question   string      `json:"question"`
	Answer     string      `json:"answer"`
	Difficulty string      `json:"difficulty,omitempty"`
	Review     ReviewState `json:"review"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewFlashcard creates a flashcard with a fresh review schedule due today.
func NewFlashcard(subjectID, userID uuid.UUID, question, answer, difficulty string, today time.Time) (*Flashcard, error) {
	card := &Flashcard{
		ID:         uuid.New(),
		SubjectID:  subjectID,
		UserID:     userID,
		Question:   strings.TrimSpace(question),
		Answer:     strings.TrimSpace(answer),
		Difficulty: difficulty,
		Review:     NewReviewState(today),
		CreatedAt:  time.Now().UTC(),
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	return card, nil
}

// Validate checks if the flashcard has valid data.
func (c *Flashcard) Validate() error {
	if c.SubjectID == uuid.Nil {
		return ErrSubjectIDEmpty
	}
	if c.UserID == uuid.Nil {
		return ErrUserIDEmpty
	}
	if c.Question == "" {
		return ErrQuestionEmpty
	}
	if c.Answer == "" {
		return ErrAnswerEmpty
	}
	return c.Review.Validate()
}

// QuizQuestion is a generated multiple-choice question with its review schedule.
type QuizQuestion struct {
	ID           uuid.UUID   `json:"id"`
	SubjectID    uuid.UUID   `json:"subject_id"`
	UserID       uuid.UUID   `json:"user_id"`
	Question     string      `json:"question"`
	Options      []string    `json:"options"`
	CorrectIndex int         `json:"correct_index"`
	Difficulty   string      `json:"difficulty,omitempty"`
	Review       ReviewState `json:"review"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewQuizQuestion creates a quiz question with a fresh review schedule due today.
func NewQuizQuestion(
	subjectID, userID uuid.UUID,
	question string,
	options []string,
	correctIndex int,
	difficulty string,
	today time.Time,
) (*QuizQuestion, error) {
	q := &QuizQuestion{
		ID:           uuid.New(),
		SubjectID:    subjectID,
		UserID:       userID,
		Question:     strings.TrimSpace(question),
		Options:      append([]string(nil), options...),
		CorrectIndex: correctIndex,
		Difficulty:   difficulty,
		Review:       NewReviewState(today),
		CreatedAt:    time.Now().UTC(),
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate checks if the quiz question has valid data.
func (q *QuizQuestion) Validate() error {
	if q.SubjectID == uuid.Nil {
		return ErrSubjectIDEmpty
	}
	if q.UserID == uuid.Nil {
		return ErrUserIDEmpty
	}
	if q.Question == "" {
		return ErrQuestionEmpty
	}
	if len(q.Options) < 2 {
		return ErrTooFewOptions
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ErrCorrectIndexRange
	}
	return q.Review.Validate()
}

// IsCorrect reports whether the chosen option index is the right answer.
func (q *QuizQuestion) IsCorrect(choice int) bool {
	return choice == q.CorrectIndex
}
