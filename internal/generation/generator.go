package generation

import (
	"context"
	"fmt"
	"strings"
)

// MaxQuantity caps how many items one request may ask for.
const MaxQuantity = 50

// Request describes one generation call.
type Request struct {
	// Title and Material come from the subject being studied.
	Title    string
	Material string

	// Quantity is the number of items wanted.
	Quantity int

	// Extra carries free-form generation options such as a focus topic or
	// difficulty. Unknown keys are passed to the model as hints.
	Extra map[string]string
}

// Validate checks the request before the model is called.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Material) == "" {
		return fmt.Errorf("%w: material is empty", ErrInvalidRequest)
	}
	if r.Quantity <= 0 || r.Quantity > MaxQuantity {
		return fmt.Errorf("%w: quantity %d outside 1..%d", ErrInvalidRequest, r.Quantity, MaxQuantity)
	}
	return nil
}

// FlashcardDraft is a generated question/answer pair not yet persisted.
type FlashcardDraft struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty,omitempty"`
}

// QuizDraft is a generated multiple-choice question not yet persisted.
type QuizDraft struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Difficulty   string   `json:"difficulty,omitempty"`
}

// ProgressFunc receives generation progress as a fraction in [0,1] with a
// short human-readable status.
type ProgressFunc func(fraction float64, status string)

// Report calls fn when it is not nil, clamping fraction into [0,1].
func (fn ProgressFunc) Report(fraction float64, status string) {
	if fn == nil {
		return
	}
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	fn(fraction, status)
}

// Generator turns study material into content drafts. Implementations must
// honor ctx cancellation; the scheduler relies on it for task deadlines.
type Generator interface {
	// GenerateFlashcards returns up to req.Quantity flashcard drafts.
	GenerateFlashcards(ctx context.Context, req Request, progress ProgressFunc) ([]FlashcardDraft, error)

	// GenerateQuiz returns up to req.Quantity multiple-choice drafts.
	GenerateQuiz(ctx context.Context, req Request, progress ProgressFunc) ([]QuizDraft, error)
}
