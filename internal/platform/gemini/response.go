package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/scry-engine/internal/generation"
)

// flashcardResponse is the JSON document the flashcard prompt asks for.
type flashcardResponse struct {
	Flashcards []generation.FlashcardDraft `json:"flashcards"`
}

// quizResponse is the JSON document the quiz prompt asks for.
type quizResponse struct {
	Questions []generation.QuizDraft `json:"questions"`
}

// drafts validates the response and trims it to at most limit items.
func (r flashcardResponse) drafts(limit int) ([]generation.FlashcardDraft, error) {
	if len(r.Flashcards) == 0 {
		return nil, fmt.Errorf("%w: no flashcards in response", generation.ErrInvalidResponse)
	}
	out := make([]generation.FlashcardDraft, 0, min(len(r.Flashcards), limit))
	for i, d := range r.Flashcards {
		if len(out) == limit {
			break
		}
		d.Question = strings.TrimSpace(d.Question)
		d.Answer = strings.TrimSpace(d.Answer)
		if d.Question == "" || d.Answer == "" {
			return nil, fmt.Errorf("%w: flashcard %d is missing its question or answer",
				generation.ErrInvalidResponse, i)
		}
		out = append(out, d)
	}
	return out, nil
}

func (r quizResponse) drafts(limit int) ([]generation.QuizDraft, error) {
	if len(r.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions in response", generation.ErrInvalidResponse)
	}
	out := make([]generation.QuizDraft, 0, min(len(r.Questions), limit))
	for i, d := range r.Questions {
		if len(out) == limit {
			break
		}
		d.Question = strings.TrimSpace(d.Question)
		switch {
		case d.Question == "":
			return nil, fmt.Errorf("%w: question %d is empty", generation.ErrInvalidResponse, i)
		case len(d.Options) < 2:
			return nil, fmt.Errorf("%w: question %d has %d options", generation.ErrInvalidResponse, i, len(d.Options))
		case d.CorrectIndex < 0 || d.CorrectIndex >= len(d.Options):
			return nil, fmt.Errorf("%w: question %d correct_index %d out of range",
				generation.ErrInvalidResponse, i, d.CorrectIndex)
		}
		out = append(out, d)
	}
	return out, nil
}

// decodeJSON parses the model reply, tolerating a surrounding markdown code fence.
func decodeJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}
	return nil
}
