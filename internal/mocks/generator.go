package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/scry-engine/internal/generation"
)

// MockGenerator implements generation.Generator for testing.
type MockGenerator struct {
	GenerateFlashcardsFn func(ctx context.Context, req generation.Request, progress generation.ProgressFunc) ([]generation.FlashcardDraft, error)
	GenerateQuizFn       func(ctx context.Context, req generation.Request, progress generation.ProgressFunc) ([]generation.QuizDraft, error)

	// Defaults returned when the matching Fn is nil.
	Flashcards []generation.FlashcardDraft
	Quiz       []generation.QuizDraft
	Err        error

	mu       sync.Mutex
	requests []generation.Request
}

var _ generation.Generator = (*MockGenerator)(nil)

// NewMockGeneratorWithError returns a generator that fails every call with err.
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{Err: err}
}

// GenerateFlashcards implements generation.Generator.
func (m *MockGenerator) GenerateFlashcards(
	ctx context.Context,
	req generation.Request,
	progress generation.ProgressFunc,
) ([]generation.FlashcardDraft, error) {
	m.record(req)
	if m.GenerateFlashcardsFn != nil {
		return m.GenerateFlashcardsFn(ctx, req, progress)
	}
	return m.Flashcards, m.Err
}

// GenerateQuiz implements generation.Generator.
func (m *MockGenerator) GenerateQuiz(
	ctx context.Context,
	req generation.Request,
	progress generation.ProgressFunc,
) ([]generation.QuizDraft, error) {
	m.record(req)
	if m.GenerateQuizFn != nil {
		return m.GenerateQuizFn(ctx, req, progress)
	}
	return m.Quiz, m.Err
}

// Requests returns a copy of every request received so far.
func (m *MockGenerator) Requests() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.Request(nil), m.requests...)
}

// Calls returns how many times either method was called.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockGenerator) record(req generation.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
}
