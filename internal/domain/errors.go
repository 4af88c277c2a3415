// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidContentKind is returned for a content kind other than flashcards or quiz.
	ErrInvalidContentKind = errors.New("invalid content kind")

	// ErrInvalidItemKind is returned for an item kind other than flashcard or quiz_question.
	ErrInvalidItemKind = errors.New("invalid item kind")

	// ErrInvalidWorkKind is returned for a lock work kind outside of flashcards, quiz and both.
	ErrInvalidWorkKind = errors.New("invalid work kind")

	// ErrInvalidLockStatus is returned for an unknown lock status.
	ErrInvalidLockStatus = errors.New("invalid lock status")

	// ErrInvalidReviewState is returned when scheduling fields are out of range.
	ErrInvalidReviewState = errors.New("invalid review state")
)
