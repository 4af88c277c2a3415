package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkKind is the unit of generation work a lock protects.
type WorkKind string

// Supported work kinds
const (
	WorkKindFlashcards WorkKind = "flashcards"
	WorkKindQuiz       WorkKind = "quiz"
	WorkKindBoth       WorkKind = "both"
)

// Valid reports whether k is a known work kind.
func (k WorkKind) Valid() bool {
	switch k {
	case WorkKindFlashcards, WorkKindQuiz, WorkKindBoth:
		return true
	}
	return false
}

// WorkKindFor maps a content kind to the lock work kind that guards it.
func WorkKindFor(k ContentKind) WorkKind {
	if k == ContentKindQuiz {
		return WorkKindQuiz
	}
	return WorkKindFlashcards
}

// ParseWorkKind converts a string into a WorkKind.
func ParseWorkKind(s string) (WorkKind, error) {
	k := WorkKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidWorkKind, s)
	}
	return k, nil
}

// LockStatus is the lifecycle state of a generation lock.
type LockStatus string

// Possible lock status values. Queued and running locks are active.
const (
	LockStatusQueued    LockStatus = "queued"
	LockStatusRunning   LockStatus = "running"
	LockStatusCompleted LockStatus = "completed"
	LockStatusFailed    LockStatus = "failed"
)

// Active reports whether a lock in this status blocks other acquirers.
func (s LockStatus) Active() bool {
	return s == LockStatusQueued || s == LockStatusRunning
}

// Terminal reports whether the status ends the lock's lifecycle.
func (s LockStatus) Terminal() bool {
	return s == LockStatusCompleted || s == LockStatusFailed
}

// Valid reports whether s is a known lock status.
func (s LockStatus) Valid() bool {
	return s.Active() || s.Terminal()
}

// GenerationLock is a row in the shared lock table. At most one active row
// exists per (SubjectID, UserID, WorkKind).
type GenerationLock struct {
	ID           uuid.UUID  `json:"id"`
	SubjectID    uuid.UUID  `json:"subject_id"`
	UserID       uuid.UUID  `json:"user_id"`
	WorkKind     WorkKind   `json:"work_kind"`
	Status       LockStatus `json:"status"`
	OwnerToken   string     `json:"owner_token"`
	AcquiredAt   time.Time  `json:"acquired_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// Expired reports whether the lock is eligible for reclamation at now.
func (l *GenerationLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
