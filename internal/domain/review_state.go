package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Initial scheduling values for newly created or newly linked items.
const (
	InitialInterval = 1
	InitialEasiness = 2.5
	MinEasiness     = 1.3
)

// ReviewState is the scheduling slice of a reviewable item.
//
// Dates are calendar days, represented as midnight UTC of that day. Use
// CalendarDay to convert a wall-clock instant into this representation.
type ReviewState struct {
	Interval     int        `json:"interval"`    // days until the next review, >= 1
	Repetitions  int        `json:"repetitions"` // successful reviews in a row
	Easiness     float64    `json:"easiness"`    // >= 1.3
	DueDate      time.Time  `json:"due_date"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
	Streak       int        `json:"streak"`
	Lapses       int        `json:"lapses"`
}

// NewReviewState returns the schedule of an item that has never been reviewed.
func NewReviewState(today time.Time) ReviewState {
	return ReviewState{
		Interval:    InitialInterval,
		Repetitions: 0,
		Easiness:    InitialEasiness,
		DueDate:     CalendarDay(today, time.UTC),
	}
}

// Validate checks that every scheduling field is in range.
func (s ReviewState) Validate() error {
	switch {
	case s.Interval < 1:
		return fmt.Errorf("%w: interval %d", ErrInvalidReviewState, s.Interval)
	case s.Repetitions < 0:
		return fmt.Errorf("%w: repetitions %d", ErrInvalidReviewState, s.Repetitions)
	case s.Easiness < MinEasiness:
		return fmt.Errorf("%w: easiness %.2f", ErrInvalidReviewState, s.Easiness)
	case s.Streak < 0 || s.Lapses < 0:
		return fmt.Errorf("%w: negative streak or lapses", ErrInvalidReviewState)
	case s.DueDate.IsZero():
		return fmt.Errorf("%w: missing due date", ErrInvalidReviewState)
	}
	return nil
}

// ReviewedOn reports whether the item was already reviewed on the given day.
func (s ReviewState) ReviewedOn(day time.Time) bool {
	return s.LastReviewed != nil && SameDay(*s.LastReviewed, day)
}

// ReviewableItem is a flashcard or quiz question seen through its schedule.
type ReviewableItem struct {
	ID        uuid.UUID   `json:"id"`
	Kind      ItemKind    `json:"kind"`
	UserID    uuid.UUID   `json:"user_id"`
	SubjectID uuid.UUID   `json:"subject_id"`
	State     ReviewState `json:"state"`
}

// CalendarDay returns the calendar day containing t in loc, as midnight UTC.
// A nil loc means time.Local.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two calendar-day values name the same date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
