package srs

import (
	"math"
	"time"

	"github.com/phrazzld/scry-engine/internal/domain"
)

// NextState is the result of applying one review to an item's schedule.
type NextState struct {
	Interval    int
	Repetitions int
	Easiness    float64
	DueDate     time.Time
}

// calculateNewEasiness applies the SM-2 easiness update.
//
// The update is always computed from the rating and the easiness held before
// the review, independent of whether the review passed:
//
//	EF' = max(min, EF + (0.1 - (5-q) * (0.08 + (5-q) * 0.02)))
func calculateNewEasiness(easiness float64, q Quality, params *Params) float64 {
	miss := float64(maxQuality - q)
	next := easiness + (0.1 - miss*(0.08+miss*0.02))
	return math.Max(params.MinEasiness, next)
}

// calculateNewInterval determines the gap in days before the next review.
//
// Failed reviews reset to one day. Successful reviews follow SM-2 except on
// the second repetition, where a barely passing rating earns a shorter gap
// than a confident one. From the third repetition on the previous interval is
// multiplied by the pre-review easiness and rounded.
func calculateNewInterval(interval, repetitions int, easiness float64, q Quality, params *Params) int {
	if q < params.PassingQuality {
		return 1
	}

	switch repetitions {
	case 0:
		return params.FirstInterval
	case 1:
		if q == params.PassingQuality {
			return params.SecondIntervalSomewhat
		}
		return params.SecondIntervalConfident
	}

	next := int(math.Round(float64(interval) * easiness))
	if next < 1 {
		next = 1
	}
	return next
}

// computeNextState is the pure state transition shared by the service and the tests.
func computeNextState(state domain.ReviewState, q Quality, today time.Time, params *Params) NextState {
	q = q.Clamp()

	next := NextState{
		Interval: calculateNewInterval(state.Interval, state.Repetitions, state.Easiness, q, params),
		Easiness: calculateNewEasiness(state.Easiness, q, params),
	}

	if q >= params.PassingQuality {
		next.Repetitions = state.Repetitions + 1
	} else {
		next.Repetitions = 0
	}

	next.DueDate = today.AddDate(0, 0, next.Interval)
	return next
}

// applyReview produces the full updated schedule for a review on today, or
// reports false when the item was already reviewed that day.
func applyReview(state domain.ReviewState, q Quality, today time.Time, params *Params) (domain.ReviewState, bool) {
	if state.ReviewedOn(today) {
		return state, false
	}

	q = q.Clamp()
	next := computeNextState(state, q, today, params)

	updated := state
	updated.Interval = next.Interval
	updated.Repetitions = next.Repetitions
	updated.Easiness = next.Easiness
	updated.DueDate = next.DueDate

	if q >= params.PassingQuality {
		updated.Streak++
	} else {
		updated.Streak = 0
		updated.Lapses++
	}

	reviewed := today
	updated.LastReviewed = &reviewed

	return updated, true
}
