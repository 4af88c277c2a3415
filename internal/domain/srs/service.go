package srs

import (
	"errors"
	"time"

	"github.com/phrazzld/scry-engine/internal/domain"
)

// Common errors
var (
	ErrNilParams = errors.New("srs params cannot be nil")
)

// Service defines the interface for SRS algorithm operations
type Service interface {
	// ComputeNextState returns the schedule that follows a review rated q.
	// It is deterministic in its inputs; now is only used to find today.
	ComputeNextState(state domain.ReviewState, q Quality, now time.Time) NextState

	// Review applies a review to an item's schedule, also updating streak,
	// lapses and the last-reviewed day. A second review on the same calendar
	// day returns the state unchanged and false.
	Review(state domain.ReviewState, q Quality, now time.Time) (domain.ReviewState, bool)

	// Today returns the local calendar day containing now.
	Today(now time.Time) time.Time
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	params   *Params
	location *time.Location
}

// NewDefaultService creates a new SRS service with default parameters that
// computes calendar days in the process's local time zone.
func NewDefaultService() (Service, error) {
	return NewServiceWithParams(NewDefaultParams(), time.Local)
}

// NewServiceWithParams creates a new SRS service with custom parameters.
// The location decides which calendar day a review falls on; nil means time.Local.
func NewServiceWithParams(params *Params, loc *time.Location) (Service, error) {
	if params == nil {
		return nil, ErrNilParams
	}
	if loc == nil {
		loc = time.Local
	}
	return &defaultService{params: params, location: loc}, nil
}

// ComputeNextState implements Service.
func (s *defaultService) ComputeNextState(state domain.ReviewState, q Quality, now time.Time) NextState {
	return computeNextState(state, q, s.Today(now), s.params)
}

// Review implements Service.
func (s *defaultService) Review(state domain.ReviewState, q Quality, now time.Time) (domain.ReviewState, bool) {
	return applyReview(state, q, s.Today(now), s.params)
}

// Today implements Service.
func (s *defaultService) Today(now time.Time) time.Time {
	return domain.CalendarDay(now, s.location)
}
