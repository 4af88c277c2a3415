package srs

import "github.com/phrazzld/scry-engine/internal/domain"

// Params defines all configurable parameters for the SRS algorithm
type Params struct {
	// MinEasiness is the floor applied after every easiness update.
	MinEasiness float64

	// PassingQuality is the lowest rating that counts as a successful recall.
	PassingQuality Quality

	// FirstInterval is used for the first successful review.
	FirstInterval int

	// SecondIntervalSomewhat and SecondIntervalConfident are used for the
	// second successful review. Only ratings above PassingQuality earn the
	// longer gap.
	SecondIntervalSomewhat  int
	SecondIntervalConfident int
}

// NewDefaultParams creates a new Params instance with default values
func NewDefaultParams() *Params {
	return &Params{
		MinEasiness:             domain.MinEasiness,
		PassingQuality:          QualitySomewhat,
		FirstInterval:           1,
		SecondIntervalSomewhat:  3,
		SecondIntervalConfident: 6,
	}
}
