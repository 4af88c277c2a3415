package srs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidQuality is returned when a rating cannot be interpreted.
var ErrInvalidQuality = errors.New("invalid quality rating")

// Quality is a review quality rating on the 0..5 scale.
type Quality int

// Rating tiers used by callers. 0, 2 and 5 are accepted but not produced.
const (
	QualityForgot    Quality = 1
	QualitySomewhat  Quality = 3
	QualityConfident Quality = 4

	minQuality Quality = 0
	maxQuality Quality = 5
)

// Clamp restricts q to the 0..5 scale.
func (q Quality) Clamp() Quality {
	if q < minQuality {
		return minQuality
	}
	if q > maxQuality {
		return maxQuality
	}
	return q
}

// String returns the tier name for the three caller tiers and the number otherwise.
func (q Quality) String() string {
	switch q {
	case QualityForgot:
		return "forgot"
	case QualitySomewhat:
		return "somewhat"
	case QualityConfident:
		return "confident"
	}
	return strconv.Itoa(int(q))
}

// QualityFromCorrect maps multiple-choice correctness onto a rating. A correct
// answer is never rated confident since it carries no confidence signal.
func QualityFromCorrect(correct bool) Quality {
	if correct {
		return QualitySomewhat
	}
	return QualityForgot
}

// ParseQuality accepts a tier name or an integer. Integers are clamped.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forgot":
		return QualityForgot, nil
	case "somewhat":
		return QualitySomewhat, nil
	case "confident":
		return QualityConfident, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
	}
	return Quality(n).Clamp(), nil
}
