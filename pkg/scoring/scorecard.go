package scoring

import (
	"github.com/tarkyaio/tarka/pkg/models"
)

// Score axes.
const (
	AxisImpact     = "impact"
	AxisConfidence = "confidence"
	AxisNoise      = "noise"
)

// Scorecard accumulates scoring deltas with a full audit trail. Axes start
// at 0 and clamp to [0, 100] on read.
type Scorecard struct {
	impact     int
	confidence int
	noise      int

	seen        map[string]bool
	reasonCodes []string
	breakdown   []models.ScoreBreakdownItem
}

// NewScorecard creates an empty scorecard.
func NewScorecard() *Scorecard {
	return &Scorecard{seen: map[string]bool{}}
}

// Add applies one delta to an axis. Zero deltas are ignored. The code joins
// reason_codes once, no matter how many deltas carry it.
func (s *Scorecard) Add(axis, code string, delta int, featureRef, why string) {
	if delta == 0 {
		return
	}
	switch axis {
	case AxisImpact:
		s.impact += delta
	case AxisConfidence:
		s.confidence += delta
	case AxisNoise:
		s.noise += delta
	default:
		return
	}
	if !s.seen[code] {
		s.seen[code] = true
		s.reasonCodes = append(s.reasonCodes, code)
	}
	s.breakdown = append(s.breakdown, models.ScoreBreakdownItem{
		Code:       code,
		Axis:       axis,
		Delta:      delta,
		FeatureRef: featureRef,
		Why:        why,
	})
}

// Has reports whether a reason code was recorded.
func (s *Scorecard) Has(code string) bool { return s.seen[code] }

// Impact returns the clamped impact axis.
func (s *Scorecard) Impact() int { return clamp(s.impact) }

// Confidence returns the clamped confidence axis.
func (s *Scorecard) Confidence() int { return clamp(s.confidence) }

// Noise returns the clamped noise axis.
func (s *Scorecard) Noise() int { return clamp(s.noise) }

// Scores materializes the clamped three-axis result.
func (s *Scorecard) Scores() models.DeterministicScores {
	return models.DeterministicScores{
		Impact:      s.Impact(),
		Confidence:  s.Confidence(),
		Noise:       s.Noise(),
		ReasonCodes: s.reasonCodes,
		Breakdown:   s.breakdown,
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
