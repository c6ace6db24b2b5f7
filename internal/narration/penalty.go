package narration

import (
	"fmt"
	"unicode/utf8"
)

// Repetition penalty bounds.
const (
	// PenaltyThreshold is the edit distance at or below which two lines are
	// considered the same.
	PenaltyThreshold = 30

	// MaxPenalty is both the strongest sampling penalty and the veto marker.
	MaxPenalty = 2.0

	// MinPenalty is the penalty for completely divergent lines.
	MinPenalty = 0.0

	// NeutralPenalty is returned when the penalty cannot be computed.
	NeutralPenalty = 0.0
)

// ScorePenalty derives the repetition penalty for candidate given the last
// accepted line. The result is used as frequency and presence penalty for the
// next request; a result equal to [MaxPenalty] vetoes candidate.
//
// An empty previous or candidate counts as absent: the function returns
// [NeutralPenalty] together with [ErrInvalidPenaltyInput], which callers log
// and otherwise ignore.
func ScorePenalty(previous, candidate string) (float64, error) {
	if previous == "" || candidate == "" {
		return NeutralPenalty, fmt.Errorf("%w: previous=%q candidate=%q", ErrInvalidPenaltyInput, previous, candidate)
	}

	d := Distance(previous, candidate)
	if d <= PenaltyThreshold {
		return MaxPenalty, nil
	}

	// d > threshold implies the longer string is longer than threshold, so the
	// denominator is positive.
	longest := max(utf8.RuneCountInString(previous), utf8.RuneCountInString(candidate))
	scale := float64(d-PenaltyThreshold) / float64(longest-PenaltyThreshold)
	return min(max(MaxPenalty*(1-scale), MinPenalty), MaxPenalty), nil
}

// IsVeto reports whether penalty is the repetition veto value.
func IsVeto(penalty float64) bool {
	return penalty == MaxPenalty
}
