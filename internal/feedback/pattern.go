package feedback

import (
	"math"
	"strings"
	"time"

	"github.com/onnwee/tradematch/internal/trade"
)

// unknownDimension stands in for a missing or empty profile dimension value.
const unknownDimension = "Unknown"

// PreferenceVector is an exporter's learned swipe counts per buyer profile pattern.
// Counts only grow; they are never decayed.
type PreferenceVector struct {
	LeftPatterns  map[string]int `json:"left_patterns" cbor:"left_patterns"`
	RightPatterns map[string]int `json:"right_patterns" cbor:"right_patterns"`
	UpdatedAt     *time.Time     `json:"last_updated,omitempty" cbor:"last_updated,omitempty"`
}

// NewPreferenceVector returns an empty vector.
func NewPreferenceVector() PreferenceVector {
	return PreferenceVector{
		LeftPatterns:  map[string]int{},
		RightPatterns: map[string]int{},
	}
}

// Clone returns a deep copy of the vector.
func (pv PreferenceVector) Clone() PreferenceVector {
	out := PreferenceVector{
		LeftPatterns:  make(map[string]int, len(pv.LeftPatterns)),
		RightPatterns: make(map[string]int, len(pv.RightPatterns)),
	}
	for k, v := range pv.LeftPatterns {
		out.LeftPatterns[k] = v
	}
	for k, v := range pv.RightPatterns {
		out.RightPatterns[k] = v
	}
	if pv.UpdatedAt != nil {
		out.UpdatedAt = stamp(*pv.UpdatedAt)
	}
	return out
}

// PatternKey joins the buyer's values for the given dimensions with "|".
// Missing or empty values become "Unknown".
func PatternKey(b trade.Buyer, dims []string) string {
	parts := make([]string, len(dims))
	for i, dim := range dims {
		v, ok := b.Attribute(dim)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			v = unknownDimension
		}
		parts[i] = v
	}
	return strings.Join(parts, "|")
}

// UpdatePreferenceVector returns a copy of pv with the buyer's pattern counted in the
// swipe direction.
func UpdatePreferenceVector(pv PreferenceVector, b trade.Buyer, dir Direction, now time.Time, cfg Config) PreferenceVector {
	out := pv.Clone()
	key := PatternKey(b, cfg.PatternDimensions)

	switch dir {
	case Left:
		out.LeftPatterns[key]++
	case Right:
		out.RightPatterns[key]++
	default:
		return out
	}
	out.UpdatedAt = stamp(now)
	return out
}

// PatternPenalty returns the multiplicative penalty for buyers matching a disliked
// pattern. Below the net-left threshold there is no penalty; above it the penalty grows
// by PatternStep per extra net left swipe and never drops below PatternFloor.
func PatternPenalty(pv PreferenceVector, b trade.Buyer, cfg Config) float64 {
	key := PatternKey(b, cfg.PatternDimensions)
	netLeft := pv.LeftPatterns[key] - pv.RightPatterns[key]

	if netLeft < cfg.PatternLeftThreshold {
		return 1.0
	}

	excess := float64(netLeft - cfg.PatternLeftThreshold)
	penalty := 1.0 - cfg.PatternPenalty - excess*cfg.PatternStep
	return math.Max(penalty, cfg.PatternFloor)
}

// PatternBoost returns a small reward (at most 1+BoostCap) for buyers matching a liked pattern.
func PatternBoost(pv PreferenceVector, b trade.Buyer, cfg Config) float64 {
	key := PatternKey(b, cfg.PatternDimensions)
	netRight := pv.RightPatterns[key] - pv.LeftPatterns[key]

	if netRight <= 0 {
		return 1.0
	}
	return 1.0 + math.Min(float64(netRight)*cfg.BoostStep, cfg.BoostCap)
}

// Factors are the feedback inputs for scoring one pair.
type Factors struct {
	Penalty    float64    `json:"penalty_factor"`
	Pattern    float64    `json:"pattern_penalty"`
	Suppressed bool       `json:"suppressed"`
	LeftCount  int        `json:"left_count"`
	RightCount int        `json:"right_count"`
	State      SwipeState `json:"-"`
}

// ComputeFactors recovers the pair state and combines it with the exporter's learned
// patterns. Pattern is the pattern penalty multiplied by the pattern boost.
func ComputeFactors(s SwipeState, pv PreferenceVector, b trade.Buyer, now time.Time, cfg Config) Factors {
	recovered := Recover(s, b, now, cfg)
	return Factors{
		Penalty:    recovered.PenaltyFactor,
		Pattern:    PatternPenalty(pv, b, cfg) * PatternBoost(pv, b, cfg),
		Suppressed: recovered.Suppressed,
		LeftCount:  recovered.LeftCount,
		RightCount: recovered.RightCount,
		State:      recovered,
	}
}
