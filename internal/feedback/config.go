// Package feedback implements the swipe feedback engine: a per-pair soft-decay penalty
// with time and signal recovery, and per-exporter pattern learning over buyer profiles.
//
// State transitions are pure functions over values. Persistence goes through the
// Repository interface so the engine is storage-agnostic.
package feedback

import (
	"errors"
	"fmt"
)

// Configuration errors.
var (
	ErrInvalidDecay      = errors.New("left decay must be within (0, 1)")
	ErrInvalidFloor      = errors.New("penalty floor must be within (0, 1]")
	ErrInvalidHide       = errors.New("hide threshold must be positive")
	ErrNoDimensions      = errors.New("at least one pattern dimension is required")
	ErrInvalidPatternCfg = errors.New("pattern penalty settings out of range")
)

// SignalWeights weight the buyer signals that drive signal recovery.
type SignalWeights struct {
	Funding       float64 `koanf:"funding" json:"funding"`
	DecisionMaker float64 `koanf:"decision_maker" json:"decision_maker"`
	Hiring        float64 `koanf:"hiring" json:"hiring"`
}

// Config holds the soft-decay and pattern learning constants.
type Config struct {
	// Soft decay (per pair).
	LeftDecay       float64       `koanf:"left_decay" json:"left_decay"`
	PenaltyFloor    float64       `koanf:"penalty_floor" json:"penalty_floor"`
	RightBonus      float64       `koanf:"right_bonus" json:"right_bonus"`
	HideAfterLeft   int           `koanf:"hide_after_left" json:"hide_after_left"`
	RecoveryPerWeek float64       `koanf:"recovery_per_week" json:"recovery_per_week"`
	UnsuppressAbove float64       `koanf:"unsuppress_above" json:"unsuppress_above"`
	SignalRecovery  float64       `koanf:"signal_recovery" json:"signal_recovery"`
	SignalThreshold float64       `koanf:"signal_threshold" json:"signal_threshold"`
	SignalWeights   SignalWeights `koanf:"signal_weights" json:"signal_weights"`

	// Pattern learning (per exporter).
	PatternLeftThreshold int      `koanf:"pattern_left_threshold" json:"pattern_left_threshold"`
	PatternPenalty       float64  `koanf:"pattern_penalty" json:"pattern_penalty"`
	PatternStep          float64  `koanf:"pattern_step" json:"pattern_step"`
	PatternFloor         float64  `koanf:"pattern_floor" json:"pattern_floor"`
	BoostStep            float64  `koanf:"boost_step" json:"boost_step"`
	BoostCap             float64  `koanf:"boost_cap" json:"boost_cap"`
	PatternDimensions    []string `koanf:"pattern_dimensions" json:"pattern_dimensions"`
}

// DefaultConfig returns the standard feedback constants.
func DefaultConfig() Config {
	return Config{
		LeftDecay:       0.60,
		PenaltyFloor:    0.05,
		RightBonus:      0.20,
		HideAfterLeft:   5,
		RecoveryPerWeek: 0.08,
		UnsuppressAbove: 0.3,
		SignalRecovery:  0.30,
		SignalThreshold: 0.3,
		SignalWeights: SignalWeights{
			Funding:       0.4,
			DecisionMaker: 0.4,
			Hiring:        0.2,
		},
		PatternLeftThreshold: 3,
		PatternPenalty:       0.30,
		PatternStep:          0.05,
		PatternFloor:         0.35,
		BoostStep:            0.03,
		BoostCap:             0.15,
		PatternDimensions:    []string{"Country", "Industry"},
	}
}

// Validate checks that the constants keep penalties within their documented ranges.
func (c Config) Validate() error {
	var errs []error
	if c.LeftDecay <= 0 || c.LeftDecay >= 1 {
		errs = append(errs, fmt.Errorf("%w: %f", ErrInvalidDecay, c.LeftDecay))
	}
	if c.PenaltyFloor <= 0 || c.PenaltyFloor > 1 {
		errs = append(errs, fmt.Errorf("%w: %f", ErrInvalidFloor, c.PenaltyFloor))
	}
	if c.HideAfterLeft <= 0 {
		errs = append(errs, ErrInvalidHide)
	}
	if len(c.PatternDimensions) == 0 {
		errs = append(errs, ErrNoDimensions)
	}
	if c.PatternFloor <= 0 || c.PatternFloor > 1 || c.PatternPenalty < 0 || c.BoostCap < 0 {
		errs = append(errs, ErrInvalidPatternCfg)
	}
	return errors.Join(errs...)
}
