package feedback

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/onnwee/tradematch/internal/trade"
)

// Direction is the swipe direction.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// ErrInvalidDirection is returned for anything other than "left" or "right".
var ErrInvalidDirection = errors.New("direction must be left or right")

// ParseDirection parses a swipe direction, ignoring case and surrounding whitespace.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Left:
		return Left, nil
	case Right:
		return Right, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// SwipeState is the soft-decay state for one (exporter, buyer) pair.
type SwipeState struct {
	LeftCount     int        `json:"left_count" cbor:"left_count"`
	RightCount    int        `json:"right_count" cbor:"right_count"`
	PenaltyFactor float64    `json:"penalty_factor" cbor:"penalty_factor"`
	Suppressed    bool       `json:"suppressed" cbor:"suppressed"`
	LastSwipedAt  *time.Time `json:"last_swiped_at,omitempty" cbor:"last_swiped_at,omitempty"`
}

// NewSwipeState returns the state of a pair that has never been swiped.
func NewSwipeState() SwipeState {
	return SwipeState{PenaltyFactor: 1.0}
}

func stamp(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}

// ApplyLeft records a left swipe. The penalty decays multiplicatively down to the floor,
// and the pair is suppressed once the left count reaches the hide threshold.
func ApplyLeft(s SwipeState, now time.Time, cfg Config) SwipeState {
	s.LeftCount++
	s.LastSwipedAt = stamp(now)
	s.PenaltyFactor = math.Max(s.PenaltyFactor*cfg.LeftDecay, cfg.PenaltyFloor)
	if s.LeftCount >= cfg.HideAfterLeft {
		s.Suppressed = true
	}
	return s
}

// ApplyRight records a right swipe, partially restoring the penalty and clearing suppression.
func ApplyRight(s SwipeState, now time.Time, cfg Config) SwipeState {
	s.RightCount++
	s.LastSwipedAt = stamp(now)
	s.PenaltyFactor = math.Min(s.PenaltyFactor+cfg.RightBonus, 1.0)
	s.Suppressed = false
	return s
}

// Apply dispatches to ApplyLeft or ApplyRight.
func Apply(s SwipeState, dir Direction, now time.Time, cfg Config) (SwipeState, error) {
	switch dir {
	case Left:
		return ApplyLeft(s, now, cfg), nil
	case Right:
		return ApplyRight(s, now, cfg), nil
	default:
		return s, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
}

// ApplyTimeRecovery softens a penalty by RecoveryPerWeek for each week (counted in
// whole days) since the last swipe, capped at 1.0. A pair whose penalty recovers above
// UnsuppressAbove is un-suppressed.
func ApplyTimeRecovery(s SwipeState, now time.Time, cfg Config) SwipeState {
	if s.LastSwipedAt == nil || s.PenaltyFactor >= 1.0 {
		return s
	}

	days := math.Floor(now.Sub(*s.LastSwipedAt).Hours() / 24)
	if days > 0 {
		weeks := days / 7
		s.PenaltyFactor = math.Min(s.PenaltyFactor+weeks*cfg.RecoveryPerWeek, 1.0)
	}

	if s.PenaltyFactor > cfg.UnsuppressAbove && s.Suppressed {
		s.Suppressed = false
	}
	return s
}

// SignalStrength scores the buyer's fresh activity signals in [0, 1].
func SignalStrength(b trade.Buyer, w SignalWeights) float64 {
	return b.FundingEvent*w.Funding + b.DecisionMakerChange*w.DecisionMaker + b.HiringGrowth*w.Hiring
}

// ApplySignalRecovery restores part of a penalty when the buyer shows new activity.
// It only applies to pairs that have been swiped and are still penalized; a strong
// enough signal always clears suppression.
func ApplySignalRecovery(s SwipeState, b trade.Buyer, cfg Config) SwipeState {
	if s.LastSwipedAt == nil || s.PenaltyFactor >= 1.0 {
		return s
	}

	strength := SignalStrength(b, cfg.SignalWeights)
	if strength > cfg.SignalThreshold {
		s.PenaltyFactor = math.Min(s.PenaltyFactor+cfg.SignalRecovery*strength, 1.0)
		s.Suppressed = false
	}
	return s
}

// Recover applies time recovery then signal recovery. Call it on every read used for
// scoring; the stored penalty is a lower bound that reads may transiently raise.
func Recover(s SwipeState, b trade.Buyer, now time.Time, cfg Config) SwipeState {
	s = ApplyTimeRecovery(s, now, cfg)
	return ApplySignalRecovery(s, b, cfg)
}
