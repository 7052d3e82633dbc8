package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
)

// weightSumTolerance is the allowed drift when checking that a weight group sums to 1.0.
const weightSumTolerance = 0.001

// Weight validation errors.
var (
	ErrWeightsSum            = errors.New("composite weights must sum to 1.0")
	ErrIntentWeightsSum      = errors.New("intent signal weights must sum to 1.0")
	ErrReliabilityWeightsSum = errors.New("reliability weights must sum to 1.0")
	ErrNegativeWeight        = errors.New("weights must be non-negative")
	ErrTiersUnordered        = errors.New("score tiers must be ordered by descending threshold")
	ErrNoTiers               = errors.New("at least one score tier is required")
)

// CompositeWeights are the four top-level aggregation weights.
type CompositeWeights struct {
	IndustryMatch float64 `json:"industry_match"`      // default: 0.35
	Intent        float64 `json:"intent_score"`        // default: 0.30
	Reliability   float64 `json:"reliability_score"`   // default: 0.20
	Geopolitical  float64 `json:"geopolitical_safety"` // default: 0.15
}

// Sum returns the total of the composite weights.
func (c CompositeWeights) Sum() float64 {
	return c.IndustryMatch + c.Intent + c.Reliability + c.Geopolitical
}

// IntentWeights weight the six buyer intent signals.
type IntentWeights struct {
	RawIntent     float64 `json:"raw_intent_score"`      // default: 0.25
	Engagement    float64 `json:"engagement_spike"`      // default: 0.20
	Funding       float64 `json:"funding_event"`         // default: 0.20
	DecisionMaker float64 `json:"decision_maker_change"` // default: 0.15
	Hiring        float64 `json:"hiring_growth"`         // default: 0.10
	ProfileVisits float64 `json:"profile_visits_norm"`   // default: 0.10
}

// Sum returns the total of the intent weights.
func (i IntentWeights) Sum() float64 {
	return i.RawIntent + i.Engagement + i.Funding + i.DecisionMaker + i.Hiring + i.ProfileVisits
}

// ReliabilityWeights weight payment history against responsiveness.
type ReliabilityWeights struct {
	PaymentHistory float64 `json:"payment_history"` // default: 0.55
	PromptResponse float64 `json:"prompt_response"` // default: 0.45
}

// GeoPenalties are subtracted from a perfect safety score per active risk flag.
type GeoPenalties struct {
	War        float64 `json:"war_event"`          // default: 0.35
	Calamity   float64 `json:"natural_calamity"`   // default: 0.20
	Tariff     float64 `json:"tariff_news"`        // default: 0.15
	StockShock float64 `json:"stock_market_shock"` // default: 0.15
}

// Tier maps a minimum composite score to a display label.
type Tier struct {
	Threshold float64 `json:"threshold"`
	Label     string  `json:"label"`
}

// Weights holds the full scoring configuration. Treat a loaded value as read-only.
type Weights struct {
	Composite      CompositeWeights    `json:"composite"`
	Intent         IntentWeights       `json:"intent"`
	Reliability    ReliabilityWeights  `json:"reliability"`
	Geo            GeoPenalties        `json:"geopolitical"`
	CurrencyWeight float64             `json:"currency_weight"`
	Adjacency      map[string][]string `json:"industry_adjacency"`
	Tiers          []Tier              `json:"tiers"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"`
	Weights Weights `json:"weights"`
}

// DefaultAdjacency returns the industries considered a partial match for each industry.
func DefaultAdjacency() map[string][]string {
	return map[string][]string{
		"Solar":           {"Engineering", "Electronics", "Chemicals"},
		"Medical Devices": {"Pharmaceuticals", "Electronics", "Chemicals"},
		"IT Software":     {"Electronics", "Engineering"},
		"Machinery":       {"Engineering", "Auto Parts", "Chemicals"},
		"Textiles":        {"Chemicals"},
		"Pharmaceuticals": {"Medical Devices", "Chemicals"},
		"Electronics":     {"IT Software", "Engineering", "Solar"},
		"Engineering":     {"Machinery", "Electronics", "Auto Parts"},
		"Chemicals":       {"Pharmaceuticals", "Solar", "Textiles", "Electronics"},
		"Auto Parts":      {"Machinery", "Engineering"},
	}
}

// DefaultTiers returns the display tiers, highest threshold first.
func DefaultTiers() []Tier {
	return []Tier{
		{Threshold: 0.80, Label: "Hot Match"},
		{Threshold: 0.60, Label: "Strong Fit"},
		{Threshold: 0.40, Label: "Moderate"},
		{Threshold: 0.20, Label: "Weak Fit"},
		{Threshold: 0.00, Label: "Low Priority"},
	}
}

// DefaultWeights returns the default scoring configuration.
//
// Composite formula: base = industry*0.35 + intent*0.30 + reliability*0.20 + geo*0.15
// - Industry fit dominates because a buyer outside the exporter's sector rarely converts
// - Intent captures current buying activity
// - Reliability and geopolitical safety act as risk discounts
func DefaultWeights() *Weights {
	return &Weights{
		Composite: CompositeWeights{
			IndustryMatch: 0.35,
			Intent:        0.30,
			Reliability:   0.20,
			Geopolitical:  0.15,
		},
		Intent: IntentWeights{
			RawIntent:     0.25,
			Engagement:    0.20,
			Funding:       0.20,
			DecisionMaker: 0.15,
			Hiring:        0.10,
			ProfileVisits: 0.10,
		},
		Reliability: ReliabilityWeights{
			PaymentHistory: 0.55,
			PromptResponse: 0.45,
		},
		Geo: GeoPenalties{
			War:        0.35,
			Calamity:   0.20,
			Tariff:     0.15,
			StockShock: 0.15,
		},
		CurrencyWeight: 0.10,
		Adjacency:      DefaultAdjacency(),
		Tiers:          DefaultTiers(),
	}
}

// Validate checks the weight invariants. Every weight group that feeds a weighted sum must
// total 1.0, no weight may be negative, and tiers must be ordered highest threshold first.
func (w *Weights) Validate() error {
	var errs []error

	if sum := w.Composite.Sum(); math.Abs(sum-1.0) > weightSumTolerance {
		errs = append(errs, fmt.Errorf("%w: got %.4f", ErrWeightsSum, sum))
	}
	if sum := w.Intent.Sum(); math.Abs(sum-1.0) > weightSumTolerance {
		errs = append(errs, fmt.Errorf("%w: got %.4f", ErrIntentWeightsSum, sum))
	}
	if sum := w.Reliability.PaymentHistory + w.Reliability.PromptResponse; math.Abs(sum-1.0) > weightSumTolerance {
		errs = append(errs, fmt.Errorf("%w: got %.4f", ErrReliabilityWeightsSum, sum))
	}

	all := []float64{
		w.Composite.IndustryMatch, w.Composite.Intent, w.Composite.Reliability, w.Composite.Geopolitical,
		w.Intent.RawIntent, w.Intent.Engagement, w.Intent.Funding, w.Intent.DecisionMaker, w.Intent.Hiring, w.Intent.ProfileVisits,
		w.Reliability.PaymentHistory, w.Reliability.PromptResponse,
		w.Geo.War, w.Geo.Calamity, w.Geo.Tariff, w.Geo.StockShock,
		w.CurrencyWeight,
	}
	for _, v := range all {
		if v < 0 {
			errs = append(errs, ErrNegativeWeight)
			break
		}
	}

	if len(w.Tiers) == 0 {
		errs = append(errs, ErrNoTiers)
	}
	for i := 1; i < len(w.Tiers); i++ {
		if w.Tiers[i].Threshold > w.Tiers[i-1].Threshold {
			errs = append(errs, ErrTiersUnordered)
			break
		}
	}

	return errors.Join(errs...)
}

// LoadCalibration loads scoring weights from a JSON calibration file.
// Partial configurations are merged with defaults.
//
// Parameters:
//   - filePath: Path to the calibration JSON file
//
// Returns the loaded weights and any error encountered. On a read or parse error the
// defaults are returned alongside the error. A calibration that parses but breaks a
// weight invariant is rejected the same way.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	if err := merged.Validate(); err != nil {
		slog.Warn("calibration file violates weight invariants, using defaults",
			"path", filePath,
			"version", config.Version,
			"error", err)
		return DefaultWeights(), fmt.Errorf("invalid calibration file: %w", err)
	}
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights with base weights.
// Only non-zero scalar values from the override are applied. Adjacency entries from the
// override replace the base entry for the same industry; a non-empty tier list replaces
// the base tiers wholesale.
//
// Returns a new Weights value; neither argument is modified.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}

	result := base.clone()
	if override == nil {
		return result
	}

	mergeFloat(&result.Composite.IndustryMatch, override.Composite.IndustryMatch)
	mergeFloat(&result.Composite.Intent, override.Composite.Intent)
	mergeFloat(&result.Composite.Reliability, override.Composite.Reliability)
	mergeFloat(&result.Composite.Geopolitical, override.Composite.Geopolitical)

	mergeFloat(&result.Intent.RawIntent, override.Intent.RawIntent)
	mergeFloat(&result.Intent.Engagement, override.Intent.Engagement)
	mergeFloat(&result.Intent.Funding, override.Intent.Funding)
	mergeFloat(&result.Intent.DecisionMaker, override.Intent.DecisionMaker)
	mergeFloat(&result.Intent.Hiring, override.Intent.Hiring)
	mergeFloat(&result.Intent.ProfileVisits, override.Intent.ProfileVisits)

	mergeFloat(&result.Reliability.PaymentHistory, override.Reliability.PaymentHistory)
	mergeFloat(&result.Reliability.PromptResponse, override.Reliability.PromptResponse)

	mergeFloat(&result.Geo.War, override.Geo.War)
	mergeFloat(&result.Geo.Calamity, override.Geo.Calamity)
	mergeFloat(&result.Geo.Tariff, override.Geo.Tariff)
	mergeFloat(&result.Geo.StockShock, override.Geo.StockShock)
	mergeFloat(&result.CurrencyWeight, override.CurrencyWeight)

	for industry, adjacent := range override.Adjacency {
		result.Adjacency[industry] = append([]string(nil), adjacent...)
	}
	if len(override.Tiers) > 0 {
		result.Tiers = append([]Tier(nil), override.Tiers...)
	}

	return result
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// clone returns a deep copy so callers can never alias the adjacency map or tier slice.
func (w *Weights) clone() *Weights {
	c := *w
	c.Adjacency = make(map[string][]string, len(w.Adjacency))
	for k, v := range w.Adjacency {
		c.Adjacency[k] = append([]string(nil), v...)
	}
	c.Tiers = append([]Tier(nil), w.Tiers...)
	return &c
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	check := func(name string, before, after float64) {
		if before != after {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", name, before, after))
		}
	}

	check("composite.industry_match", defaults.Composite.IndustryMatch, loaded.Composite.IndustryMatch)
	check("composite.intent_score", defaults.Composite.Intent, loaded.Composite.Intent)
	check("composite.reliability_score", defaults.Composite.Reliability, loaded.Composite.Reliability)
	check("composite.geopolitical_safety", defaults.Composite.Geopolitical, loaded.Composite.Geopolitical)
	check("intent.raw_intent_score", defaults.Intent.RawIntent, loaded.Intent.RawIntent)
	check("intent.engagement_spike", defaults.Intent.Engagement, loaded.Intent.Engagement)
	check("intent.funding_event", defaults.Intent.Funding, loaded.Intent.Funding)
	check("intent.decision_maker_change", defaults.Intent.DecisionMaker, loaded.Intent.DecisionMaker)
	check("intent.hiring_growth", defaults.Intent.Hiring, loaded.Intent.Hiring)
	check("intent.profile_visits_norm", defaults.Intent.ProfileVisits, loaded.Intent.ProfileVisits)
	check("reliability.payment_history", defaults.Reliability.PaymentHistory, loaded.Reliability.PaymentHistory)
	check("reliability.prompt_response", defaults.Reliability.PromptResponse, loaded.Reliability.PromptResponse)
	check("geopolitical.war_event", defaults.Geo.War, loaded.Geo.War)
	check("geopolitical.natural_calamity", defaults.Geo.Calamity, loaded.Geo.Calamity)
	check("geopolitical.tariff_news", defaults.Geo.Tariff, loaded.Geo.Tariff)
	check("geopolitical.stock_market_shock", defaults.Geo.StockShock, loaded.Geo.StockShock)
	check("currency_weight", defaults.CurrencyWeight, loaded.CurrencyWeight)

	if len(overrides) > 0 {
		slog.Info("loaded scoring calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded scoring calibration (using all defaults)")
	}
}
