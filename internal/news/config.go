// Package news builds the news risk/opportunity overlay: a read-only index from
// (country, industry) to a signed score delta derived from recent macro events.
package news

import (
	"errors"

	"github.com/onnwee/tradematch/internal/trade"
)

// GlobalKey is the sentinel country under which Global-region events are indexed.
const GlobalKey = "__GLOBAL__"

// Configuration errors.
var (
	ErrInvalidClip         = errors.New("news delta clip must be positive")
	ErrInvalidMultiplier   = errors.New("impact multipliers must be non-negative")
	ErrInvalidTagThreshold = errors.New("tag recency threshold must be within [0, 1]")
)

// Config holds the overlay tables and bounds.
type Config struct {
	BaseEffects         map[trade.EventType]float64   `koanf:"base_effects" json:"base_effects"`
	ImpactMultipliers   map[trade.ImpactLevel]float64 `koanf:"impact_multipliers" json:"impact_multipliers"`
	DefaultImpact       float64                       `koanf:"default_impact" json:"default_impact"`
	Regions             map[string][]string           `koanf:"regions" json:"regions"`
	MaxDelta            float64                       `koanf:"max_delta" json:"max_delta"`
	WarDampening        float64                       `koanf:"war_dampening" json:"war_dampening"`
	WarFlagThreshold    float64                       `koanf:"war_flag_threshold" json:"war_flag_threshold"`
	TagRecencyThreshold float64                       `koanf:"tag_recency_threshold" json:"tag_recency_threshold"`
}

// DefaultRegions maps region names to member countries.
func DefaultRegions() map[string][]string {
	return map[string][]string{
		"Asia":          {"Japan", "China", "India", "Singapore", "South Korea", "Vietnam"},
		"Europe":        {"Germany", "France", "Netherlands", "UK", "Italy", "Spain"},
		"North America": {"USA", "Canada", "Mexico"},
		"Middle East":   {"UAE", "Saudi Arabia", "Israel", "Iran", "Qatar"},
		"Africa":        {"Nigeria", "South Africa", "Kenya", "Egypt"},
		"South America": {"Brazil", "Argentina", "Colombia", "Chile"},
		"Oceania":       {"Australia", "New Zealand"},
	}
}

// DefaultConfig returns the standard overlay configuration.
func DefaultConfig() Config {
	return Config{
		BaseEffects: map[trade.EventType]float64{
			trade.EventTradeAgreement:   0.12,
			trade.EventTariffUpdate:     -0.08,
			trade.EventSupplyChainShock: -0.12,
			trade.EventStockCrash:       -0.08,
			trade.EventWarAlert:         -0.18,
			trade.EventNaturalCalamity:  -0.10,
		},
		ImpactMultipliers: map[trade.ImpactLevel]float64{
			trade.ImpactHigh:   1.0,
			trade.ImpactMedium: 0.6,
			trade.ImpactLow:    0.3,
		},
		DefaultImpact:       0.6,
		Regions:             DefaultRegions(),
		MaxDelta:            0.40,
		WarDampening:        0.5,
		WarFlagThreshold:    0.5,
		TagRecencyThreshold: 0.2,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	var errs []error
	if c.MaxDelta <= 0 {
		errs = append(errs, ErrInvalidClip)
	}
	if c.DefaultImpact < 0 {
		errs = append(errs, ErrInvalidMultiplier)
	}
	for _, m := range c.ImpactMultipliers {
		if m < 0 {
			errs = append(errs, ErrInvalidMultiplier)
			break
		}
	}
	if c.TagRecencyThreshold < 0 || c.TagRecencyThreshold > 1 {
		errs = append(errs, ErrInvalidTagThreshold)
	}
	return errors.Join(errs...)
}

// impact returns the multiplier for a level, falling back to DefaultImpact.
func (c Config) impact(level trade.ImpactLevel) float64 {
	if m, ok := c.ImpactMultipliers[level]; ok {
		return m
	}
	return c.DefaultImpact
}

// covers reports whether a region includes the given country.
func (c Config) covers(region, country string) bool {
	if region == trade.GlobalRegion {
		return true
	}
	for _, member := range c.Regions[region] {
		if member == country {
			return true
		}
	}
	return false
}
