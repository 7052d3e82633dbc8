package ranking

import (
	"fmt"
	"time"

	"github.com/onnwee/tradematch/internal/trade"
)

// NewsLookup resolves the news overlay delta for a buyer's country and industry.
type NewsLookup interface {
	Delta(country, industry string) float64
}

// Penalties are the feedback factors applied to a pair's composite.
type Penalties struct {
	Swipe   float64 // per-pair soft decay factor
	Pattern float64 // pattern penalty multiplied by pattern boost
}

// NoPenalties returns neutral feedback factors.
func NoPenalties() Penalties {
	return Penalties{Swipe: 1.0, Pattern: 1.0}
}

// MatchScore is the scored result for one exporter/buyer pair.
type MatchScore struct {
	ExporterID string `json:"exporter_id"`
	BuyerID    string `json:"buyer_id"`

	IndustryMatch float64 `json:"score_industry_match"`
	Intent        float64 `json:"score_intent"`
	Reliability   float64 `json:"score_reliability"`
	Geopolitical  float64 `json:"score_geopolitical"`
	NewsDelta     float64 `json:"score_news_delta"`
	Recency       float64 `json:"score_recency_weight"`

	SwipePenalty   float64 `json:"swipe_penalty_factor"`
	PatternPenalty float64 `json:"pattern_penalty_factor"`

	Composite float64 `json:"composite_score"`

	Tier        string   `json:"score_tier"`
	IndustryTag string   `json:"industry_match_tag"`
	Reasons     []string `json:"match_reasons"`

	ScoredAt         time.Time `json:"scored_at"`
	DataCompleteness float64   `json:"data_completeness"`
}

// Scorer computes MatchScores with a fixed weight configuration.
// It is safe for concurrent use.
type Scorer struct {
	weights *Weights
	now     func() time.Time
}

// NewScorer creates a scorer after validating the weights.
// A nil weights argument selects the defaults.
func NewScorer(weights *Weights) (*Scorer, error) {
	if weights == nil {
		weights = DefaultWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring weights: %w", err)
	}
	return &Scorer{weights: weights.clone(), now: time.Now}, nil
}

// WithClock returns a copy of the scorer that stamps results using now.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	c := *s
	c.now = now
	return &c
}

// Weights returns a copy of the scorer's configuration.
func (s *Scorer) Weights() *Weights {
	return s.weights.clone()
}

// Score scores a buyer for an exporter. It never fails: missing data degrades to the
// documented neutral defaults and every aggregate is clipped to its range.
// A nil news lookup contributes no delta.
func (s *Scorer) Score(exp trade.Exporter, buyer trade.Buyer, news NewsLookup, p Penalties) MatchScore {
	w := s.weights

	industry, tag := IndustryMatch(exp.Industry, buyer.Industry, w.Adjacency)
	sub := SubScores{
		Industry:     industry,
		Intent:       IntentScore(buyer, w.Intent),
		Reliability:  ReliabilityScore(buyer, w.Reliability),
		Geopolitical: GeopoliticalSafety(buyer, w.Geo, w.CurrencyWeight),
	}

	var newsDelta float64
	if news != nil {
		newsDelta = news.Delta(buyer.Country, buyer.Industry)
	}

	composite := CompositeScore(sub, CompositeParams{
		NewsDelta:      newsDelta,
		Recency:        buyer.RecencyWeight,
		SwipePenalty:   p.Swipe,
		PatternPenalty: p.Pattern,
	}, w.Composite)

	return MatchScore{
		ExporterID:       exp.ID,
		BuyerID:          buyer.ID,
		IndustryMatch:    sub.Industry,
		Intent:           sub.Intent,
		Reliability:      sub.Reliability,
		Geopolitical:     sub.Geopolitical,
		NewsDelta:        newsDelta,
		Recency:          buyer.RecencyWeight,
		SwipePenalty:     p.Swipe,
		PatternPenalty:   p.Pattern,
		Composite:        composite,
		Tier:             TierLabel(composite, w.Tiers),
		IndustryTag:      tag,
		Reasons:          Reasons(exp, buyer, sub, tag, newsDelta, p.Swipe),
		ScoredAt:         s.now().UTC(),
		DataCompleteness: buyer.DataCompleteness,
	}
}
