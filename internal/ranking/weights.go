package ranking

import (
	"strings"

	"github.com/onnwee/tradematch/internal/trade"
)

// Industry match tags.
const (
	MatchExact    = "exact"
	MatchAdjacent = "adjacent"
	MatchNone     = "none"
	MatchUnknown  = "unknown"
)

// Industry match scores.
const (
	industryExactScore    = 1.0
	industryAdjacentScore = 0.5
	industryNoneScore     = 0.0
	industryUnknownScore  = 0.3
)

// IndustryMatch scores how well a buyer's industry fits the exporter's.
//
// Parameters:
//   - exporterIndustry: The exporter's industry
//   - buyerIndustry: The buyer's industry
//   - adjacency: Industries treated as a partial match, keyed by exporter industry
//
// Returns (1.0, "exact") for the same industry, (0.5, "adjacent") when the buyer's industry
// is listed for the exporter's, (0.0, "none") otherwise. If either industry is empty the
// result is a neutral (0.3, "unknown") rather than a failure.
func IndustryMatch(exporterIndustry, buyerIndustry string, adjacency map[string][]string) (float64, string) {
	exp := strings.TrimSpace(exporterIndustry)
	buy := strings.TrimSpace(buyerIndustry)

	if exp == "" || buy == "" {
		return industryUnknownScore, MatchUnknown
	}
	if exp == buy {
		return industryExactScore, MatchExact
	}
	for _, adjacent := range adjacency[exp] {
		if adjacent == buy {
			return industryAdjacentScore, MatchAdjacent
		}
	}
	return industryNoneScore, MatchNone
}

// IntentScore aggregates the buyer's intent signals into a single score in [0, 1].
// The cleaned funding flag already carries the 0.1 "unknown" baseline.
func IntentScore(b trade.Buyer, w IntentWeights) float64 {
	score := b.IntentScore*w.RawIntent +
		b.EngagementSpike*w.Engagement +
		b.FundingEvent*w.Funding +
		b.DecisionMakerChange*w.DecisionMaker +
		b.HiringGrowth*w.Hiring +
		b.NormProfileVisits*w.ProfileVisits
	return clamp01(score)
}

// ReliabilityScore combines payment history and prompt response into [0, 1].
func ReliabilityScore(b trade.Buyer, w ReliabilityWeights) float64 {
	return clamp01(b.GoodPayment*w.PaymentHistory + b.PromptResponse*w.PromptResponse)
}

// GeopoliticalSafety starts from a perfectly safe 1.0 and subtracts a penalty per risk
// flag, scaled by the flag's strength. A currency shift clamped to [-1, 1] then adds or
// removes up to currencyWeight.
//
// Returns a value between 0.0 (unsafe) and 1.0 (safe).
func GeopoliticalSafety(b trade.Buyer, p GeoPenalties, currencyWeight float64) float64 {
	safety := 1.0
	safety -= b.WarEvent * p.War
	safety -= b.NaturalCalamity * p.Calamity
	safety -= b.TariffNews * p.Tariff
	safety -= b.StockShock * p.StockShock
	safety += clamp(b.CurrencyFluctuation, -1, 1) * currencyWeight
	return clamp01(safety)
}

// SubScores holds the four weighted components of a match.
type SubScores struct {
	Industry     float64
	Intent       float64
	Reliability  float64
	Geopolitical float64
}

// CompositeParams holds everything applied on top of the weighted base.
type CompositeParams struct {
	NewsDelta      float64 // Signed news overlay delta [-0.4, 0.4]
	Recency        float64 // Record freshness multiplier [0, 1]
	SwipePenalty   float64 // Per-pair decay factor [0.05, 1]
	PatternPenalty float64 // Learned pattern factor (penalty times boost)
}

// CompositeScore combines sub-scores into the final ranking value.
//
// Formula:
//
//	base           = Σ(subscore × weight)
//	baseWithNews   = clip(base + newsDelta, 0, 1)
//	recencyAdj     = baseWithNews × recency
//	final          = clip(recencyAdj × swipePenalty × patternPenalty, 0, 1)
//
// News is applied before recency so the [0, 1] cap bounds it before aging. Feedback
// factors come last and are purely multiplicative.
func CompositeScore(s SubScores, p CompositeParams, w CompositeWeights) float64 {
	base := s.Industry*w.IndustryMatch +
		s.Intent*w.Intent +
		s.Reliability*w.Reliability +
		s.Geopolitical*w.Geopolitical

	withNews := clamp01(base + p.NewsDelta)
	adjusted := withNews * p.Recency
	return clamp01(adjusted * p.SwipePenalty * p.PatternPenalty)
}

// TierLabel maps a composite score to its display tier. Tiers are evaluated in order and
// the first threshold the score meets wins; a score below every threshold gets the last label.
func TierLabel(score float64, tiers []Tier) string {
	if len(tiers) == 0 {
		return ""
	}
	for _, t := range tiers {
		if score >= t.Threshold {
			return t.Label
		}
	}
	return tiers[len(tiers)-1].Label
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
