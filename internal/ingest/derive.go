package ingest

import (
	"math"
	"time"

	"github.com/onnwee/tradematch/internal/trade"
)

// DeriveBuyer fills the buyer's derived display and scoring fields.
func DeriveBuyer(b trade.Buyer, now time.Time, lambda, visitsCap float64) trade.Buyer {
	b.NormProfileVisits = math.Min(b.ProfileVisits, visitsCap) / visitsCap
	if b.NormProfileVisits < 0 {
		b.NormProfileVisits = 0
	}
	b.RecencyWeight = trade.RecencyWeight(b.Date, now, lambda)

	// Completeness is scored over two critical fields. Response probability always has a
	// fallback, so only a missing order size lowers it.
	b.DataCompleteness = 1.0
	if b.AvgOrderTons == nil {
		b.DataCompleteness = 0.5
	}

	if b.Channel == "" {
		b.Channel = trade.UnknownChannel
	}

	b.ActivityTier = ActivityTier(b)
	b.MomentumScore = clamp01(b.HiringGrowth*0.3 + b.FundingEvent*0.4 + b.EngagementSpike*0.3)

	b.ContactReadiness = clamp01(b.PromptResponse*0.6 + b.ResponseProbability*0.4)
	return b
}

// ActivityTier counts the buyer's confirmed activity flags.
func ActivityTier(b trade.Buyer) string {
	signals := 0
	for _, f := range []float64{b.HiringGrowth, b.FundingEvent, b.EngagementSpike, b.DecisionMakerChange} {
		if f > 0.5 {
			signals++
		}
	}
	switch {
	case signals >= 3:
		return trade.ActivityHigh
	case signals == 2:
		return trade.ActivityGrowing
	case signals == 1:
		return trade.ActivityStable
	default:
		return trade.ActivityLow
	}
}

// DeriveExporter fills the exporter's recency, capacity tier and reliability.
func DeriveExporter(e trade.Exporter, now time.Time, lambda float64) trade.Exporter {
	e.RecencyWeight = trade.RecencyWeight(e.Date, now, lambda)
	e.CapacityTier = CapacityTier(e.ManufacturingCapacity)
	e.Reliability = clamp01(e.GoodPaymentTerms*0.5 + e.PromptResponse*0.5)
	return e
}

// CapacityTier buckets manufacturing capacity in tons.
func CapacityTier(capacity float64) string {
	switch {
	case capacity == 0 || math.IsNaN(capacity):
		return trade.CapacityUnknown
	case capacity >= 6000:
		return trade.CapacityLarge
	case capacity >= 2000:
		return trade.CapacityMedium
	default:
		return trade.CapacitySmall
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
