package ranking

import (
	"fmt"

	"github.com/onnwee/tradematch/internal/trade"
)

// Reason thresholds. These are part of observable behavior: display clients key
// badges off the resulting strings.
const (
	highIntentThreshold      = 0.7
	moderateIntentThreshold  = 0.4
	strongReliabilityCutoff  = 0.7
	weakReliabilityCutoff    = 0.4
	geoRiskCutoff            = 0.6
	newsReasonCutoff         = 0.05
	swipePenaltyReasonCutoff = 0.8
)

// Reasons builds the ordered, human-readable explanation for a score.
func Reasons(exp trade.Exporter, buyer trade.Buyer, sub SubScores, industryTag string, newsDelta, swipePenalty float64) []string {
	reasons := make([]string, 0, 6)

	switch industryTag {
	case MatchExact:
		reasons = append(reasons, fmt.Sprintf("Exact industry match (%s)", buyer.Industry))
	case MatchAdjacent:
		reasons = append(reasons, fmt.Sprintf("Adjacent industry (%s <-> %s)", exp.Industry, buyer.Industry))
	default:
		reasons = append(reasons, "No industry overlap")
	}

	if sub.Intent >= highIntentThreshold {
		reasons = append(reasons, "High buyer intent: funding, hiring or engagement active")
	} else if sub.Intent >= moderateIntentThreshold {
		reasons = append(reasons, "Moderate buyer intent signals")
	}

	if sub.Reliability >= strongReliabilityCutoff {
		reasons = append(reasons, "Strong payment and response track record")
	} else if sub.Reliability < weakReliabilityCutoff {
		reasons = append(reasons, "Reliability concerns: low payment or response history")
	}

	if sub.Geopolitical < geoRiskCutoff {
		reasons = append(reasons, fmt.Sprintf("Geopolitical risk in %s: trade caution advised", buyer.Country))
	}

	if newsDelta > newsReasonCutoff {
		reasons = append(reasons, fmt.Sprintf("Recent news boosts opportunity (+%.2f)", newsDelta))
	} else if newsDelta < -newsReasonCutoff {
		reasons = append(reasons, fmt.Sprintf("Recent news indicates market risk (%.2f)", newsDelta))
	}

	if swipePenalty < swipePenaltyReasonCutoff {
		reasons = append(reasons, fmt.Sprintf("Previous left swipes apply a penalty (%.0f%% factor)", swipePenalty*100))
	}

	return reasons
}
