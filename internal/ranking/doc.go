// Package ranking scores exporter/buyer pairs with a weighted multi-criteria model
// and supports deploy-time calibration of its weights.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/scoring.calibration.example.json")
//	if err != nil {
//		slog.Warn("using default weights", "error", err)
//	}
//
//	scorer, err := ranking.NewScorer(weights)
//	if err != nil {
//		return err // weights violate an invariant
//	}
//
//	score := scorer.Score(exporter, buyer, newsIndex, ranking.Penalties{
//		Swipe:   factors.Penalty,
//		Pattern: factors.Pattern,
//	})
//
// Sub-scores:
//
// IndustryMatch, IntentScore, ReliabilityScore and GeopoliticalSafety each return a
// value in [0, 1]. CompositeScore combines them with the composite weights, adds the
// news delta, applies recency, and finally multiplies in the feedback factors.
//
// Calibration:
//
// A calibration file may override any subset of weights. Composite, intent and
// reliability weight groups must each sum to 1.0 (within 0.001); a calibration
// that breaks this is rejected and the defaults are used instead.
//
// Example calibration file:
//
//	{
//	  "version": "1.0",
//	  "weights": {
//	    "composite": {
//	      "industry_match": 0.40,
//	      "intent_score": 0.25,
//	      "reliability_score": 0.20,
//	      "geopolitical_safety": 0.15
//	    },
//	    "industry_adjacency": {
//	      "Textiles": ["Chemicals", "Auto Parts"]
//	    }
//	  }
//	}
package ranking
