package matching

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRankingsTotal   = "tradematch_rankings_total"
	MetricRankingDuration = "tradematch_ranking_duration_seconds"
	MetricPairsTotal      = "tradematch_pairs_total"
	MetricDeckSize        = "tradematch_deck_size"
)

// Pair outcome labels.
const (
	OutcomeMatched        = "matched"
	OutcomeSuppressed     = "suppressed"
	OutcomeBelowThreshold = "below_threshold"
)

// Metrics contains Prometheus metrics for deck ranking.
type Metrics struct {
	rankingsTotal   *prometheus.CounterVec
	rankingDuration prometheus.Histogram
	pairsTotal      *prometheus.CounterVec
	deckSize        prometheus.Histogram
}

// NewMetrics creates unregistered ranking metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		rankingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingsTotal,
				Help: "Total number of exporter deck rankings by status",
			},
			[]string{"status"},
		),
		rankingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricRankingDuration,
				Help:    "Histogram of single-exporter ranking duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
		),
		pairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPairsTotal,
				Help: "Total number of exporter-buyer pairs evaluated by outcome",
			},
			[]string{"outcome"},
		),
		deckSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricDeckSize,
				Help:    "Histogram of matches kept per deck",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRankings counts one ranking with status "success" or "failure".
func (m *Metrics) IncRankings(status string) {
	m.rankingsTotal.WithLabelValues(status).Inc()
}

// ObserveRankingDuration records a ranking duration sample.
func (m *Metrics) ObserveRankingDuration(seconds float64) {
	m.rankingDuration.Observe(seconds)
}

// AddPairs adds per-outcome pair counts from one ranking.
func (m *Metrics) AddPairs(stats RunStats) {
	m.pairsTotal.WithLabelValues(OutcomeMatched).Add(float64(stats.Matches))
	m.pairsTotal.WithLabelValues(OutcomeSuppressed).Add(float64(stats.Suppressed))
	m.pairsTotal.WithLabelValues(OutcomeBelowThreshold).Add(float64(stats.BelowThreshold))
}

// ObserveDeckSize records the number of matches kept in a deck.
func (m *Metrics) ObserveDeckSize(n int) {
	m.deckSize.Observe(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rankingsTotal,
		m.rankingDuration,
		m.pairsTotal,
		m.deckSize,
	}
}
