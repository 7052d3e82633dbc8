package feedback

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSwipesTotal       = "tradematch_swipes_total"
	MetricSuppressionsTotal = "tradematch_suppressions_total"
	MetricSwipeDuration     = "tradematch_swipe_duration_seconds"
	MetricSwipeErrorsTotal  = "tradematch_swipe_errors_total"
)

// Metrics contains Prometheus metrics for swipe processing.
type Metrics struct {
	swipesTotal       *prometheus.CounterVec
	suppressionsTotal prometheus.Counter
	swipeDuration     prometheus.Histogram
	swipeErrors       *prometheus.CounterVec
}

// NewMetrics creates unregistered swipe metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		swipesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSwipesTotal,
				Help: "Total number of processed swipes by direction",
			},
			[]string{"direction"},
		),
		suppressionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricSuppressionsTotal,
				Help: "Total number of buyer pairs newly hidden after repeated left swipes",
			},
		),
		swipeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSwipeDuration,
				Help:    "Histogram of swipe processing duration in seconds",
				Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
		swipeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSwipeErrorsTotal,
				Help: "Total number of swipe processing errors by error type",
			},
			[]string{"error_type"},
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

// IncSwipes counts one processed swipe.
func (m *Metrics) IncSwipes(dir Direction) {
	m.swipesTotal.WithLabelValues(string(dir)).Inc()
}

// IncSuppressions counts one pair crossing into the hidden state.
func (m *Metrics) IncSuppressions() {
	m.suppressionsTotal.Inc()
}

// ObserveSwipeDuration records a swipe processing sample.
func (m *Metrics) ObserveSwipeDuration(seconds float64) {
	m.swipeDuration.Observe(seconds)
}

// IncSwipeErrors counts a failed swipe.
// errorType: "validation", "load" or "store"
func (m *Metrics) IncSwipeErrors(errorType string) {
	m.swipeErrors.WithLabelValues(errorType).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.swipesTotal,
		m.suppressionsTotal,
		m.swipeDuration,
		m.swipeErrors,
	}
}
