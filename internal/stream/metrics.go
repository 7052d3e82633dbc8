package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricDeckSubscribers       = "tradematch_deck_subscribers"
	MetricDeckBroadcasts        = "tradematch_deck_broadcasts_total"
	MetricDeckBroadcastFailures = "tradematch_deck_broadcast_failures_total"
)

// Metrics contains Prometheus metrics for deck subscriptions.
// All operations are thread-safe.
type Metrics struct {
	subscribers       prometheus.Gauge
	broadcasts        prometheus.Counter
	broadcastFailures prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricDeckSubscribers,
			Help: "Number of WebSocket clients subscribed to deck updates",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDeckBroadcasts,
			Help: "Total number of deck messages delivered to subscribers",
		}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDeckBroadcastFailures,
			Help: "Total number of deck messages that failed to send",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// SetSubscribers records the current subscriber count.
func (m *Metrics) SetSubscribers(n int) {
	m.subscribers.Set(float64(n))
}

// IncBroadcasts increments the delivered messages counter.
func (m *Metrics) IncBroadcasts() {
	m.broadcasts.Inc()
}

// IncBroadcastFailures increments the failed messages counter.
func (m *Metrics) IncBroadcastFailures() {
	m.broadcastFailures.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.subscribers,
		m.broadcasts,
		m.broadcastFailures,
	}
}
