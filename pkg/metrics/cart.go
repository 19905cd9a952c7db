package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records cart refreshes and mutations.
type CartMetrics struct {
	refreshDuration *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	mutations       *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	refreshDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_refresh_duration_seconds",
		Help:    "Duration of cart refreshes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_refresh_total",
		Help: "Cart refreshes by outcome (applied, stale, error).",
	}, []string{"outcome"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutation_total",
		Help: "Cart mutations sent to the backend by operation and outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(refreshDuration, refreshes, mutations)
	return &CartMetrics{
		refreshDuration: refreshDuration,
		refreshes:       refreshes,
		mutations:       mutations,
	}
}

// ObserveRefresh records one refresh outcome and its duration.
func (c *CartMetrics) ObserveRefresh(outcome string, duration time.Duration) {
	if c == nil || c.refreshes == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	c.refreshes.WithLabelValues(outcome).Inc()
	c.refreshDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveMutation counts one mutation attempt.
func (c *CartMetrics) ObserveMutation(operation, outcome string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
