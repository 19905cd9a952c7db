package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RemoteMetrics records calls made to upstream services.
type RemoteMetrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
}

// NewRemoteMetrics registers upstream call metrics on the provided registerer.
func NewRemoteMetrics(reg prometheus.Registerer) *RemoteMetrics {
	if reg == nil {
		return &RemoteMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remote_call_duration_seconds",
		Help:    "Duration of upstream calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "operation"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remote_call_total",
		Help: "Upstream calls by service, operation and status.",
	}, []string{"service", "operation", "status"})
	reg.MustRegister(duration, calls)
	return &RemoteMetrics{duration: duration, calls: calls}
}

// ObserveCall records one upstream call. A zero status means the call never got a response.
func (r *RemoteMetrics) ObserveCall(service, operation string, status int, duration time.Duration) {
	if r == nil || r.calls == nil {
		return
	}
	service = normalizeLabel(service)
	operation = normalizeLabel(operation)
	code := "transport_error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	r.calls.WithLabelValues(service, operation, code).Inc()
	r.duration.WithLabelValues(service, operation).Observe(duration.Seconds())
}
