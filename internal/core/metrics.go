package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics records operation outcomes (MetricsRecorder) and catch
// activity (EventSink) on a caller supplied registry.
type PrometheusMetrics struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	catches    *prometheus.CounterVec
	awarded    prometheus.Counter
	ranks      *prometheus.CounterVec
}

// NewPrometheusMetrics registers the fisher collectors under namespace.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Count of fisher store operations by operation and status.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of fisher store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		catches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catches_total",
			Help:      "Committed catches by kind.",
		}, []string{"kind"}),
		awarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reputation_awarded_total",
			Help:      "Reputation points awarded across all fishers.",
		}),
		ranks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catches_by_rank_total",
			Help:      "Committed catches by the rank reached after the catch.",
		}, []string{"rank"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.durations, m.catches, m.awarded, m.ranks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe implements MetricsRecorder.
func (m *PrometheusMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := string(AuditStatusSuccess)
	if !success {
		status = string(AuditStatusError)
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// Publish implements EventSink.
func (m *PrometheusMetrics) Publish(_ context.Context, e CatchEvent) error {
	kind := "regular"
	if e.BigFish {
		kind = "big_fish"
	}
	m.catches.WithLabelValues(kind).Inc()
	m.awarded.Add(float64(e.Points))
	m.ranks.WithLabelValues(e.Rank.String()).Inc()
	return nil
}
