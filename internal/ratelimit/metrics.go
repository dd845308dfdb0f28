package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calmisko/gatepipe/internal/observability"
)

// Metrics holds Prometheus metrics for rate limiting.
type Metrics struct {
	decisionsTotal   *prometheus.CounterVec
	storeErrorsTotal prometheus.Counter
	registerer       prometheus.Registerer
}

// NewMetrics creates a new Metrics instance registered with the default
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. Useful for tests with a private registry.
func NewMetricsWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{registerer: registerer}

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Total number of rate limit decisions",
		},
		[]string{"scope", "result"},
	)

	m.storeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "ratelimit",
			Name:      "store_errors_total",
			Help:      "Total number of rate limit store errors (failed open)",
		},
	)

	for _, c := range []prometheus.Collector{m.decisionsTotal, m.storeErrorsTotal} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordDecision records a rate limit decision.
func (m *Metrics) RecordDecision(scope string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.decisionsTotal.WithLabelValues(scope, result).Inc()
}

// RecordStoreError records a store failure that was failed open.
func (m *Metrics) RecordStoreError() {
	m.storeErrorsTotal.Inc()
}
