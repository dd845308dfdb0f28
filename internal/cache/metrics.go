package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calmisko/gatepipe/internal/observability"
)

// Metrics holds Prometheus metrics for the response cache.
type Metrics struct {
	lookupsTotal   *prometheus.CounterVec
	storesTotal    *prometheus.CounterVec
	evictionsTotal prometheus.Counter
	registerer     prometheus.Registerer
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

	m.lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"result"},
	)

	m.storesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "cache",
			Name:      "stores_total",
			Help:      "Total number of cache store attempts",
		},
		[]string{"result"},
	)

	m.evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of cache entries evicted under pressure",
		},
	)

	for _, c := range []prometheus.Collector{m.lookupsTotal, m.storesTotal, m.evictionsTotal} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordLookup records a cache lookup outcome.
func (m *Metrics) RecordLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupsTotal.WithLabelValues(result).Inc()
}

// RecordStore records a cache store attempt.
func (m *Metrics) RecordStore(stored bool) {
	result := "rejected"
	if stored {
		result = "stored"
	}
	m.storesTotal.WithLabelValues(result).Inc()
}

// RecordEviction records an entry evicted under pressure.
func (m *Metrics) RecordEviction() {
	m.evictionsTotal.Inc()
}
