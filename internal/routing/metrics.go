package routing

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calmisko/gatepipe/internal/observability"
)

// Metrics holds Prometheus metrics for route matching and upstream
// selection.
type Metrics struct {
	matchesTotal     *prometheus.CounterVec
	missesTotal      prometheus.Counter
	selectionsTotal  *prometheus.CounterVec
	unavailableTotal *prometheus.CounterVec
	upstreamResults  *prometheus.CounterVec
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

	m.matchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "routing",
			Name:      "matches_total",
			Help:      "Total number of requests matched to a route",
		},
		[]string{"route"},
	)

	m.missesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "routing",
			Name:      "misses_total",
			Help:      "Total number of requests that matched no route",
		},
	)

	m.selectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "routing",
			Name:      "upstream_selections_total",
			Help:      "Total number of upstream selections",
		},
		[]string{"route", "upstream"},
	)

	m.unavailableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "routing",
			Name:      "upstream_unavailable_total",
			Help:      "Total number of selections that found no eligible upstream",
		},
		[]string{"route"},
	)

	m.upstreamResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "routing",
			Name:      "upstream_results_total",
			Help:      "Total number of recorded upstream outcomes",
		},
		[]string{"upstream", "outcome"},
	)

	for _, c := range []prometheus.Collector{
		m.matchesTotal,
		m.missesTotal,
		m.selectionsTotal,
		m.unavailableTotal,
		m.upstreamResults,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordMatch records a successful route match.
func (m *Metrics) RecordMatch(route string) {
	m.matchesTotal.WithLabelValues(route).Inc()
}

// RecordMiss records a request that matched no route.
func (m *Metrics) RecordMiss() {
	m.missesTotal.Inc()
}

// RecordSelection records an upstream selection for a route.
func (m *Metrics) RecordSelection(route, upstream string) {
	m.selectionsTotal.WithLabelValues(route, upstream).Inc()
}

// RecordUnavailable records a selection attempt that found no eligible
// upstream.
func (m *Metrics) RecordUnavailable(route string) {
	m.unavailableTotal.WithLabelValues(route).Inc()
}

// RecordOutcome records the outcome of a forwarded request.
func (m *Metrics) RecordOutcome(upstream string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.upstreamResults.WithLabelValues(upstream, outcome).Inc()
}
