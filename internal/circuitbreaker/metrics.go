package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calmisko/gatepipe/internal/observability"
)

// Metrics holds Prometheus metrics for circuit breakers.
type Metrics struct {
	state            *prometheus.GaugeVec
	checksTotal      *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
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

	m.state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: observability.Namespace,
			Subsystem: "circuitbreaker",
			Name:      "state",
			Help:      "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"upstream"},
	)

	m.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "circuitbreaker",
			Name:      "checks_total",
			Help:      "Total number of circuit breaker checks",
		},
		[]string{"upstream", "result"},
	)

	m.transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "circuitbreaker",
			Name:      "transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"upstream", "from", "to"},
	)

	for _, c := range []prometheus.Collector{m.state, m.checksTotal, m.transitionsTotal} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordCheck records an admission check and its result.
func (m *Metrics) RecordCheck(upstream string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	m.checksTotal.WithLabelValues(upstream, result).Inc()
}

// RecordTransition records a state transition and updates the state
// gauge.
func (m *Metrics) RecordTransition(upstream string, from, to State) {
	m.transitionsTotal.WithLabelValues(upstream, from.String(), to.String()).Inc()
	m.state.WithLabelValues(upstream).Set(float64(to))
}
