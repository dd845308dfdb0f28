package analytics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calmisko/gatepipe/internal/observability"
)

// Metrics holds Prometheus metrics for the event emitter.
type Metrics struct {
	eventsTotal        *prometheus.CounterVec
	droppedTotal       prometheus.Counter
	deliveriesTotal    *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	registerer         prometheus.Registerer
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

	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "analytics",
			Name:      "events_total",
			Help:      "Total number of analytics events accepted",
		},
		[]string{"type"},
	)

	m.droppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "analytics",
			Name:      "dropped_total",
			Help:      "Total number of analytics events dropped on a full buffer",
		},
	)

	m.deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "analytics",
			Name:      "deliveries_total",
			Help:      "Total number of sink delivery attempts",
		},
		[]string{"outcome"},
	)

	m.breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "analytics",
			Name:      "sink_breaker_transitions_total",
			Help:      "Total number of sink circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	for _, c := range []prometheus.Collector{
		m.eventsTotal,
		m.droppedTotal,
		m.deliveriesTotal,
		m.breakerTransitions,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordEvent records an accepted event.
func (m *Metrics) RecordEvent(eventType EventType) {
	m.eventsTotal.WithLabelValues(string(eventType)).Inc()
}

// RecordDropped records an event dropped on a full buffer.
func (m *Metrics) RecordDropped() {
	m.droppedTotal.Inc()
}

// RecordDelivery records a sink delivery attempt.
func (m *Metrics) RecordDelivery(outcome string) {
	m.deliveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordBreakerTransition records a sink breaker state transition.
func (m *Metrics) RecordBreakerTransition(from, to string) {
	m.breakerTransitions.WithLabelValues(from, to).Inc()
}
