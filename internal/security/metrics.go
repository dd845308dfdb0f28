package security

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calmisko/gatepipe/internal/observability"
)

// Metrics holds Prometheus metrics for CORS handling and request
// screening.
type Metrics struct {
	preflightTotal  *prometheus.CounterVec
	violationsTotal *prometheus.CounterVec
	blockedTotal    prometheus.Counter
	headersApplied  prometheus.Counter
	registerer      prometheus.Registerer
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

	m.preflightTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "security",
			Name:      "preflight_total",
			Help:      "Total number of CORS preflight requests handled",
		},
		[]string{"result"},
	)

	m.violationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "security",
			Name:      "violations_total",
			Help:      "Total number of screening violations found",
		},
		[]string{"kind", "severity"},
	)

	m.blockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "security",
			Name:      "blocked_total",
			Help:      "Total number of requests whose violations warranted blocking",
		},
	)

	m.headersApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "security",
			Name:      "headers_applied_total",
			Help:      "Total number of responses decorated with security headers",
		},
	)

	for _, c := range []prometheus.Collector{
		m.preflightTotal,
		m.violationsTotal,
		m.blockedTotal,
		m.headersApplied,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordPreflight records a handled CORS preflight request.
func (m *Metrics) RecordPreflight(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.preflightTotal.WithLabelValues(result).Inc()
}

// RecordViolation records a screening violation.
func (m *Metrics) RecordViolation(kind string, severity Severity) {
	m.violationsTotal.WithLabelValues(kind, string(severity)).Inc()
}

// RecordBlocked records a request whose violations warranted blocking.
func (m *Metrics) RecordBlocked() {
	m.blockedTotal.Inc()
}

// RecordHeadersApplied records a response decorated with security
// headers.
func (m *Metrics) RecordHeadersApplied() {
	m.headersApplied.Inc()
}
