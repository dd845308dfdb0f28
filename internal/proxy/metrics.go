package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/calmisko/gatepipe/internal/observability"
)

// Metrics holds Prometheus metrics for upstream forwarding.
type Metrics struct {
	durationSeconds *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
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

	m.durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: observability.Namespace,
			Subsystem: "proxy",
			Name:      "upstream_duration_seconds",
			Help:      "Duration of upstream requests",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"upstream"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "proxy",
			Name:      "errors_total",
			Help:      "Total number of forwarding errors",
		},
		[]string{"upstream", "reason"},
	)

	for _, c := range []prometheus.Collector{m.durationSeconds, m.errorsTotal} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordRequest records a completed upstream call.
func (m *Metrics) RecordRequest(upstream string, latency time.Duration) {
	m.durationSeconds.WithLabelValues(upstream).Observe(latency.Seconds())
}

// RecordError records a forwarding failure.
func (m *Metrics) RecordError(upstream, reason string) {
	m.errorsTotal.WithLabelValues(upstream, reason).Inc()
}
