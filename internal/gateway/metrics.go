package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/observability"
)

// Metrics holds Prometheus metrics for the request pipeline.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	panicsTotal     prometheus.Counter
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

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total number of processed requests by gateway status",
		},
		[]string{"status"},
	)

	m.requestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: observability.Namespace,
			Subsystem: "pipeline",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request processing duration",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: observability.Namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"stage"},
	)

	m.panicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "pipeline",
			Name:      "panics_recovered_total",
			Help:      "Total number of panics recovered at the pipeline boundary",
		},
	)

	for _, c := range []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.stageDuration,
		m.panicsTotal,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordRequest records a completed request with its terminal status.
func (m *Metrics) RecordRequest(status core.GatewayStatus, latency time.Duration) {
	m.requestsTotal.WithLabelValues(string(status)).Inc()
	m.requestDuration.Observe(latency.Seconds())
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordPanic records a recovered panic.
func (m *Metrics) RecordPanic() {
	m.panicsTotal.Inc()
}
