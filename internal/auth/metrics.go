package auth

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calmisko/gatepipe/internal/observability"
)

// Metrics holds Prometheus metrics for authentication.
type Metrics struct {
	attemptsTotal   *prometheus.CounterVec
	lockoutsTotal   prometheus.Counter
	tokenCacheTotal *prometheus.CounterVec
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

	m.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total number of authentication attempts",
		},
		[]string{"method", "status"},
	)

	m.lockoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Total number of requests rejected by failure lockout",
		},
	)

	m.tokenCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "auth",
			Name:      "token_cache_total",
			Help:      "Total number of verified token cache lookups",
		},
		[]string{"result"},
	)

	for _, c := range []prometheus.Collector{m.attemptsTotal, m.lockoutsTotal, m.tokenCacheTotal} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordAttempt records an authentication attempt and its outcome.
func (m *Metrics) RecordAttempt(method string, status Status) {
	m.attemptsTotal.WithLabelValues(method, string(status)).Inc()
}

// RecordLockout records a request rejected by failure lockout.
func (m *Metrics) RecordLockout() {
	m.lockoutsTotal.Inc()
}

// RecordTokenCache records a verified token cache lookup.
func (m *Metrics) RecordTokenCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.tokenCacheTotal.WithLabelValues(result).Inc()
}
