package auth

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWithRegisterer(t *testing.T) {
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())
	require.NotNil(t, m)
	assert.NotNil(t, m.attemptsTotal)
	assert.NotNil(t, m.lockoutsTotal)
	assert.NotNil(t, m.tokenCacheTotal)
}

func TestMetricsRecordAttempt(t *testing.T) {
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordAttempt("api_key", StatusOK)
	m.RecordAttempt("api_key", StatusOK)
	m.RecordAttempt("bearer", StatusExpired)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.attemptsTotal.WithLabelValues("api_key", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.attemptsTotal.WithLabelValues("bearer", "expired")))
}

func TestMetricsRecordLockout(t *testing.T) {
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordLockout()
	m.RecordLockout()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.lockoutsTotal))
}

func TestMetricsRecordTokenCache(t *testing.T) {
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordTokenCache(true)
	m.RecordTokenCache(true)
	m.RecordTokenCache(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.tokenCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.tokenCacheTotal.WithLabelValues("miss")))
}

func TestMetricsDuplicateRegistrationTolerated(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := NewMetricsWithRegisterer(registry)
	second := NewMetricsWithRegisterer(registry)

	require.NotNil(t, first)
	require.NotNil(t, second)

	second.RecordAttempt("api_key", StatusOK)
	assert.Equal(t, float64(1), testutil.ToFloat64(second.attemptsTotal.WithLabelValues("api_key", "ok")))
}
