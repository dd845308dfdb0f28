package ratelimit

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
	assert.NotNil(t, m.decisionsTotal)
	assert.NotNil(t, m.storeErrorsTotal)
}

func TestMetricsRecordDecision(t *testing.T) {
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordDecision("per_client", true)
	m.RecordDecision("per_client", true)
	m.RecordDecision("per_client", false)
	m.RecordDecision("global", false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.decisionsTotal.WithLabelValues("per_client", "allowed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decisionsTotal.WithLabelValues("per_client", "denied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decisionsTotal.WithLabelValues("global", "denied")))
}

func TestMetricsRecordStoreError(t *testing.T) {
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordStoreError()
	m.RecordStoreError()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.storeErrorsTotal))
}

func TestMetricsDuplicateRegistrationTolerated(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := NewMetricsWithRegisterer(registry)
	second := NewMetricsWithRegisterer(registry)

	require.NotNil(t, first)
	require.NotNil(t, second)

	// The second instance keeps working even though the registry
	// rejected its collectors.
	second.RecordDecision("global", true)
}
