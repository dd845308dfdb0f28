package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetOrCreateReturnsSameInstance(t *testing.T) {
	r := NewRegistry(nil, nil, nil)

	first := r.GetOrCreate("orders-v1")
	second := r.GetOrCreate("orders-v1")

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	assert.Nil(t, r.Get("missing"))
}

func TestRegistryPerUpstreamConfig(t *testing.T) {
	r := NewRegistry(&Config{FailureThreshold: 5}, nil, nil)

	strict := r.GetOrCreateWithConfig("payments-v1", &Config{FailureThreshold: 1, OpenTimeout: time.Minute})
	relaxed := r.GetOrCreate("orders-v1")

	strict.RecordFailure()
	relaxed.RecordFailure()

	assert.Equal(t, StateOpen, strict.State())
	assert.Equal(t, StateClosed, relaxed.State())
}

func TestRegistryExistingBreakerKeepsConfig(t *testing.T) {
	r := NewRegistry(nil, nil, nil)

	first := r.GetOrCreateWithConfig("orders-v1", &Config{FailureThreshold: 1, OpenTimeout: time.Minute})
	second := r.GetOrCreateWithConfig("orders-v1", &Config{FailureThreshold: 100})

	require.Same(t, first, second)

	second.RecordFailure()
	assert.Equal(t, StateOpen, second.State())
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(nil, nil, nil)

	r.GetOrCreate("orders-v1")
	require.Equal(t, 1, r.Count())

	r.Remove("orders-v1")
	assert.Equal(t, 0, r.Count())
	assert.Nil(t, r.Get("orders-v1"))
}

func TestRegistryResetAll(t *testing.T) {
	r := NewRegistry(&Config{FailureThreshold: 1, OpenTimeout: time.Minute}, nil, nil)

	a := r.GetOrCreate("orders-v1")
	b := r.GetOrCreate("payments-v1")
	a.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateOpen, a.State())
	require.Equal(t, StateOpen, b.State())

	r.ResetAll()

	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry(&Config{FailureThreshold: 1, OpenTimeout: time.Minute}, nil, nil)

	r.GetOrCreate("orders-v1").RecordFailure()
	r.GetOrCreate("payments-v1").RecordSuccess()

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, StateOpen, stats["orders-v1"].State)
	assert.Equal(t, StateClosed, stats["payments-v1"].State)
	assert.Equal(t, 1, stats["payments-v1"].TotalSuccesses)
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry(nil, nil, nil)

	var wg sync.WaitGroup
	breakers := make([]*CircuitBreaker, 20)
	for i := range breakers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = r.GetOrCreate("orders-v1")
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, r.Count())
	for _, cb := range breakers {
		assert.Same(t, breakers[0], cb)
	}
}
