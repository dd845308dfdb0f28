package circuitbreaker

import (
	"sync"

	"github.com/calmisko/gatepipe/internal/observability"
)

// Registry manages one circuit breaker per upstream.
type Registry struct {
	breakers sync.Map // upstream id → *CircuitBreaker
	config   *Config
	logger   observability.Logger
	metrics  *Metrics
}

// NewRegistry creates a registry. config is the default for breakers
// created without an explicit config; logger and metrics may be nil.
func NewRegistry(config *Config, logger observability.Logger, metrics *Metrics) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Registry{
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Get returns the breaker for the given upstream, or nil when none
// exists.
func (r *Registry) Get(name string) *CircuitBreaker {
	value, ok := r.breakers.Load(name)
	if !ok {
		return nil
	}
	return value.(*CircuitBreaker)
}

// GetOrCreate returns the breaker for the given upstream, creating it
// with the registry default config when absent.
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	return r.GetOrCreateWithConfig(name, r.config)
}

// GetOrCreateWithConfig returns the breaker for the given upstream,
// creating it with the given config when absent. An existing breaker
// keeps its original config.
func (r *Registry) GetOrCreateWithConfig(name string, config *Config) *CircuitBreaker {
	if value, ok := r.breakers.Load(name); ok {
		return value.(*CircuitBreaker)
	}

	cb := NewCircuitBreaker(name, config, r.logger, r.metrics)

	actual, loaded := r.breakers.LoadOrStore(name, cb)
	if loaded {
		return actual.(*CircuitBreaker)
	}

	r.logger.Debug("created circuit breaker",
		observability.String("upstream", name),
	)
	return cb
}

// Remove drops the breaker for the given upstream.
func (r *Registry) Remove(name string) {
	r.breakers.Delete(name)
}

// ResetAll forces every breaker closed.
func (r *Registry) ResetAll() {
	r.breakers.Range(func(_, value interface{}) bool {
		value.(*CircuitBreaker).Reset()
		return true
	})
}

// Stats returns a snapshot of every breaker keyed by upstream id.
func (r *Registry) Stats() map[string]Stats {
	stats := make(map[string]Stats)
	r.breakers.Range(func(key, value interface{}) bool {
		stats[key.(string)] = value.(*CircuitBreaker).Stats()
		return true
	})
	return stats
}

// Count returns the number of registered breakers.
func (r *Registry) Count() int {
	count := 0
	r.breakers.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
