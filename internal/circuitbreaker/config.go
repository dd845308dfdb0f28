// Package circuitbreaker isolates consistently failing upstreams. Each
// breaker tracks consecutive failures for one upstream and, once a
// threshold is crossed, rejects calls for a cooldown period before
// probing the upstream again.
package circuitbreaker

import (
	"time"
)

// Config holds the thresholds for a circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes that
	// force-closes an open circuit.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before a single
	// probe request is allowed through.
	OpenTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// withDefaults returns a copy of c with unset fields filled in.
func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return cfg
}
