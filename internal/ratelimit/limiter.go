// Package ratelimit provides admission control for the gateway. It
// supports token bucket and sliding window algorithms with per-scope
// budgets, allow/deny lists, and optional distributed state through the
// store package.
package ratelimit

import (
	"context"
	"time"
)

// Limiter is the closed interface implemented by the two rate limiting
// algorithms. The algorithm is selected once at construction; callers
// never inspect the concrete type.
type Limiter interface {
	// Allow checks whether one request is admitted for the given key.
	// Denial is reported in the Result, not as an error; errors are
	// store failures only.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset clears state for the given key and any key it prefixes.
	Reset(ctx context.Context, key string) error

	// ResetAll clears all limiter state.
	ResetAll(ctx context.Context) error

	// Close stops background maintenance.
	Close() error
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is admitted.
	Allowed bool

	// Limit is the budget of the rule that produced this result.
	Limit int

	// Remaining is the budget left in the current window.
	Remaining int

	// ResetAfter is the duration until the budget is fully restored.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying. Zero when
	// allowed.
	RetryAfter time.Duration
}

// Algorithm selects the rate limiting algorithm.
type Algorithm string

const (
	// AlgorithmTokenBucket refills a per-key bucket at a fixed rate.
	AlgorithmTokenBucket Algorithm = "token_bucket"

	// AlgorithmSlidingWindow counts per-key timestamps in a rolling
	// window.
	AlgorithmSlidingWindow Algorithm = "sliding_window"
)

// Rule is one per-scope budget.
type Rule struct {
	// Scope selects the key composition.
	Scope Scope

	// Requests is the budget per Window. For the token bucket it sets
	// the refill rate and the default capacity.
	Requests int

	// Window is the measurement window.
	Window time.Duration

	// Burst overrides the token bucket capacity.
	Burst int
}

// Config holds configuration for the rate limit manager.
type Config struct {
	// Algorithm selects the limiter implementation for every rule.
	Algorithm Algorithm

	// Rules lists per-scope budgets.
	Rules []Rule

	// AllowList identifiers bypass every rule.
	AllowList []string

	// DenyList identifiers are rejected regardless of budget.
	DenyList []string

	// ClientIDHeader is the request header carrying the client
	// identifier. Falls back to the client IP when absent.
	ClientIDHeader string

	// CleanupInterval is how often stale per-key state is reclaimed.
	CleanupInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Algorithm:       AlgorithmTokenBucket,
		ClientIDHeader:  "X-Client-ID",
		CleanupInterval: time.Minute,
	}
}
