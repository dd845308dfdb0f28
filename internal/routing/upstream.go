package routing

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calmisko/gatepipe/internal/circuitbreaker"
	"github.com/calmisko/gatepipe/internal/config"
)

// Health represents the health flag of an upstream.
type Health int32

const (
	// HealthUnknown means no call has completed yet.
	HealthUnknown Health = iota
	// HealthHealthy means calls are completing normally.
	HealthHealthy
	// HealthDegraded means the upstream is being probed after failures.
	HealthDegraded
	// HealthUnhealthy means the circuit breaker has isolated the
	// upstream.
	HealthUnhealthy
)

// String returns the string representation of the health flag.
func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Upstream is the runtime state of one upstream service instance.
type Upstream struct {
	// ID uniquely identifies the upstream.
	ID string

	// URL is the parsed base URL requests are forwarded to.
	URL *url.URL

	// Weight biases weighted selection. Always at least 1.
	Weight int

	breaker *circuitbreaker.CircuitBreaker

	health        atomic.Int32
	activeConns   atomic.Int64
	totalRequests atomic.Int64
	totalFailures atomic.Int64
	lastUsed      atomic.Int64

	mu         sync.Mutex
	avgLatency float64
	samples    int64
}

func newUpstream(cfg config.UpstreamConfig, breaker *circuitbreaker.CircuitBreaker) (*Upstream, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("upstream id is required")
	}

	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: invalid url %q: %w", cfg.ID, cfg.URL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("upstream %s: url %q must be absolute", cfg.ID, cfg.URL)
	}

	weight := cfg.Weight
	if weight <= 0 {
		weight = 1
	}

	return &Upstream{
		ID:      cfg.ID,
		URL:     parsed,
		Weight:  weight,
		breaker: breaker,
	}, nil
}

// Health returns the current health flag.
func (u *Upstream) Health() Health {
	return Health(u.health.Load())
}

// SetHealth sets the health flag.
func (u *Upstream) SetHealth(health Health) {
	u.health.Store(int32(health))
}

// Breaker returns the circuit breaker guarding this upstream, or nil
// when breaking is disabled.
func (u *Upstream) Breaker() *circuitbreaker.CircuitBreaker {
	return u.breaker
}

// ActiveConns returns the number of in-flight calls.
func (u *Upstream) ActiveConns() int64 {
	return u.activeConns.Load()
}

// BeginRequest marks a call as in flight.
func (u *Upstream) BeginRequest() {
	u.activeConns.Add(1)
	u.totalRequests.Add(1)
	u.lastUsed.Store(time.Now().UnixNano())
}

// EndRequest marks a call as completed.
func (u *Upstream) EndRequest() {
	u.activeConns.Add(-1)
}

// recordResult folds one completed call into the failure counter and
// the rolling latency average.
func (u *Upstream) recordResult(success bool, latency time.Duration) {
	if !success {
		u.totalFailures.Add(1)
	}

	u.mu.Lock()
	u.samples++
	n := float64(u.samples)
	u.avgLatency = (u.avgLatency*(n-1) + float64(latency)) / n
	u.mu.Unlock()
}

// AvgLatency returns the rolling average latency over all completed
// calls. Zero before the first sample.
func (u *Upstream) AvgLatency() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return time.Duration(u.avgLatency)
}

// Samples returns the number of completed calls folded into the
// average.
func (u *Upstream) Samples() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.samples
}

// LastUsed returns the time of the most recent call start.
func (u *Upstream) LastUsed() time.Time {
	return time.Unix(0, u.lastUsed.Load())
}

// UpstreamStats is a point-in-time snapshot of upstream state.
type UpstreamStats struct {
	ID            string
	URL           string
	Health        string
	ActiveConns   int64
	TotalRequests int64
	TotalFailures int64
	AvgLatency    time.Duration
	Samples       int64
	Breaker       *circuitbreaker.Stats
}

// Stats returns a snapshot of the upstream's counters.
func (u *Upstream) Stats() UpstreamStats {
	stats := UpstreamStats{
		ID:            u.ID,
		URL:           u.URL.String(),
		Health:        u.Health().String(),
		ActiveConns:   u.activeConns.Load(),
		TotalRequests: u.totalRequests.Load(),
		TotalFailures: u.totalFailures.Load(),
		AvgLatency:    u.AvgLatency(),
		Samples:       u.Samples(),
	}
	if u.breaker != nil {
		breakerStats := u.breaker.Stats()
		stats.Breaker = &breakerStats
	}
	return stats
}
