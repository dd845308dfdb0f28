package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calmisko/gatepipe/internal/analytics"
	"github.com/calmisko/gatepipe/internal/cache"
	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/ratelimit"
	"github.com/calmisko/gatepipe/internal/routing"
)

// statusCounters tracks processed requests by terminal status for the
// admin snapshot. Increments are lock-free.
type statusCounters struct {
	total    atomic.Uint64
	byStatus sync.Map // core.GatewayStatus -> *atomic.Uint64
}

func newStatusCounters() *statusCounters {
	return &statusCounters{}
}

func (c *statusCounters) record(status core.GatewayStatus) {
	c.total.Add(1)
	counter, _ := c.byStatus.LoadOrStore(status, &atomic.Uint64{})
	counter.(*atomic.Uint64).Add(1)
}

func (c *statusCounters) snapshot() (uint64, map[string]uint64) {
	byStatus := make(map[string]uint64)
	c.byStatus.Range(func(key, value any) bool {
		byStatus[string(key.(core.GatewayStatus))] = value.(*atomic.Uint64).Load()
		return true
	})
	return c.total.Load(), byStatus
}

// Snapshot is the admin view of pipeline counters and component state.
type Snapshot struct {
	// Uptime is how long the pipeline has been serving.
	Uptime string `json:"uptime"`

	// Requests is the total number of processed requests.
	Requests uint64 `json:"requests"`

	// ByStatus breaks Requests down by terminal gateway status.
	ByStatus map[string]uint64 `json:"byStatus"`

	// Cache holds the response cache counters. Zero when caching is
	// off.
	Cache cache.Stats `json:"cache"`

	// Upstreams lists per-upstream traffic stats including breaker
	// state, sorted by ID.
	Upstreams []routing.UpstreamStats `json:"upstreams"`

	// Analytics holds the emitter's buffer and drop counters. Zero
	// when analytics is off.
	Analytics analytics.Stats `json:"analytics"`
}

// UpstreamHealth is one upstream's entry in the health report.
type UpstreamHealth struct {
	// ID identifies the upstream.
	ID string `json:"id"`

	// Health is the upstream's health state.
	Health string `json:"health"`

	// Breaker is the breaker state, empty when the upstream has none.
	Breaker string `json:"breaker,omitempty"`
}

// HealthReport is the liveness view of the pipeline.
type HealthReport struct {
	// Status is "healthy" when every upstream is, "degraded" otherwise.
	Status string `json:"status"`

	// Uptime is how long the pipeline has been serving.
	Uptime string `json:"uptime"`

	// Timestamp is when the report was taken.
	Timestamp time.Time `json:"timestamp"`

	// Upstreams lists per-upstream health, sorted by ID.
	Upstreams []UpstreamHealth `json:"upstreams,omitempty"`
}

// AddRoute compiles and inserts a route at runtime. Safe to call
// concurrently with request processing.
func (p *Pipeline) AddRoute(cfg config.RouteConfig) error {
	return p.engine.AddRoute(cfg)
}

// RemoveRoute deletes a route at runtime.
func (p *Pipeline) RemoveRoute(id string) error {
	return p.engine.RemoveRoute(id)
}

// ListRoutes returns the configurations of all routes in match order.
// A non-empty tenant restricts the list to that tenant's routes plus
// the shared ones.
func (p *Pipeline) ListRoutes(tenant string) []config.RouteConfig {
	routes := p.engine.Routes()
	configs := make([]config.RouteConfig, 0, len(routes))
	for _, route := range routes {
		if tenant != "" && route.Config.TenantID != "" && route.Config.TenantID != tenant {
			continue
		}
		configs = append(configs, route.Config)
	}
	return configs
}

// ResetRateLimits clears limiter state: everything when id is empty,
// otherwise every rule keyed by id. No-op without a rate limiter.
func (p *Pipeline) ResetRateLimits(ctx context.Context, id string) error {
	if p.limiter == nil {
		return nil
	}
	if id == "" {
		return p.limiter.ResetAll(ctx)
	}
	return p.limiter.Reset(ctx, id)
}

// RateLimitRules returns the active rate limit rules. Empty without a
// rate limiter.
func (p *Pipeline) RateLimitRules() []ratelimit.Rule {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Rules()
}

// Metrics returns a snapshot of the pipeline's counters and component
// state. Safe to call concurrently with request processing.
func (p *Pipeline) Metrics() Snapshot {
	total, byStatus := p.counters.snapshot()

	snapshot := Snapshot{
		Uptime:    p.Uptime().Round(time.Second).String(),
		Requests:  total,
		ByStatus:  byStatus,
		Upstreams: p.engine.UpstreamStats(),
	}
	if p.cache != nil {
		snapshot.Cache = p.cache.Stats()
	}
	if p.analytics != nil {
		snapshot.Analytics = p.analytics.Stats()
	}
	return snapshot
}

// Health reports pipeline liveness and per-upstream health.
func (p *Pipeline) Health() HealthReport {
	stats := p.engine.UpstreamStats()

	report := HealthReport{
		Status:    "healthy",
		Uptime:    p.Uptime().Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Upstreams: make([]UpstreamHealth, 0, len(stats)),
	}
	for _, s := range stats {
		entry := UpstreamHealth{ID: s.ID, Health: s.Health}
		if s.Breaker != nil {
			entry.Breaker = s.Breaker.State.String()
		}
		if s.Health != routing.HealthHealthy.String() {
			report.Status = "degraded"
		}
		report.Upstreams = append(report.Upstreams, entry)
	}
	return report
}

// Uptime is how long the pipeline has been serving.
func (p *Pipeline) Uptime() time.Duration {
	return time.Since(p.startedAt)
}
