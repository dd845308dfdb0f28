package routing

import (
	"fmt"
	"sort"
	"time"

	"github.com/calmisko/gatepipe/internal/circuitbreaker"
	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/observability"
)

// Engine matches requests to routes and selects upstreams for them. It
// owns the route table and the upstream set; circuit breakers live in
// the shared registry so their state survives route reloads.
type Engine struct {
	table     *Table
	upstreams map[string]*Upstream
	breakers  *circuitbreaker.Registry
	logger    observability.Logger
	metrics   *Metrics
}

// NewEngine compiles the configured upstreams and routes into a ready
// engine. Route compilation fails on references to unknown upstreams.
func NewEngine(
	routes []config.RouteConfig,
	upstreams []config.UpstreamConfig,
	breakers *circuitbreaker.Registry,
	logger observability.Logger,
	metrics *Metrics,
) (*Engine, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if breakers == nil {
		breakers = circuitbreaker.NewRegistry(nil, logger, nil)
	}

	e := &Engine{
		table:     NewTable(),
		upstreams: make(map[string]*Upstream, len(upstreams)),
		breakers:  breakers,
		logger:    logger,
		metrics:   metrics,
	}

	for _, cfg := range upstreams {
		if _, exists := e.upstreams[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate upstream id %q", cfg.ID)
		}

		upstream, err := newUpstream(cfg, e.breakerFor(cfg))
		if err != nil {
			return nil, err
		}
		e.upstreams[cfg.ID] = upstream
	}

	for _, cfg := range routes {
		route, err := compileRoute(cfg, e.upstreams)
		if err != nil {
			return nil, err
		}
		if err := e.table.Add(route); err != nil {
			return nil, err
		}
	}

	e.logger.Info("routing engine ready",
		observability.Int("routes", e.table.Len()),
		observability.Int("upstreams", len(e.upstreams)),
	)

	return e, nil
}

// breakerFor resolves the breaker for an upstream. Upstreams without a
// circuitBreaker block get one with registry defaults; a block with
// enabled false opts the upstream out entirely.
func (e *Engine) breakerFor(cfg config.UpstreamConfig) *circuitbreaker.CircuitBreaker {
	if cfg.CircuitBreaker == nil {
		return e.breakers.GetOrCreate(cfg.ID)
	}
	if !cfg.CircuitBreaker.Enabled {
		return nil
	}
	return e.breakers.GetOrCreateWithConfig(cfg.ID, &circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		OpenTimeout:      cfg.CircuitBreaker.OpenTimeout.Duration(),
	})
}

// FindRoute returns the highest-priority enabled route matching the
// request, or nil when none matches.
func (e *Engine) FindRoute(req *core.Request) *Route {
	route := e.table.Match(req)
	if route == nil {
		e.metrics.RecordMiss()
		e.logger.Debug("no route matched",
			observability.String("method", req.Method),
			observability.String("path", req.Path),
		)
		return nil
	}

	e.metrics.RecordMatch(route.ID)
	return route
}

// SelectUpstream picks an upstream for the route using its balancer.
// Candidates are filtered by health and breaker eligibility before
// balancing; the breaker's admission slot is only claimed for the
// actual pick, so an upstream that loses the probe race is dropped and
// selection retries with the remaining candidates. Returns nil when no
// upstream can accept the request.
func (e *Engine) SelectUpstream(route *Route, req *core.Request) *Upstream {
	candidates := make([]*Upstream, 0, len(route.upstreams))
	for _, upstream := range route.upstreams {
		if e.eligible(upstream) {
			candidates = append(candidates, upstream)
		}
	}

	for len(candidates) > 0 {
		pick := route.balancer.Pick(candidates, req)
		if pick == nil {
			break
		}

		if cb := pick.Breaker(); cb != nil {
			if !cb.Allow() {
				candidates = removeUpstream(candidates, pick)
				continue
			}
			if cb.State() == circuitbreaker.StateHalfOpen {
				pick.SetHealth(HealthDegraded)
			}
		}

		e.metrics.RecordSelection(route.ID, pick.ID)
		return pick
	}

	e.metrics.RecordUnavailable(route.ID)
	e.logger.Warn("no eligible upstream",
		observability.String("route", route.ID),
		observability.Int("configured", len(route.upstreams)),
	)
	return nil
}

// eligible reports whether an upstream may receive traffic. The check
// never claims the breaker's probe slot. An upstream whose breaker
// opened is readmitted through the probe path once the breaker is
// ready; one flagged unhealthy while its breaker is closed (or absent)
// was taken out externally and stays excluded.
func (e *Engine) eligible(upstream *Upstream) bool {
	cb := upstream.Breaker()
	if cb != nil && !cb.Ready() {
		return false
	}

	if upstream.Health() == HealthUnhealthy {
		if cb == nil || cb.State() == circuitbreaker.StateClosed {
			return false
		}
	}

	return true
}

// RecordResult feeds a forwarding outcome back into the upstream's
// rolling latency, its breaker and its health. Call it exactly once per
// forwarded request.
func (e *Engine) RecordResult(upstream *Upstream, success bool, latency time.Duration) {
	upstream.recordResult(success, latency)

	if cb := upstream.Breaker(); cb != nil {
		if success {
			cb.RecordSuccess()
		} else {
			cb.RecordFailure()
		}

		switch cb.State() {
		case circuitbreaker.StateOpen:
			upstream.SetHealth(HealthUnhealthy)
		case circuitbreaker.StateHalfOpen:
			upstream.SetHealth(HealthDegraded)
		default:
			upstream.SetHealth(HealthHealthy)
		}
	} else if success {
		upstream.SetHealth(HealthHealthy)
	}

	if !success {
		e.logger.Debug("upstream request failed",
			observability.String("upstream", upstream.ID),
			observability.Duration("latency", latency),
		)
	}

	e.metrics.RecordOutcome(upstream.ID, success)
}

// AddRoute compiles and inserts a route at runtime.
func (e *Engine) AddRoute(cfg config.RouteConfig) error {
	route, err := compileRoute(cfg, e.upstreams)
	if err != nil {
		return err
	}
	if err := e.table.Add(route); err != nil {
		return err
	}

	e.logger.Info("route added",
		observability.String("route", route.ID),
		observability.String("path", cfg.Path),
		observability.String("match", route.MatchKind()),
	)
	return nil
}

// RemoveRoute deletes a route at runtime.
func (e *Engine) RemoveRoute(id string) error {
	if err := e.table.Remove(id); err != nil {
		return err
	}

	e.logger.Info("route removed",
		observability.String("route", id),
	)
	return nil
}

// Route returns a route by ID.
func (e *Engine) Route(id string) (*Route, bool) {
	return e.table.Get(id)
}

// Routes returns all routes in match order.
func (e *Engine) Routes() []*Route {
	return e.table.List()
}

// Upstream returns an upstream by ID.
func (e *Engine) Upstream(id string) (*Upstream, bool) {
	upstream, ok := e.upstreams[id]
	return upstream, ok
}

// UpstreamStats returns a stats snapshot for every upstream, sorted by
// ID.
func (e *Engine) UpstreamStats() []UpstreamStats {
	stats := make([]UpstreamStats, 0, len(e.upstreams))
	for _, upstream := range e.upstreams {
		stats = append(stats, upstream.Stats())
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].ID < stats[j].ID
	})
	return stats
}

// BreakerStats returns a snapshot of every circuit breaker keyed by
// upstream id.
func (e *Engine) BreakerStats() map[string]circuitbreaker.Stats {
	return e.breakers.Stats()
}

func removeUpstream(list []*Upstream, target *Upstream) []*Upstream {
	for i, upstream := range list {
		if upstream == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
