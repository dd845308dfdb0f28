package gateway

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/proxy"
	"github.com/calmisko/gatepipe/internal/ratelimit"
	"github.com/calmisko/gatepipe/internal/routing"
)

func TestPipelineAddAndRemoveRoute(t *testing.T) {
	t.Parallel()

	server, _ := newUpstream(t, nil)
	routes, upstreams := ordersConfig(server.URL)
	pipeline := newTestPipeline(t, routes, upstreams)

	invoices := func() *core.Request {
		req := ordersRequest()
		req.Path = "/api/invoices"
		return req
	}

	resp := pipeline.Process(context.Background(), invoices())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	err := pipeline.AddRoute(config.RouteConfig{
		ID:        "invoices-route",
		Path:      "/api/invoices",
		Upstreams: []string{"orders-a"},
	})
	require.NoError(t, err)

	resp = pipeline.Process(context.Background(), invoices())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Route IDs are unique.
	err = pipeline.AddRoute(config.RouteConfig{
		ID:        "invoices-route",
		Path:      "/api/billing",
		Upstreams: []string{"orders-a"},
	})
	assert.Error(t, err)

	require.NoError(t, pipeline.RemoveRoute("invoices-route"))
	resp = pipeline.Process(context.Background(), invoices())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Error(t, pipeline.RemoveRoute("invoices-route"))
}

func TestPipelineListRoutes(t *testing.T) {
	t.Parallel()

	server, _ := newUpstream(t, nil)
	routes, upstreams := ordersConfig(server.URL)
	routes = append(routes,
		config.RouteConfig{
			ID:        "acme-reports",
			Path:      "/api/reports",
			TenantID:  "acme",
			Upstreams: []string{"orders-a"},
		},
		config.RouteConfig{
			ID:        "globex-reports",
			Path:      "/api/reports",
			TenantID:  "globex",
			Upstreams: []string{"orders-a"},
		},
	)
	pipeline := newTestPipeline(t, routes, upstreams)

	ids := func(configs []config.RouteConfig) []string {
		out := make([]string, 0, len(configs))
		for i := 0; i < len(configs); i++ {
			out = append(out, configs[i].ID)
		}
		return out
	}

	assert.ElementsMatch(t,
		[]string{"orders-route", "acme-reports", "globex-reports"},
		ids(pipeline.ListRoutes("")),
	)

	// Tenant-scoped listings keep shared routes and drop other
	// tenants' routes.
	assert.ElementsMatch(t,
		[]string{"orders-route", "acme-reports"},
		ids(pipeline.ListRoutes("acme")),
	)
}

func TestPipelineResetRateLimits(t *testing.T) {
	t.Parallel()

	server, _ := newUpstream(t, nil)
	routes, upstreams := ordersConfig(server.URL)
	pipeline := newTestPipeline(t, routes, upstreams,
		WithRateLimiter(newPerClientLimiter(t, 1)),
	)

	send := func() int {
		req := ordersRequest()
		req.SetHeader("X-Client-ID", "mobile-app")
		return pipeline.Process(context.Background(), req).StatusCode
	}

	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusTooManyRequests, send())

	require.NoError(t, pipeline.ResetRateLimits(context.Background(), "mobile-app"))
	assert.Equal(t, http.StatusOK, send())

	require.Equal(t, http.StatusTooManyRequests, send())
	require.NoError(t, pipeline.ResetRateLimits(context.Background(), ""))
	assert.Equal(t, http.StatusOK, send())
}

func TestPipelineRateLimitAdminWithoutLimiter(t *testing.T) {
	t.Parallel()

	server, _ := newUpstream(t, nil)
	routes, upstreams := ordersConfig(server.URL)
	pipeline := newTestPipeline(t, routes, upstreams)

	assert.NoError(t, pipeline.ResetRateLimits(context.Background(), "mobile-app"))
	assert.Empty(t, pipeline.RateLimitRules())
}

func TestPipelineRateLimitRules(t *testing.T) {
	t.Parallel()

	server, _ := newUpstream(t, nil)
	routes, upstreams := ordersConfig(server.URL)
	pipeline := newTestPipeline(t, routes, upstreams,
		WithRateLimiter(newPerClientLimiter(t, 100)),
	)

	rules := pipeline.RateLimitRules()
	require.Len(t, rules, 1)
	assert.Equal(t, ratelimit.ScopePerClient, rules[0].Scope)
	assert.Equal(t, 100, rules[0].Requests)
}

func TestPipelineMetricsSnapshot(t *testing.T) {
	t.Parallel()

	server, _ := newUpstream(t, nil)
	routes, upstreams := ordersConfig(server.URL)
	pipeline := newTestPipeline(t, routes, upstreams, WithCache(newMemoryCache(t)))

	for i := 0; i < 2; i++ {
		resp := pipeline.Process(context.Background(), ordersRequest())
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	req := ordersRequest()
	req.Path = "/api/unknown"
	pipeline.Process(context.Background(), req)

	snapshot := pipeline.Metrics()

	assert.NotEmpty(t, snapshot.Uptime)
	assert.Equal(t, uint64(3), snapshot.Requests)
	assert.Equal(t, uint64(2), snapshot.ByStatus[string(core.StatusSuccess)])
	assert.Equal(t, uint64(1), snapshot.ByStatus[string(core.StatusRoutingFailed)])

	// The second /api/orders request was served from cache, so only
	// one call reached the upstream.
	require.Len(t, snapshot.Upstreams, 1)
	assert.Equal(t, "orders-a", snapshot.Upstreams[0].ID)
	assert.Equal(t, int64(1), snapshot.Upstreams[0].TotalRequests)

	assert.Equal(t, int64(1), snapshot.Cache.Hits)
	assert.Equal(t, int64(2), snapshot.Cache.Misses)
	assert.Equal(t, int64(1), snapshot.Cache.Entries)

	assert.Greater(t, pipeline.Uptime(), time.Duration(0))
}

func TestPipelineHealthReport(t *testing.T) {
	t.Parallel()

	server, _ := newUpstream(t, nil)
	routes, upstreams := ordersConfig(server.URL)
	engine := newTestEngine(t, routes, upstreams)
	forwarder := proxy.NewForwarder(
		proxy.WithMetrics(proxy.NewMetricsWithRegisterer(prometheus.NewRegistry())),
	)
	pipeline, err := NewPipeline(engine, forwarder,
		WithMetrics(NewMetricsWithRegisterer(prometheus.NewRegistry())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pipeline.Close() })

	report := pipeline.Health()
	assert.Equal(t, "healthy", report.Status)
	assert.NotEmpty(t, report.Uptime)
	assert.False(t, report.Timestamp.IsZero())
	require.Len(t, report.Upstreams, 1)
	assert.Equal(t, "orders-a", report.Upstreams[0].ID)
	assert.Equal(t, "healthy", report.Upstreams[0].Health)

	upstream, ok := engine.Upstream("orders-a")
	require.True(t, ok)
	upstream.SetHealth(routing.HealthUnhealthy)

	report = pipeline.Health()
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "unhealthy", report.Upstreams[0].Health)
}

func TestStatusCountersConcurrent(t *testing.T) {
	t.Parallel()

	counters := newStatusCounters()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				counters.record(core.StatusSuccess)
			}
			for j := 0; j < 50; j++ {
				counters.record(core.StatusRateLimited)
			}
		}()
	}
	wg.Wait()

	total, byStatus := counters.snapshot()
	assert.Equal(t, uint64(600), total)
	assert.Equal(t, uint64(400), byStatus[string(core.StatusSuccess)])
	assert.Equal(t, uint64(200), byStatus[string(core.StatusRateLimited)])
}
