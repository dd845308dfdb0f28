package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
)

func testUpstreamMap(t *testing.T, ids ...string) map[string]*Upstream {
	t.Helper()

	upstreams := make(map[string]*Upstream, len(ids))
	for _, id := range ids {
		upstreams[id] = newTestUpstream(t, id)
	}
	return upstreams
}

func testRouteConfig(id string) config.RouteConfig {
	return config.RouteConfig{
		ID:        id,
		Path:      "/api/orders",
		Upstreams: []string{"orders"},
	}
}

func routeRequest(method, path string) *core.Request {
	return &core.Request{
		Method:  method,
		Path:    path,
		Headers: make(map[string][]string),
	}
}

func TestCompileRouteValidation(t *testing.T) {
	t.Parallel()

	upstreams := testUpstreamMap(t, "orders")

	tests := []struct {
		name    string
		mutate  func(*config.RouteConfig)
		wantErr string
	}{
		{
			name:    "missing id",
			mutate:  func(cfg *config.RouteConfig) { cfg.ID = "" },
			wantErr: "route id is required",
		},
		{
			name:    "missing path",
			mutate:  func(cfg *config.RouteConfig) { cfg.Path = "" },
			wantErr: "path is required",
		},
		{
			name:    "no upstreams",
			mutate:  func(cfg *config.RouteConfig) { cfg.Upstreams = nil },
			wantErr: "at least one upstream",
		},
		{
			name:    "unknown upstream",
			mutate:  func(cfg *config.RouteConfig) { cfg.Upstreams = []string{"billing"} },
			wantErr: `unknown upstream "billing"`,
		},
		{
			name:    "duplicate upstream",
			mutate:  func(cfg *config.RouteConfig) { cfg.Upstreams = []string{"orders", "orders"} },
			wantErr: "listed twice",
		},
		{
			name:    "invalid path regex",
			mutate:  func(cfg *config.RouteConfig) { cfg.MatchKind = MatchRegex; cfg.Path = "[broken" },
			wantErr: "compile path regex",
		},
		{
			name:    "invalid header regex",
			mutate:  func(cfg *config.RouteConfig) { cfg.Headers = map[string]string{"X-Version": "regex:[broken"} },
			wantErr: "compile header constraint",
		},
		{
			name:    "unknown balancer",
			mutate:  func(cfg *config.RouteConfig) { cfg.LoadBalancing = "sticky_cookie" },
			wantErr: "unknown load balancing algorithm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testRouteConfig("orders-route")
			tt.mutate(&cfg)
			_, err := compileRoute(cfg, upstreams)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileRouteDefaults(t *testing.T) {
	t.Parallel()

	route, err := compileRoute(testRouteConfig("orders-route"), testUpstreamMap(t, "orders"))
	require.NoError(t, err)

	assert.Equal(t, "orders-route", route.ID)
	assert.Equal(t, MatchExact, route.MatchKind())
	assert.Equal(t, BalanceRoundRobin, route.Balancer())
	assert.Equal(t, 0, route.Priority())
	require.Len(t, route.Upstreams(), 1)
	assert.Equal(t, "orders", route.Upstreams()[0].ID)
}

func TestRouteMatchesMethods(t *testing.T) {
	t.Parallel()

	upstreams := testUpstreamMap(t, "orders")

	cfg := testRouteConfig("orders-route")
	cfg.Methods = []string{"get", "POST"}
	route, err := compileRoute(cfg, upstreams)
	require.NoError(t, err)

	assert.True(t, route.Matches(routeRequest("GET", "/api/orders")))
	assert.True(t, route.Matches(routeRequest("POST", "/api/orders")))
	assert.False(t, route.Matches(routeRequest("DELETE", "/api/orders")))
}

func TestRouteMatchesAllMethodsWhenEmpty(t *testing.T) {
	t.Parallel()

	route, err := compileRoute(testRouteConfig("orders-route"), testUpstreamMap(t, "orders"))
	require.NoError(t, err)

	for _, method := range []string{"GET", "POST", "PUT", "DELETE", "PATCH"} {
		assert.True(t, route.Matches(routeRequest(method, "/api/orders")), method)
	}
}

func TestRouteMatchesAllMethodsWithStar(t *testing.T) {
	t.Parallel()

	cfg := testRouteConfig("orders-route")
	cfg.Methods = []string{"*"}
	route, err := compileRoute(cfg, testUpstreamMap(t, "orders"))
	require.NoError(t, err)

	assert.True(t, route.Matches(routeRequest("DELETE", "/api/orders")))
}

func TestRouteMatchesHeaders(t *testing.T) {
	t.Parallel()

	cfg := testRouteConfig("orders-route")
	cfg.Headers = map[string]string{
		"X-Api-Version": "2024-01",
		"Accept":        "regex:json",
	}
	route, err := compileRoute(cfg, testUpstreamMap(t, "orders"))
	require.NoError(t, err)

	req := routeRequest("GET", "/api/orders")
	assert.False(t, route.Matches(req), "headers absent")

	req.SetHeader("X-Api-Version", "2024-01")
	req.SetHeader("Accept", "application/json")
	assert.True(t, route.Matches(req))

	req.SetHeader("X-Api-Version", "2023-06")
	assert.False(t, route.Matches(req), "exact constraint violated")

	req.SetHeader("X-Api-Version", "2024-01")
	req.SetHeader("Accept", "text/html")
	assert.False(t, route.Matches(req), "regex constraint violated")
}

func TestRouteMatchesTenant(t *testing.T) {
	t.Parallel()

	cfg := testRouteConfig("acme-route")
	cfg.TenantID = "acme"
	route, err := compileRoute(cfg, testUpstreamMap(t, "orders"))
	require.NoError(t, err)

	req := routeRequest("GET", "/api/orders")
	assert.False(t, route.Matches(req), "no tenant on request")

	req.TenantID = "acme"
	assert.True(t, route.Matches(req))

	req.TenantID = "globex"
	assert.False(t, route.Matches(req))
}

func TestSharedRouteMatchesAnyTenant(t *testing.T) {
	t.Parallel()

	route, err := compileRoute(testRouteConfig("shared"), testUpstreamMap(t, "orders"))
	require.NoError(t, err)

	req := routeRequest("GET", "/api/orders")
	assert.True(t, route.Matches(req))

	req.TenantID = "acme"
	assert.True(t, route.Matches(req))
}

func TestDisabledRouteNeverMatches(t *testing.T) {
	t.Parallel()

	disabled := false
	cfg := testRouteConfig("orders-route")
	cfg.Enabled = &disabled
	route, err := compileRoute(cfg, testUpstreamMap(t, "orders"))
	require.NoError(t, err)

	assert.False(t, route.Matches(routeRequest("GET", "/api/orders")))
}

func TestRouteMatchesWildcardPath(t *testing.T) {
	t.Parallel()

	cfg := testRouteConfig("orders-route")
	cfg.Path = "/api/orders/**"
	route, err := compileRoute(cfg, testUpstreamMap(t, "orders"))
	require.NoError(t, err)

	assert.Equal(t, MatchWildcard, route.MatchKind())
	assert.True(t, route.Matches(routeRequest("GET", "/api/orders/42/items")))
	assert.False(t, route.Matches(routeRequest("GET", "/api/billing")))
}

func TestRouteUpstreamsReturnsCopy(t *testing.T) {
	t.Parallel()

	route, err := compileRoute(testRouteConfig("orders-route"), testUpstreamMap(t, "orders"))
	require.NoError(t, err)

	list := route.Upstreams()
	list[0] = nil
	require.Len(t, route.Upstreams(), 1)
	assert.NotNil(t, route.Upstreams()[0])
}
