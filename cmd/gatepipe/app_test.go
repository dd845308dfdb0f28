package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/observability"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Routes = []config.RouteConfig{
		{
			ID:        "orders-route",
			Path:      "/api/orders",
			Upstreams: []string{"orders-a"},
		},
	}
	cfg.Upstreams = []config.UpstreamConfig{
		{ID: "orders-a", URL: "http://127.0.0.1:19091"},
	}
	return cfg
}

func newTestApplication(t *testing.T, cfg *config.Config) *application {
	t.Helper()

	app, err := newApplication(cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.server.Pipeline().Close() })
	return app
}

func TestNewMetricsBundle(t *testing.T) {
	t.Parallel()

	bundle := newMetricsBundle()

	require.NotNil(t, bundle.registry)
	assert.NotNil(t, bundle.gateway)
	assert.NotNil(t, bundle.routing)
	assert.NotNil(t, bundle.breakers)
	assert.NotNil(t, bundle.proxy)
	assert.NotNil(t, bundle.ratelimit)
	assert.NotNil(t, bundle.auth)
	assert.NotNil(t, bundle.cache)
	assert.NotNil(t, bundle.security)
	assert.NotNil(t, bundle.analytics)

	families, err := bundle.registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for i := 0; i < len(families); i++ {
		names[families[i].GetName()] = true
	}
	assert.True(t, names["go_goroutines"], "runtime collectors should be registered")
}

func TestInitTracer(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		tracer, err := initTracer(cfg)
		require.NoError(t, err)
		require.NotNil(t, tracer)
		assert.NoError(t, tracer.Shutdown(context.Background()))
	})

	t.Run("enabled without endpoint", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Observability.Tracing.Enabled = true
		cfg.Observability.Tracing.ServiceName = "gatepipe-test"

		tracer, err := initTracer(cfg)
		require.NoError(t, err)
		require.NotNil(t, tracer)
		assert.NoError(t, tracer.Shutdown(context.Background()))
	})
}

func TestBuildPipeline(t *testing.T) {
	t.Parallel()

	t.Run("minimal config", func(t *testing.T) {
		t.Parallel()

		app := &application{
			metrics: newMetricsBundle(),
			tracer:  observability.NopTracer(),
			logger:  observability.NopLogger(),
		}

		pipeline, err := app.buildPipeline(testConfig())
		require.NoError(t, err)
		require.NotNil(t, pipeline)
		assert.NoError(t, pipeline.Close())
	})

	t.Run("all subsystems enabled", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.Rules = []config.RateLimitRule{
			{Scope: "per_client", Requests: 100, Window: config.Duration(time.Minute)},
		}
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = &config.APIKeyConfig{
			Keys: []config.APIKeyEntry{{Key: "k-1", Subject: "svc"}},
		}
		cfg.Cache.Enabled = true
		cfg.Analytics.Enabled = true

		app := &application{
			metrics: newMetricsBundle(),
			tracer:  observability.NopTracer(),
			logger:  observability.NopLogger(),
		}

		pipeline, err := app.buildPipeline(cfg)
		require.NoError(t, err)
		require.NotNil(t, pipeline)
		assert.NoError(t, pipeline.Close())
	})

	t.Run("invalid upstream url", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.Upstreams[0].URL = "not-a-url"

		app := &application{
			metrics: newMetricsBundle(),
			tracer:  observability.NopTracer(),
			logger:  observability.NopLogger(),
		}

		_, err := app.buildPipeline(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "routing engine")
	})

	t.Run("invalid rate limit scope", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.Rules = []config.RateLimitRule{
			{Scope: "per_galaxy", Requests: 1, Window: config.Duration(time.Minute)},
		}

		app := &application{
			metrics: newMetricsBundle(),
			tracer:  observability.NopTracer(),
			logger:  observability.NopLogger(),
		}

		_, err := app.buildPipeline(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limit")
	})
}

func TestRedisStoreConfig(t *testing.T) {
	t.Parallel()

	t.Run("nil uses defaults", func(t *testing.T) {
		t.Parallel()

		out := redisStoreConfig(nil, observability.NopLogger())
		assert.Equal(t, "localhost:6379", out.Address)
		assert.Equal(t, "ratelimit:", out.Prefix)
		assert.NotNil(t, out.Logger)
	})

	t.Run("maps configured values", func(t *testing.T) {
		t.Parallel()

		out := redisStoreConfig(&config.RedisConfig{
			Address:     "redis.internal:6380",
			Password:    "hunter2",
			DB:          3,
			KeyPrefix:   "gp:",
			PoolSize:    25,
			DialTimeout: config.Duration(2 * time.Second),
		}, observability.NopLogger())

		assert.Equal(t, "redis.internal:6380", out.Address)
		assert.Equal(t, "hunter2", out.Password)
		assert.Equal(t, 3, out.DB)
		assert.Equal(t, "gp:", out.Prefix)
		assert.Equal(t, 25, out.PoolSize)
		assert.Equal(t, 2*time.Second, out.DialTimeout)
		assert.Equal(t, 3*time.Second, out.ReadTimeout)
	})
}

func TestNewApplication(t *testing.T) {
	t.Parallel()

	app := newTestApplication(t, testConfig())

	require.NotNil(t, app.server)
	require.NotNil(t, app.server.Pipeline())
	assert.NotNil(t, app.tracer)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	app.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdownTimeout(t *testing.T) {
	t.Parallel()

	t.Run("configured value", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.Server.ShutdownTimeout = config.Duration(5 * time.Second)
		app := &application{config: cfg}
		assert.Equal(t, 5*time.Second, app.shutdownTimeout())
	})

	t.Run("zero falls back to default", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.Server.ShutdownTimeout = 0
		app := &application{config: cfg}
		assert.Equal(t, config.DefaultShutdownTimeout, app.shutdownTimeout())
	})
}
