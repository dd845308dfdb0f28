package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/calmisko/gatepipe/internal/analytics"
	"github.com/calmisko/gatepipe/internal/auth"
	"github.com/calmisko/gatepipe/internal/cache"
	"github.com/calmisko/gatepipe/internal/circuitbreaker"
	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/gateway"
	"github.com/calmisko/gatepipe/internal/observability"
	"github.com/calmisko/gatepipe/internal/proxy"
	"github.com/calmisko/gatepipe/internal/ratelimit"
	"github.com/calmisko/gatepipe/internal/ratelimit/store"
	"github.com/calmisko/gatepipe/internal/routing"
	"github.com/calmisko/gatepipe/internal/security"
	"github.com/calmisko/gatepipe/internal/server"
)

// metricsBundle holds one collector set per subsystem. Pipelines come
// and go across config reloads; the collectors live for the process so
// the metrics endpoint stays continuous.
type metricsBundle struct {
	registry  *prometheus.Registry
	gateway   *gateway.Metrics
	routing   *routing.Metrics
	breakers  *circuitbreaker.Metrics
	proxy     *proxy.Metrics
	ratelimit *ratelimit.Metrics
	auth      *auth.Metrics
	cache     *cache.Metrics
	security  *security.Metrics
	analytics *analytics.Metrics
}

func newMetricsBundle() *metricsBundle {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &metricsBundle{
		registry:  registry,
		gateway:   gateway.NewMetricsWithRegisterer(registry),
		routing:   routing.NewMetricsWithRegisterer(registry),
		breakers:  circuitbreaker.NewMetricsWithRegisterer(registry),
		proxy:     proxy.NewMetricsWithRegisterer(registry),
		ratelimit: ratelimit.NewMetricsWithRegisterer(registry),
		auth:      auth.NewMetricsWithRegisterer(registry),
		cache:     cache.NewMetricsWithRegisterer(registry),
		security:  security.NewMetricsWithRegisterer(registry),
		analytics: analytics.NewMetricsWithRegisterer(registry),
	}
}

// application holds the long-lived components. The pipeline is not
// among them: config reloads replace it wholesale through the server.
type application struct {
	server  *server.Server
	metrics *metricsBundle
	tracer  *observability.Tracer
	logger  observability.Logger

	mu     sync.Mutex
	config *config.Config
}

// newApplication assembles the gateway from the configuration.
func newApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	tracer, err := initTracer(cfg)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	app := &application{
		metrics: newMetricsBundle(),
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
	}

	pipeline, err := app.buildPipeline(cfg)
	if err != nil {
		return nil, err
	}

	srv, err := server.NewServer(cfg, pipeline,
		server.WithLogger(logger),
		server.WithGatherer(app.metrics.registry),
	)
	if err != nil {
		_ = pipeline.Close()
		return nil, err
	}

	app.server = srv
	return app, nil
}

// initTracer builds the tracer from the observability section.
func initTracer(cfg *config.Config) (*observability.Tracer, error) {
	tracerCfg := observability.TracerConfig{
		ServiceName:  "gatepipe",
		Enabled:      cfg.Observability.Tracing.Enabled,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
		OTLPEndpoint: cfg.Observability.Tracing.Endpoint,
	}
	if cfg.Observability.Tracing.ServiceName != "" {
		tracerCfg.ServiceName = cfg.Observability.Tracing.ServiceName
	}
	return observability.NewTracer(tracerCfg)
}

// buildPipeline assembles a complete pipeline from the configuration.
// Collaborators are constructed per generation and die with it; only
// the metrics collectors and the tracer are shared across generations.
func (a *application) buildPipeline(cfg *config.Config) (*gateway.Pipeline, error) {
	engine, err := routing.NewEngine(cfg.Routes, cfg.Upstreams,
		circuitbreaker.NewRegistry(nil, a.logger, a.metrics.breakers),
		a.logger,
		a.metrics.routing,
	)
	if err != nil {
		return nil, fmt.Errorf("routing engine: %w", err)
	}

	forwarder := proxy.NewForwarder(
		proxy.WithLogger(a.logger),
		proxy.WithMetrics(a.metrics.proxy),
		proxy.WithDefaultTimeout(cfg.Pipeline.DefaultTimeout.Duration()),
	)

	securityManager, err := security.NewManager(&cfg.Security, a.logger, a.metrics.security)
	if err != nil {
		return nil, fmt.Errorf("security manager: %w", err)
	}

	opts := []gateway.Option{
		gateway.WithLogger(a.logger),
		gateway.WithMetrics(a.metrics.gateway),
		gateway.WithTracer(a.tracer),
		gateway.WithSecurity(securityManager),
	}

	if cfg.RateLimit.Enabled {
		limiter, err := a.buildRateLimiter(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gateway.WithRateLimiter(limiter))
	}

	if cfg.Auth.Enabled {
		authManager, err := auth.NewManager(&cfg.Auth, a.logger, a.metrics.auth)
		if err != nil {
			return nil, fmt.Errorf("auth manager: %w", err)
		}
		opts = append(opts, gateway.WithAuth(authManager))
	}

	if cfg.Cache.Enabled {
		cacheManager, err := cache.NewManager(&cfg.Cache, a.logger, a.metrics.cache)
		if err != nil {
			return nil, fmt.Errorf("cache manager: %w", err)
		}
		opts = append(opts, gateway.WithCache(cacheManager))
	}

	if cfg.Analytics.Enabled {
		sink, err := analytics.NewSink(cfg.Analytics.Sink, a.logger)
		if err != nil {
			return nil, fmt.Errorf("analytics sink: %w", err)
		}
		emitter := analytics.NewEmitter(&cfg.Analytics, sink, a.logger, a.metrics.analytics)
		opts = append(opts, gateway.WithAnalytics(emitter))
	}

	return gateway.NewPipeline(engine, forwarder, opts...)
}

// buildRateLimiter bridges the rate limit section onto the limiter
// manager, including the optional redis state store.
func (a *application) buildRateLimiter(cfg *config.Config) (*ratelimit.Manager, error) {
	rlCfg := &ratelimit.Config{
		Algorithm:       ratelimit.Algorithm(cfg.RateLimit.Algorithm),
		AllowList:       cfg.RateLimit.AllowList,
		DenyList:        cfg.RateLimit.DenyList,
		ClientIDHeader:  cfg.Pipeline.ClientIDHeader,
		CleanupInterval: cfg.RateLimit.CleanupInterval.Duration(),
	}
	for _, rule := range cfg.RateLimit.Rules {
		rlCfg.Rules = append(rlCfg.Rules, ratelimit.Rule{
			Scope:    ratelimit.Scope(rule.Scope),
			Requests: rule.Requests,
			Window:   rule.Window.Duration(),
			Burst:    rule.Burst,
		})
	}

	opts := []ratelimit.ManagerOption{
		ratelimit.WithManagerLogger(a.logger),
		ratelimit.WithManagerMetrics(a.metrics.ratelimit),
	}

	if cfg.RateLimit.Store.Type == "redis" {
		redisStore, err := store.NewRedisStore(redisStoreConfig(cfg.RateLimit.Store.Redis, a.logger))
		if err != nil {
			return nil, fmt.Errorf("redis rate limit store: %w", err)
		}
		opts = append(opts, ratelimit.WithStore(redisStore))
	}

	manager, err := ratelimit.NewManager(rlCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("rate limit manager: %w", err)
	}
	return manager, nil
}

// redisStoreConfig maps the shared redis section onto the store config.
func redisStoreConfig(cfg *config.RedisConfig, logger observability.Logger) *store.RedisConfig {
	out := store.DefaultRedisConfig()
	out.Logger = logger
	if cfg == nil {
		return out
	}

	if cfg.Address != "" {
		out.Address = cfg.Address
	}
	out.Password = cfg.Password
	out.DB = cfg.DB
	if cfg.KeyPrefix != "" {
		out.Prefix = cfg.KeyPrefix
	}
	if cfg.PoolSize > 0 {
		out.PoolSize = cfg.PoolSize
	}
	if d := cfg.DialTimeout.Duration(); d > 0 {
		out.DialTimeout = d
	}
	if d := cfg.ReadTimeout.Duration(); d > 0 {
		out.ReadTimeout = d
	}
	if d := cfg.WriteTimeout.Duration(); d > 0 {
		out.WriteTimeout = d
	}
	return out
}

// shutdownTimeout returns the configured graceful shutdown bound.
func (a *application) shutdownTimeout() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	if d := a.config.Server.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return config.DefaultShutdownTimeout
}
