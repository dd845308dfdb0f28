package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/gateway"
	"github.com/calmisko/gatepipe/internal/observability"
)

// RequestIDHeader carries the request id on both requests and
// responses.
const RequestIDHeader = "X-Request-ID"

// ginModeOnce ensures gin.SetMode is only called once to avoid race
// conditions.
var ginModeOnce sync.Once

// Server is the HTTP front of the gateway. Every inbound request is
// translated into a request descriptor and handed to the pipeline; the
// terminal response is written back verbatim.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	pipeline   atomic.Pointer[gateway.Pipeline]
	logger     observability.Logger
	gatherer   prometheus.Gatherer

	host            string
	port            int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	maxHeaderBytes  int
	maxBodyBytes    int64
	tenantHeader    string
	adminEnabled    bool
	metricsEnabled  bool
	metricsPath     string
	shutdownTimeout time.Duration

	mu      sync.Mutex
	running bool
}

// Option is a functional option for the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer sets the prometheus gatherer behind the metrics
// endpoint. Defaults to the global gatherer.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// NewServer creates the HTTP front for the given pipeline. The
// configuration decides the listen address, body limits and which
// operational endpoints are exposed.
func NewServer(cfg *config.Config, pipeline *gateway.Pipeline, opts ...Option) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:          gin.New(),
		logger:          observability.NopLogger(),
		gatherer:        prometheus.DefaultGatherer,
		host:            cfg.Server.Host,
		port:            cfg.Server.Port,
		readTimeout:     cfg.Server.ReadTimeout.Duration(),
		writeTimeout:    cfg.Server.WriteTimeout.Duration(),
		idleTimeout:     cfg.Server.IdleTimeout.Duration(),
		maxHeaderBytes:  cfg.Server.MaxHeaderBytes,
		maxBodyBytes:    cfg.Server.MaxBodyBytes,
		tenantHeader:    cfg.Pipeline.TenantHeader,
		adminEnabled:    cfg.Server.AdminEnabled,
		metricsEnabled:  cfg.Observability.Metrics.Enabled,
		metricsPath:     cfg.Observability.Metrics.Path,
		shutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	}
	s.pipeline.Store(pipeline)

	if s.tenantHeader == "" {
		s.tenantHeader = config.DefaultTenantHeader
	}
	if s.metricsPath == "" {
		s.metricsPath = config.DefaultMetricsPath
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

// Pipeline returns the pipeline currently serving requests.
func (s *Server) Pipeline() *gateway.Pipeline {
	return s.pipeline.Load()
}

// SwapPipeline atomically replaces the serving pipeline and returns
// the previous one. In-flight requests finish on the pipeline they
// started with; the caller owns closing the returned one.
func (s *Server) SwapPipeline(next *gateway.Pipeline) *gateway.Pipeline {
	return s.pipeline.Swap(next)
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// Start runs the listener until it fails or Stop is called. The error
// from a graceful shutdown is nil.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	s.httpServer = &http.Server{
		Addr:           s.Addr(),
		Handler:        s.engine,
		ReadTimeout:    s.readTimeout,
		WriteTimeout:   s.writeTimeout,
		IdleTimeout:    s.idleTimeout,
		MaxHeaderBytes: s.maxHeaderBytes,
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting http server",
		observability.String("address", s.Addr()),
		observability.Bool("admin", s.adminEnabled),
		observability.Bool("metrics", s.metricsEnabled),
	)

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the listener down gracefully, bounded by the configured
// shutdown timeout when the context carries no deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}

	s.logger.Info("stopping http server")
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// IsRunning reports whether the listener is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// registerRoutes wires the operational endpoints and the catch-all
// proxy handler. The proxy hangs off NoRoute so operational paths
// never collide with gin's routing tree.
func (s *Server) registerRoutes() {
	if s.maxBodyBytes > 0 {
		s.engine.Use(s.maxBodyBytesMiddleware())
	}

	s.engine.GET("/healthz", s.handleHealth)

	if s.metricsEnabled {
		s.engine.GET(s.metricsPath, gin.WrapH(
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}),
		))
	}

	if s.adminEnabled {
		admin := s.engine.Group("/admin")
		admin.GET("/routes", s.handleListRoutes)
		admin.POST("/routes", s.handleAddRoute)
		admin.DELETE("/routes/:id", s.handleRemoveRoute)
		admin.GET("/ratelimit/rules", s.handleRateLimitRules)
		admin.POST("/ratelimit/reset", s.handleResetRateLimits)
		admin.GET("/stats", s.handleStats)
	}

	s.engine.NoRoute(s.handleProxy)
}

// maxBodyBytesMiddleware caps inbound request bodies.
func (s *Server) maxBodyBytesMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
		c.Next()
	}
}
