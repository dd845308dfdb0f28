package config

import "time"

// Config is the root gateway configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" json:"server"`

	// Observability configures logging, metrics and tracing.
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Pipeline configures request processing defaults.
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Routes is the list of route definitions.
	Routes []RouteConfig `yaml:"routes" json:"routes"`

	// Upstreams is the list of upstream definitions referenced by routes.
	Upstreams []UpstreamConfig `yaml:"upstreams" json:"upstreams"`

	// RateLimit configures admission control.
	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`

	// Auth configures authentication and authorization.
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Cache configures the response cache.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Security configures CORS, security headers and request screening.
	Security SecurityConfig `yaml:"security" json:"security"`

	// Analytics configures the event emitter.
	Analytics AnalyticsConfig `yaml:"analytics" json:"analytics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the listen port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// IdleTimeout is the keep-alive idle timeout.
	IdleTimeout Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// MaxHeaderBytes limits request header size.
	MaxHeaderBytes int `yaml:"maxHeaderBytes,omitempty" json:"maxHeaderBytes,omitempty"`

	// MaxBodyBytes caps inbound request bodies. Zero disables the cap.
	// Defaults to 10 MiB.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`

	// AdminEnabled exposes the admin endpoints under /admin.
	AdminEnabled bool `yaml:"adminEnabled,omitempty" json:"adminEnabled,omitempty"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is the output format (json, console).
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Output is the destination (stdout, stderr, or a file path).
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes the /metrics endpoint.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the metrics endpoint path.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns on span export.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// SamplingRate is the trace sampling ratio in [0, 1].
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`

	// ServiceName overrides the reported service name.
	ServiceName string `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// PipelineConfig configures request processing defaults.
type PipelineConfig struct {
	// DefaultTimeout bounds upstream calls for routes without their own
	// timeout.
	DefaultTimeout Duration `yaml:"defaultTimeout,omitempty" json:"defaultTimeout,omitempty"`

	// TenantHeader is the request header carrying the tenant identifier.
	TenantHeader string `yaml:"tenantHeader,omitempty" json:"tenantHeader,omitempty"`

	// ClientIDHeader is the request header carrying the client identifier
	// used for per-client rate limiting.
	ClientIDHeader string `yaml:"clientIdHeader,omitempty" json:"clientIdHeader,omitempty"`
}

// Default values applied by DefaultConfig and component constructors.
const (
	DefaultPort            = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultForwardTimeout  = 30 * time.Second
	DefaultTenantHeader    = "X-Tenant-ID"
	DefaultClientIDHeader  = "X-Client-ID"
	DefaultMetricsPath     = "/metrics"
	DefaultMaxBodyBytes    = 10 << 20
)

// DefaultConfig returns a configuration with conservative defaults and
// no routes.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            DefaultPort,
			ReadTimeout:     Duration(DefaultReadTimeout),
			WriteTimeout:    Duration(DefaultWriteTimeout),
			IdleTimeout:     Duration(DefaultIdleTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			MaxBodyBytes:    DefaultMaxBodyBytes,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    DefaultMetricsPath,
			},
			Tracing: TracingConfig{
				Enabled:      false,
				SamplingRate: 1.0,
			},
		},
		Pipeline: PipelineConfig{
			DefaultTimeout: Duration(DefaultForwardTimeout),
			TenantHeader:   DefaultTenantHeader,
			ClientIDHeader: DefaultClientIDHeader,
		},
		RateLimit: RateLimitConfig{
			Enabled:   false,
			Algorithm: "token_bucket",
		},
		Cache: CacheConfig{
			Enabled: false,
			Backend: "memory",
		},
	}
}
