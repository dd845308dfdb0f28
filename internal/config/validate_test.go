package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Upstreams = []UpstreamConfig{
		{ID: "backend-1", URL: "http://backend-1:8080"},
		{ID: "backend-2", URL: "http://backend-2:8080", Weight: 3},
	}
	cfg.Routes = []RouteConfig{
		{ID: "api", Path: "/api/*", MatchKind: "wildcard", Upstreams: []string{"backend-1", "backend-2"}},
	}
	return cfg
}

func TestValidateConfigValid(t *testing.T) {
	require.NoError(t, ValidateConfig(validTestConfig()))
}

func TestValidateConfigNil(t *testing.T) {
	err := ValidateConfig(nil)
	require.Error(t, err)
}

func TestValidateRouteMissingID(t *testing.T) {
	cfg := validTestConfig()
	cfg.Routes[0].ID = ""

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routes[0].id")
}

func TestValidateRouteDuplicateID(t *testing.T) {
	cfg := validTestConfig()
	cfg.Routes = append(cfg.Routes, RouteConfig{
		ID: "api", Path: "/other", Upstreams: []string{"backend-1"},
	})

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate route id "api"`)
}

func TestValidateRouteUnknownUpstream(t *testing.T) {
	cfg := validTestConfig()
	cfg.Routes[0].Upstreams = []string{"missing"}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown upstream id "missing"`)
}

func TestValidateRouteDuplicateUpstreamWithinRoute(t *testing.T) {
	cfg := validTestConfig()
	cfg.Routes[0].Upstreams = []string{"backend-1", "backend-1"}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate upstream id")
}

func TestValidateRouteBadRegex(t *testing.T) {
	cfg := validTestConfig()
	cfg.Routes[0].MatchKind = "regex"
	cfg.Routes[0].Path = "/api/(unclosed"

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid regex pattern")
}

func TestValidateRouteBadHeaderConstraint(t *testing.T) {
	cfg := validTestConfig()
	cfg.Routes[0].Headers = map[string]string{"X-Version": "regex:(["}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid regex constraint")
}

func TestValidateUpstreamBadURL(t *testing.T) {
	cfg := validTestConfig()
	cfg.Upstreams[0].URL = "not-a-url"

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme must be http or https")
}

func TestValidateUpstreamDuplicateID(t *testing.T) {
	cfg := validTestConfig()
	cfg.Upstreams = append(cfg.Upstreams, UpstreamConfig{ID: "backend-1", URL: "http://other:8080"})

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate upstream id "backend-1"`)
}

func TestValidateRateLimitRules(t *testing.T) {
	cfg := validTestConfig()
	cfg.RateLimit = RateLimitConfig{
		Enabled:   true,
		Algorithm: "token_bucket",
		Rules: []RateLimitRule{
			{Scope: "per_client", Requests: 100, Window: Duration(60e9)},
		},
	}
	require.NoError(t, ValidateConfig(cfg))

	cfg.RateLimit.Rules[0].Requests = 0
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requests must be positive")
}

func TestValidateRateLimitBadAlgorithm(t *testing.T) {
	cfg := validTestConfig()
	cfg.RateLimit = RateLimitConfig{
		Enabled:   true,
		Algorithm: "leaky_bucket",
		Rules:     []RateLimitRule{{Scope: "global", Requests: 10, Window: Duration(1e9)}},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid algorithm")
}

func TestValidateRateLimitDuplicateScope(t *testing.T) {
	cfg := validTestConfig()
	cfg.RateLimit = RateLimitConfig{
		Enabled:   true,
		Algorithm: "sliding_window",
		Rules: []RateLimitRule{
			{Scope: "global", Requests: 10, Window: Duration(1e9)},
			{Scope: "global", Requests: 20, Window: Duration(1e9)},
		},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate scope "global"`)
}

func TestValidateRateLimitRedisStoreNeedsAddress(t *testing.T) {
	cfg := validTestConfig()
	cfg.RateLimit = RateLimitConfig{
		Enabled:   true,
		Algorithm: "token_bucket",
		Rules:     []RateLimitRule{{Scope: "global", Requests: 10, Window: Duration(1e9)}},
		Store:     RateLimitStoreConfig{Type: "redis"},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rateLimit.store.redis.address")
}

func TestValidateAuthNeedsProvider(t *testing.T) {
	cfg := validTestConfig()
	cfg.Auth = AuthConfig{Enabled: true}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one provider")
}

func TestValidateAuthBearerNeedsSecret(t *testing.T) {
	cfg := validTestConfig()
	cfg.Auth = AuthConfig{Enabled: true, Bearer: &BearerConfig{}}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.bearer.secret")
}

func TestValidateCacheTTLOrdering(t *testing.T) {
	cfg := validTestConfig()
	cfg.Cache = CacheConfig{
		Enabled: true,
		Backend: "memory",
		MinTTL:  Duration(60e9),
		MaxTTL:  Duration(1e9),
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minTtl must not exceed maxTtl")
}

func TestValidateCacheHeadersStrategyNeedsHeaders(t *testing.T) {
	cfg := validTestConfig()
	cfg.Cache = CacheConfig{Enabled: true, Backend: "memory", KeyStrategy: "headers"}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyHeaders is required")
}

func TestValidateCORSWildcardWithCredentials(t *testing.T) {
	cfg := validTestConfig()
	cfg.Security.CORS = &CORSConfig{
		Enabled:          true,
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowCredentials cannot be combined")
}

func TestValidateScreeningBadRegex(t *testing.T) {
	cfg := validTestConfig()
	cfg.Security.Screening = &ScreeningConfig{
		Enabled:              true,
		SuspiciousUserAgents: []string{"(unclosed"},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suspiciousUserAgents[0]")
}

func TestValidateAnalyticsHTTPSinkNeedsEndpoint(t *testing.T) {
	cfg := validTestConfig()
	cfg.Analytics = AnalyticsConfig{Enabled: true, Sink: &SinkConfig{Type: "http"}}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analytics.sink.endpoint")
}

func TestValidationErrorsAggregation(t *testing.T) {
	cfg := validTestConfig()
	cfg.Routes[0].ID = ""
	cfg.Upstreams[0].URL = ""

	err := ValidateConfig(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.HasErrors())
	assert.GreaterOrEqual(t, len(verrs), 2)
	assert.True(t, strings.Contains(err.Error(), "validation errors"))
}
