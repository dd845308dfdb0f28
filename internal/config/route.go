package config

// RouteConfig defines a single route.
type RouteConfig struct {
	// ID uniquely identifies the route.
	ID string `yaml:"id" json:"id"`

	// Path is the match pattern. Interpretation depends on MatchKind.
	Path string `yaml:"path" json:"path"`

	// MatchKind selects the matcher: exact, prefix, regex or wildcard.
	// When empty the kind is inferred from the pattern (trailing /* or
	// embedded * selects wildcard, otherwise exact).
	MatchKind string `yaml:"matchKind,omitempty" json:"matchKind,omitempty"`

	// Methods restricts the route to the listed HTTP methods. Empty
	// matches every method.
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`

	// Headers lists header constraints that must all be satisfied.
	// Values with a "regex:" prefix are compiled as regular expressions,
	// anything else is an exact match.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// TenantID scopes the route to a tenant. Empty means shared.
	TenantID string `yaml:"tenantId,omitempty" json:"tenantId,omitempty"`

	// Upstreams lists upstream IDs this route forwards to.
	Upstreams []string `yaml:"upstreams" json:"upstreams"`

	// Priority orders overlapping routes. Lower values win.
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`

	// Enabled toggles the route. Defaults to true.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// LoadBalancing selects the balancing algorithm: round_robin,
	// weighted_round_robin, least_connections, random, ip_hash or
	// health_aware. Defaults to round_robin.
	LoadBalancing string `yaml:"loadBalancing,omitempty" json:"loadBalancing,omitempty"`

	// Timeout bounds the upstream call for this route.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// AuthRequired demands credentials on this route even when the
	// global policy admits anonymous callers. It cannot loosen a global
	// requirement: authentication runs before routing.
	AuthRequired *bool `yaml:"authRequired,omitempty" json:"authRequired,omitempty"`

	// AllowedRoles restricts the route to identities holding at least
	// one of the listed roles.
	AllowedRoles []string `yaml:"allowedRoles,omitempty" json:"allowedRoles,omitempty"`

	// RequiredScopes lists scopes that must all be present.
	RequiredScopes []string `yaml:"requiredScopes,omitempty" json:"requiredScopes,omitempty"`

	// CacheTTL overrides the cache TTL for responses on this route.
	CacheTTL Duration `yaml:"cacheTtl,omitempty" json:"cacheTtl,omitempty"`

	// RequestHeaders rewrites headers on the upstream copy.
	RequestHeaders *HeaderRewriteConfig `yaml:"requestHeaders,omitempty" json:"requestHeaders,omitempty"`
}

// IsEnabled reports whether the route is enabled, defaulting to true.
func (r *RouteConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// HeaderRewriteConfig adds and removes headers on the transformed
// upstream request.
type HeaderRewriteConfig struct {
	// Add sets the listed headers.
	Add map[string]string `yaml:"add,omitempty" json:"add,omitempty"`

	// Remove deletes the listed headers.
	Remove []string `yaml:"remove,omitempty" json:"remove,omitempty"`
}

// UpstreamConfig defines an upstream service instance.
type UpstreamConfig struct {
	// ID uniquely identifies the upstream.
	ID string `yaml:"id" json:"id"`

	// URL is the absolute base URL of the upstream.
	URL string `yaml:"url" json:"url"`

	// Weight biases weighted_round_robin selection. Defaults to 1.
	Weight int `yaml:"weight,omitempty" json:"weight,omitempty"`

	// CircuitBreaker configures the per-upstream breaker.
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig configures a per-upstream circuit breaker.
type CircuitBreakerConfig struct {
	// Enabled turns the breaker on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// FailureThreshold is the consecutive failure count that opens the
	// breaker. Defaults to 5.
	FailureThreshold int `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"`

	// SuccessThreshold is the consecutive success count that closes an
	// open breaker. Defaults to 2.
	SuccessThreshold int `yaml:"successThreshold,omitempty" json:"successThreshold,omitempty"`

	// OpenTimeout is how long the breaker stays open before allowing a
	// probe. Defaults to 30s.
	OpenTimeout Duration `yaml:"openTimeout,omitempty" json:"openTimeout,omitempty"`
}
