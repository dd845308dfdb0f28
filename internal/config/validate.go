package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var (
	validMatchKinds = map[string]bool{
		"": true, "exact": true, "prefix": true, "regex": true, "wildcard": true,
	}
	validAlgorithms = map[string]bool{
		"": true, "token_bucket": true, "sliding_window": true,
	}
	validScopes = map[string]bool{
		"global": true, "per_client": true, "per_user": true,
		"per_tenant": true, "per_endpoint": true,
	}
	validBalancers = map[string]bool{
		"": true, "round_robin": true, "weighted_round_robin": true,
		"least_connections": true, "random": true, "ip_hash": true,
		"health_aware": true,
	}
	validAuthMethods = map[string]bool{
		"api_key": true, "bearer": true, "basic": true,
	}
	validKeyStrategies = map[string]bool{
		"": true, "default": true, "headers": true, "user": true, "tenant": true,
	}
	validStoreTypes = map[string]bool{
		"": true, "memory": true, "redis": true,
	}
	validSinkTypes = map[string]bool{
		"": true, "log": true, "http": true,
	}
	validLogLevels = map[string]bool{
		"": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	validLogFormats = map[string]bool{
		"": true, "json": true, "console": true,
	}
)

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(config *Config) error {
	v := NewValidator()
	return v.Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&config.Server)
	v.validateObservability(&config.Observability)
	upstreamIDs := v.validateUpstreams(config.Upstreams)
	v.validateRoutes(config.Routes, upstreamIDs)
	v.validateRateLimit(&config.RateLimit)
	v.validateAuth(&config.Auth)
	v.validateCache(&config.Cache)
	v.validateSecurity(&config.Security)
	v.validateAnalytics(&config.Analytics)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateServer(server *ServerConfig) {
	if server.Port < 0 || server.Port > 65535 {
		v.addError("server.port", fmt.Sprintf("port must be between 0 and 65535, got %d", server.Port))
	}
	if server.MaxHeaderBytes < 0 {
		v.addError("server.maxHeaderBytes", "maxHeaderBytes must not be negative")
	}
	if server.MaxBodyBytes < 0 {
		v.addError("server.maxBodyBytes", "maxBodyBytes must not be negative")
	}
}

func (v *Validator) validateObservability(obs *ObservabilityConfig) {
	if !validLogLevels[obs.Logging.Level] {
		v.addError("observability.logging.level",
			fmt.Sprintf("invalid level %q, must be one of debug, info, warn, error", obs.Logging.Level))
	}
	if !validLogFormats[obs.Logging.Format] {
		v.addError("observability.logging.format",
			fmt.Sprintf("invalid format %q, must be json or console", obs.Logging.Format))
	}
	if obs.Tracing.SamplingRate < 0 || obs.Tracing.SamplingRate > 1 {
		v.addError("observability.tracing.samplingRate",
			fmt.Sprintf("samplingRate must be between 0 and 1, got %v", obs.Tracing.SamplingRate))
	}
	if obs.Tracing.Enabled && obs.Tracing.Endpoint == "" {
		v.addError("observability.tracing.endpoint", "endpoint is required when tracing is enabled")
	}
}

func (v *Validator) validateUpstreams(upstreams []UpstreamConfig) map[string]bool {
	ids := make(map[string]bool, len(upstreams))

	for i, u := range upstreams {
		path := fmt.Sprintf("upstreams[%d]", i)

		if u.ID == "" {
			v.addError(path+".id", "id is required")
		} else if ids[u.ID] {
			v.addError(path+".id", fmt.Sprintf("duplicate upstream id %q", u.ID))
		} else {
			ids[u.ID] = true
		}

		v.validateUpstreamURL(path, u.URL)

		if u.Weight < 0 {
			v.addError(path+".weight", "weight must not be negative")
		}

		if cb := u.CircuitBreaker; cb != nil && cb.Enabled {
			if cb.FailureThreshold < 0 {
				v.addError(path+".circuitBreaker.failureThreshold", "failureThreshold must not be negative")
			}
			if cb.SuccessThreshold < 0 {
				v.addError(path+".circuitBreaker.successThreshold", "successThreshold must not be negative")
			}
			if cb.OpenTimeout < 0 {
				v.addError(path+".circuitBreaker.openTimeout", "openTimeout must not be negative")
			}
		}
	}

	return ids
}

func (v *Validator) validateUpstreamURL(path, raw string) {
	if raw == "" {
		v.addError(path+".url", "url is required")
		return
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		v.addError(path+".url", fmt.Sprintf("invalid url: %v", err))
		return
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.addError(path+".url", fmt.Sprintf("url scheme must be http or https, got %q", parsed.Scheme))
	}
	if parsed.Host == "" {
		v.addError(path+".url", "url must include a host")
	}
}

func (v *Validator) validateRoutes(routes []RouteConfig, upstreamIDs map[string]bool) {
	ids := make(map[string]bool, len(routes))

	for i, r := range routes {
		path := fmt.Sprintf("routes[%d]", i)

		if r.ID == "" {
			v.addError(path+".id", "id is required")
		} else if ids[r.ID] {
			v.addError(path+".id", fmt.Sprintf("duplicate route id %q", r.ID))
		} else {
			ids[r.ID] = true
		}

		if r.Path == "" {
			v.addError(path+".path", "path is required")
		}

		if !validMatchKinds[r.MatchKind] {
			v.addError(path+".matchKind",
				fmt.Sprintf("invalid matchKind %q, must be exact, prefix, regex or wildcard", r.MatchKind))
		}

		if r.MatchKind == "regex" && r.Path != "" {
			if _, err := regexp.Compile(r.Path); err != nil {
				v.addError(path+".path", fmt.Sprintf("invalid regex pattern: %v", err))
			}
		}

		for header, constraint := range r.Headers {
			if pattern, ok := strings.CutPrefix(constraint, "regex:"); ok {
				if _, err := regexp.Compile(pattern); err != nil {
					v.addError(fmt.Sprintf("%s.headers[%s]", path, header),
						fmt.Sprintf("invalid regex constraint: %v", err))
				}
			}
		}

		if len(r.Upstreams) == 0 {
			v.addError(path+".upstreams", "at least one upstream is required")
		}
		seen := make(map[string]bool, len(r.Upstreams))
		for _, id := range r.Upstreams {
			if !upstreamIDs[id] {
				v.addError(path+".upstreams", fmt.Sprintf("unknown upstream id %q", id))
			}
			if seen[id] {
				v.addError(path+".upstreams", fmt.Sprintf("duplicate upstream id %q within route", id))
			}
			seen[id] = true
		}

		if !validBalancers[r.LoadBalancing] {
			v.addError(path+".loadBalancing", fmt.Sprintf("invalid algorithm %q", r.LoadBalancing))
		}

		if r.Timeout < 0 {
			v.addError(path+".timeout", "timeout must not be negative")
		}
	}
}

func (v *Validator) validateRateLimit(rl *RateLimitConfig) {
	if !rl.Enabled {
		return
	}

	if !validAlgorithms[rl.Algorithm] {
		v.addError("rateLimit.algorithm",
			fmt.Sprintf("invalid algorithm %q, must be token_bucket or sliding_window", rl.Algorithm))
	}

	if len(rl.Rules) == 0 {
		v.addError("rateLimit.rules", "at least one rule is required when rate limiting is enabled")
	}

	scopes := make(map[string]bool, len(rl.Rules))
	for i, rule := range rl.Rules {
		path := fmt.Sprintf("rateLimit.rules[%d]", i)

		if !validScopes[rule.Scope] {
			v.addError(path+".scope", fmt.Sprintf("invalid scope %q", rule.Scope))
		} else if scopes[rule.Scope] {
			v.addError(path+".scope", fmt.Sprintf("duplicate scope %q", rule.Scope))
		} else {
			scopes[rule.Scope] = true
		}

		if rule.Requests <= 0 {
			v.addError(path+".requests", "requests must be positive")
		}
		if rule.Window <= 0 {
			v.addError(path+".window", "window must be positive")
		}
		if rule.Burst < 0 {
			v.addError(path+".burst", "burst must not be negative")
		}
	}

	if !validStoreTypes[rl.Store.Type] {
		v.addError("rateLimit.store.type", fmt.Sprintf("invalid store type %q", rl.Store.Type))
	}
	if rl.Store.Type == "redis" {
		if rl.Store.Redis == nil || rl.Store.Redis.Address == "" {
			v.addError("rateLimit.store.redis.address", "address is required for the redis store")
		}
	}
}

func (v *Validator) validateAuth(auth *AuthConfig) {
	if !auth.Enabled {
		return
	}

	if auth.APIKey == nil && auth.Bearer == nil && auth.Basic == nil {
		v.addError("auth", "at least one provider (apiKey, bearer, basic) must be configured")
	}

	for i, m := range auth.Methods {
		if !validAuthMethods[m] {
			v.addError(fmt.Sprintf("auth.methods[%d]", i), fmt.Sprintf("invalid method %q", m))
		}
	}

	if auth.Bearer != nil && auth.Bearer.Secret == "" {
		v.addError("auth.bearer.secret", "secret is required")
	}

	if auth.APIKey != nil {
		for i, entry := range auth.APIKey.Keys {
			path := fmt.Sprintf("auth.apiKey.keys[%d]", i)
			if entry.Key == "" {
				v.addError(path+".key", "key is required")
			}
			if entry.Subject == "" {
				v.addError(path+".subject", "subject is required")
			}
		}
	}

	if auth.Basic != nil {
		for i, user := range auth.Basic.Users {
			path := fmt.Sprintf("auth.basic.users[%d]", i)
			if user.Username == "" {
				v.addError(path+".username", "username is required")
			}
			if user.Password == "" {
				v.addError(path+".password", "password is required")
			}
		}
	}

	if ft := auth.FailureTracking; ft != nil && ft.Enabled {
		if ft.Threshold < 0 {
			v.addError("auth.failureTracking.threshold", "threshold must not be negative")
		}
		if ft.Window < 0 {
			v.addError("auth.failureTracking.window", "window must not be negative")
		}
	}

	if auth.Policy != nil && auth.Policy.Expression == "" {
		v.addError("auth.policy.expression", "expression is required")
	}
}

func (v *Validator) validateCache(cache *CacheConfig) {
	if !cache.Enabled {
		return
	}

	if !validStoreTypes[cache.Backend] {
		v.addError("cache.backend", fmt.Sprintf("invalid backend %q, must be memory or redis", cache.Backend))
	}
	if cache.Backend == "redis" {
		if cache.Redis == nil || cache.Redis.Address == "" {
			v.addError("cache.redis.address", "address is required for the redis backend")
		}
	}

	if cache.MinTTL < 0 || cache.MaxTTL < 0 || cache.DefaultTTL < 0 {
		v.addError("cache", "TTL values must not be negative")
	}
	if cache.MinTTL > 0 && cache.MaxTTL > 0 && cache.MinTTL > cache.MaxTTL {
		v.addError("cache.minTtl", "minTtl must not exceed maxTtl")
	}

	if cache.MaxEntries < 0 {
		v.addError("cache.maxEntries", "maxEntries must not be negative")
	}
	if cache.MaxMemoryBytes < 0 {
		v.addError("cache.maxMemoryBytes", "maxMemoryBytes must not be negative")
	}
	if cache.MaxBodyBytes < 0 {
		v.addError("cache.maxBodyBytes", "maxBodyBytes must not be negative")
	}

	if !validKeyStrategies[cache.KeyStrategy] {
		v.addError("cache.keyStrategy", fmt.Sprintf("invalid strategy %q", cache.KeyStrategy))
	}
	if cache.KeyStrategy == "headers" && len(cache.KeyHeaders) == 0 {
		v.addError("cache.keyHeaders", "keyHeaders is required for the headers strategy")
	}

	if comp := cache.Compression; comp != nil && comp.Enabled && comp.Threshold < 0 {
		v.addError("cache.compression.threshold", "threshold must not be negative")
	}
}

func (v *Validator) validateSecurity(sec *SecurityConfig) {
	if cors := sec.CORS; cors != nil && cors.Enabled {
		hasWildcard := false
		for i, origin := range cors.AllowOrigins {
			if origin == "*" {
				hasWildcard = true
			}
			if pattern, ok := strings.CutPrefix(origin, "regex:"); ok {
				if _, err := regexp.Compile(pattern); err != nil {
					v.addError(fmt.Sprintf("security.cors.allowOrigins[%d]", i),
						fmt.Sprintf("invalid regex origin: %v", err))
				}
			}
		}
		if hasWildcard && cors.AllowCredentials {
			v.addError("security.cors", "allowCredentials cannot be combined with a wildcard origin")
		}
		if cors.MaxAge < 0 {
			v.addError("security.cors.maxAge", "maxAge must not be negative")
		}
	}

	if hdrs := sec.Headers; hdrs != nil && hdrs.Enabled {
		if hsts := hdrs.HSTS; hsts != nil && hsts.Enabled && hsts.MaxAge < 0 {
			v.addError("security.headers.hsts.maxAge", "maxAge must not be negative")
		}
	}

	if scr := sec.Screening; scr != nil && scr.Enabled {
		if scr.MaxBodyBytes < 0 {
			v.addError("security.screening.maxBodyBytes", "maxBodyBytes must not be negative")
		}
		for i, pattern := range scr.SuspiciousUserAgents {
			if _, err := regexp.Compile(pattern); err != nil {
				v.addError(fmt.Sprintf("security.screening.suspiciousUserAgents[%d]", i),
					fmt.Sprintf("invalid regex: %v", err))
			}
		}
	}
}

func (v *Validator) validateAnalytics(a *AnalyticsConfig) {
	if !a.Enabled {
		return
	}

	if a.BufferSize < 0 {
		v.addError("analytics.bufferSize", "bufferSize must not be negative")
	}

	if sink := a.Sink; sink != nil {
		if !validSinkTypes[sink.Type] {
			v.addError("analytics.sink.type", fmt.Sprintf("invalid sink type %q, must be log or http", sink.Type))
		}
		if sink.Type == "http" && sink.Endpoint == "" {
			v.addError("analytics.sink.endpoint", "endpoint is required for the http sink")
		}
	}
}
