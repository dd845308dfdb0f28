package config

// AuthConfig configures authentication and authorization.
type AuthConfig struct {
	// Enabled turns authentication on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Required rejects requests without credentials. When false, absent
	// credentials yield anonymous access.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Methods orders credential dispatch: api_key, bearer, basic.
	// Empty enables every configured provider in that order.
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`

	// MultiTenant enforces that a credential's tenant matches the
	// request tenant.
	MultiTenant bool `yaml:"multiTenant,omitempty" json:"multiTenant,omitempty"`

	// APIKey configures API key authentication.
	APIKey *APIKeyConfig `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`

	// Bearer configures bearer token (JWT) authentication.
	Bearer *BearerConfig `yaml:"bearer,omitempty" json:"bearer,omitempty"`

	// Basic configures HTTP basic authentication.
	Basic *BasicConfig `yaml:"basic,omitempty" json:"basic,omitempty"`

	// FailureTracking locks out clients with repeated failures.
	FailureTracking *FailureTrackingConfig `yaml:"failureTracking,omitempty" json:"failureTracking,omitempty"`

	// Policy is an optional CEL expression evaluated after
	// authentication; false denies the request.
	Policy *PolicyConfig `yaml:"policy,omitempty" json:"policy,omitempty"`
}

// APIKeyConfig configures API key authentication.
type APIKeyConfig struct {
	// Header is the header carrying the key. Defaults to X-API-Key.
	Header string `yaml:"header,omitempty" json:"header,omitempty"`

	// Query is the query parameter fallback. Defaults to api_key.
	Query string `yaml:"query,omitempty" json:"query,omitempty"`

	// Keys is the key table.
	Keys []APIKeyEntry `yaml:"keys,omitempty" json:"keys,omitempty"`
}

// APIKeyEntry is one API key record. The Key field holds the plaintext
// key, "sha256:<hex>" for a hashed key, or "bcrypt:<hash>".
type APIKeyEntry struct {
	Key      string   `yaml:"key" json:"key"`
	Subject  string   `yaml:"subject" json:"subject"`
	TenantID string   `yaml:"tenantId,omitempty" json:"tenantId,omitempty"`
	Roles    []string `yaml:"roles,omitempty" json:"roles,omitempty"`
	Scopes   []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// BearerConfig configures bearer token authentication. Tokens are JWTs
// signed with HMAC-SHA256 over the shared secret.
type BearerConfig struct {
	// Secret is the HMAC signing secret.
	Secret string `yaml:"secret" json:"secret"`

	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`

	// Audience lists acceptable aud values. Empty skips the check.
	Audience []string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// Leeway tolerates clock skew on exp and nbf. Defaults to 0.
	Leeway Duration `yaml:"leeway,omitempty" json:"leeway,omitempty"`

	// CacheSize bounds the verified-token cache. Defaults to 1024.
	CacheSize int `yaml:"cacheSize,omitempty" json:"cacheSize,omitempty"`

	// CacheTTL bounds how long a verified token is remembered.
	// Defaults to 5m, additionally capped by token lifetime.
	CacheTTL Duration `yaml:"cacheTtl,omitempty" json:"cacheTtl,omitempty"`

	// RolesClaim names the claim carrying roles. Defaults to "roles".
	RolesClaim string `yaml:"rolesClaim,omitempty" json:"rolesClaim,omitempty"`

	// ScopesClaim names the claim carrying scopes. Defaults to "scope".
	ScopesClaim string `yaml:"scopesClaim,omitempty" json:"scopesClaim,omitempty"`

	// TenantClaim names the claim carrying the tenant. Defaults to
	// "tenant".
	TenantClaim string `yaml:"tenantClaim,omitempty" json:"tenantClaim,omitempty"`
}

// BasicConfig configures HTTP basic authentication.
type BasicConfig struct {
	// Realm is sent in WWW-Authenticate challenges.
	Realm string `yaml:"realm,omitempty" json:"realm,omitempty"`

	// Users is the user table.
	Users []BasicUserEntry `yaml:"users,omitempty" json:"users,omitempty"`
}

// BasicUserEntry is one basic-auth user record. Password holds the
// plaintext password or "bcrypt:<hash>".
type BasicUserEntry struct {
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"password"`
	TenantID string   `yaml:"tenantId,omitempty" json:"tenantId,omitempty"`
	Roles    []string `yaml:"roles,omitempty" json:"roles,omitempty"`
	Scopes   []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// FailureTrackingConfig locks out clients with repeated credential
// failures inside a rolling window.
type FailureTrackingConfig struct {
	// Enabled turns failure tracking on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Threshold is the failure count that triggers lockout. Defaults
	// to 5.
	Threshold int `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Window is the rolling window. Defaults to 1m.
	Window Duration `yaml:"window,omitempty" json:"window,omitempty"`
}

// PolicyConfig is a CEL authorization policy, compiled at startup and
// evaluated per request against the authenticated identity.
type PolicyConfig struct {
	// Expression is the CEL source. Variables: subject, tenant, method,
	// path, roles, scopes.
	Expression string `yaml:"expression" json:"expression"`
}
