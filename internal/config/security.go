package config

// SecurityConfig configures CORS, security headers and request
// screening.
type SecurityConfig struct {
	// CORS configures cross-origin resource sharing.
	CORS *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty"`

	// Headers configures response security headers.
	Headers *SecurityHeadersConfig `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Screening configures inbound request screening.
	Screening *ScreeningConfig `yaml:"screening,omitempty" json:"screening,omitempty"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	// Enabled turns CORS handling on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// AllowOrigins lists allowed origins. Entries may be exact origins,
	// "*", "*.domain" wildcards, or "regex:" patterns.
	AllowOrigins []string `yaml:"allowOrigins,omitempty" json:"allowOrigins,omitempty"`

	// AllowMethods lists methods allowed in preflight. Defaults to
	// GET, POST, PUT, PATCH, DELETE, OPTIONS.
	AllowMethods []string `yaml:"allowMethods,omitempty" json:"allowMethods,omitempty"`

	// AllowHeaders lists request headers allowed in preflight.
	AllowHeaders []string `yaml:"allowHeaders,omitempty" json:"allowHeaders,omitempty"`

	// ExposeHeaders lists response headers exposed to the browser.
	ExposeHeaders []string `yaml:"exposeHeaders,omitempty" json:"exposeHeaders,omitempty"`

	// AllowCredentials permits credentialed requests. Incompatible with
	// a literal "*" allow-origin.
	AllowCredentials bool `yaml:"allowCredentials,omitempty" json:"allowCredentials,omitempty"`

	// MaxAge is the preflight cache lifetime. Defaults to 10m.
	MaxAge Duration `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
}

// SecurityHeadersConfig configures response security headers.
type SecurityHeadersConfig struct {
	// Enabled turns security header injection on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// HSTS configures Strict-Transport-Security.
	HSTS *HSTSConfig `yaml:"hsts,omitempty" json:"hsts,omitempty"`

	// ContentSecurityPolicy maps CSP directives to source lists, e.g.
	// default-src: ["'self'"].
	ContentSecurityPolicy map[string][]string `yaml:"contentSecurityPolicy,omitempty" json:"contentSecurityPolicy,omitempty"`

	// FrameOptions sets X-Frame-Options. Defaults to DENY.
	FrameOptions string `yaml:"frameOptions,omitempty" json:"frameOptions,omitempty"`

	// ContentTypeOptions sets X-Content-Type-Options. Defaults to
	// nosniff.
	ContentTypeOptions string `yaml:"contentTypeOptions,omitempty" json:"contentTypeOptions,omitempty"`

	// XSSProtection sets X-XSS-Protection. Defaults to "1; mode=block".
	XSSProtection string `yaml:"xssProtection,omitempty" json:"xssProtection,omitempty"`

	// ReferrerPolicy sets Referrer-Policy.
	ReferrerPolicy string `yaml:"referrerPolicy,omitempty" json:"referrerPolicy,omitempty"`

	// PermissionsPolicy maps browser features to allowed origins, e.g.
	// geolocation: ["self"].
	PermissionsPolicy map[string][]string `yaml:"permissionsPolicy,omitempty" json:"permissionsPolicy,omitempty"`

	// Custom sets operator-defined headers verbatim.
	Custom map[string]string `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// HSTSConfig configures Strict-Transport-Security.
type HSTSConfig struct {
	// Enabled turns HSTS on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxAge is the max-age directive in seconds. Defaults to 31536000.
	MaxAge int `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`

	// IncludeSubDomains adds the includeSubDomains directive.
	IncludeSubDomains bool `yaml:"includeSubDomains,omitempty" json:"includeSubDomains,omitempty"`

	// Preload adds the preload directive.
	Preload bool `yaml:"preload,omitempty" json:"preload,omitempty"`
}

// ScreeningConfig configures inbound request screening. Path attack
// signature checks are always applied while screening is enabled.
type ScreeningConfig struct {
	// Enabled turns screening on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxBodyBytes flags request bodies over this size. Defaults to
	// 10 MiB.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`

	// SuspiciousUserAgents lists regular expressions matched against
	// the User-Agent header, compiled at startup.
	SuspiciousUserAgents []string `yaml:"suspiciousUserAgents,omitempty" json:"suspiciousUserAgents,omitempty"`

	// BlockedIPs lists client IPs that are always flagged.
	BlockedIPs []string `yaml:"blockedIps,omitempty" json:"blockedIps,omitempty"`

	// AllowedIPs, when non-empty, flags every client IP not listed.
	AllowedIPs []string `yaml:"allowedIps,omitempty" json:"allowedIps,omitempty"`

	// TrustedProxies are exempt from IP screening.
	TrustedProxies []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
}
