package config

// RateLimitConfig configures admission control.
type RateLimitConfig struct {
	// Enabled turns rate limiting on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Algorithm selects the limiter: token_bucket or sliding_window.
	Algorithm string `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`

	// Rules lists per-scope budgets, evaluated in fixed scope order
	// (global, per_tenant, per_client, per_user, per_endpoint). The
	// first denial wins.
	Rules []RateLimitRule `yaml:"rules,omitempty" json:"rules,omitempty"`

	// AllowList keys bypass every rule.
	AllowList []string `yaml:"allowList,omitempty" json:"allowList,omitempty"`

	// DenyList keys are rejected regardless of budget.
	DenyList []string `yaml:"denyList,omitempty" json:"denyList,omitempty"`

	// Store selects where limiter state lives.
	Store RateLimitStoreConfig `yaml:"store,omitempty" json:"store,omitempty"`

	// CleanupInterval is how often stale limiter state is reclaimed.
	// Defaults to 1m.
	CleanupInterval Duration `yaml:"cleanupInterval,omitempty" json:"cleanupInterval,omitempty"`
}

// RateLimitRule is one per-scope budget.
type RateLimitRule struct {
	// Scope selects the key composition: global, per_client, per_user,
	// per_tenant or per_endpoint.
	Scope string `yaml:"scope" json:"scope"`

	// Requests is the number of requests admitted per Window. For the
	// token bucket this sets the refill rate (Requests/Window) and the
	// default capacity.
	Requests int `yaml:"requests" json:"requests"`

	// Window is the measurement window.
	Window Duration `yaml:"window" json:"window"`

	// Burst overrides the token bucket capacity. Ignored by the sliding
	// window algorithm.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// RateLimitStoreConfig selects the limiter state store.
type RateLimitStoreConfig struct {
	// Type is the store backend: memory (default) or redis.
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Redis configures the redis store. Required when Type is redis.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig configures a redis connection, shared by the rate-limit
// store and the cache backend.
type RedisConfig struct {
	// Address is the host:port of the redis server.
	Address string `yaml:"address" json:"address"`

	// Password authenticates the connection.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB selects the redis database.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`

	// PoolSize is the connection pool size.
	PoolSize int `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`

	// DialTimeout bounds connection establishment.
	DialTimeout Duration `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"`

	// ReadTimeout bounds individual reads.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout bounds individual writes.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// KeyPrefix namespaces keys written by this gateway.
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}
