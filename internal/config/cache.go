package config

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Enabled turns response caching on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Backend selects where entries live: memory (default) or redis.
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// DefaultTTL applies when a route does not set its own TTL.
	// Defaults to 60s.
	DefaultTTL Duration `yaml:"defaultTtl,omitempty" json:"defaultTtl,omitempty"`

	// MinTTL clamps requested TTLs from below. Defaults to 1s.
	MinTTL Duration `yaml:"minTtl,omitempty" json:"minTtl,omitempty"`

	// MaxTTL clamps requested TTLs from above. Defaults to 1h.
	MaxTTL Duration `yaml:"maxTtl,omitempty" json:"maxTtl,omitempty"`

	// MaxEntries bounds the memory backend entry count. Defaults to
	// 10000.
	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// MaxMemoryBytes bounds the memory backend total size. Defaults to
	// 256 MiB.
	MaxMemoryBytes int64 `yaml:"maxMemoryBytes,omitempty" json:"maxMemoryBytes,omitempty"`

	// MaxBodyBytes is the per-response size ceiling above which the
	// response is not cached. Defaults to 1 MiB.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`

	// KeyStrategy composes the cache key: default (sorted query),
	// headers, user or tenant.
	KeyStrategy string `yaml:"keyStrategy,omitempty" json:"keyStrategy,omitempty"`

	// KeyHeaders is the header whitelist for the headers strategy.
	KeyHeaders []string `yaml:"keyHeaders,omitempty" json:"keyHeaders,omitempty"`

	// CacheableMethods lists methods eligible for caching. Defaults to
	// GET.
	CacheableMethods []string `yaml:"cacheableMethods,omitempty" json:"cacheableMethods,omitempty"`

	// CacheableStatuses lists status codes eligible for caching.
	// Defaults to 200.
	CacheableStatuses []int `yaml:"cacheableStatuses,omitempty" json:"cacheableStatuses,omitempty"`

	// CacheErrors allows caching of error responses (status >= 400)
	// that are listed in CacheableStatuses.
	CacheErrors bool `yaml:"cacheErrors,omitempty" json:"cacheErrors,omitempty"`

	// TenantIsolation namespaces keys, accounting and invalidation per
	// tenant.
	TenantIsolation bool `yaml:"tenantIsolation,omitempty" json:"tenantIsolation,omitempty"`

	// Compression configures transparent body compression.
	Compression *CompressionConfig `yaml:"compression,omitempty" json:"compression,omitempty"`

	// Redis configures the redis backend. Required when Backend is
	// redis.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// CompressionConfig configures transparent gzip compression of cached
// bodies.
type CompressionConfig struct {
	// Enabled turns compression on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Threshold is the minimum body size considered for compression.
	// Defaults to 1 KiB.
	Threshold int64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}
