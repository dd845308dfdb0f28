package cache

import (
	"time"
)

// Entry is a cached upstream response with its bookkeeping metadata.
type Entry struct {
	// StatusCode is the cached response status.
	StatusCode int `json:"statusCode"`

	// Headers holds the cached response headers, post filtering.
	Headers map[string][]string `json:"headers,omitempty"`

	// Body is the response body, gzip-compressed when Compressed is set.
	Body []byte `json:"body,omitempty"`

	// Compressed marks a gzip-compressed body.
	Compressed bool `json:"compressed,omitempty"`

	// TenantID is the owning tenant. Empty outside tenant isolation.
	TenantID string `json:"tenantId,omitempty"`

	// CreatedAt is when the entry was stored.
	CreatedAt time.Time `json:"createdAt"`

	// TTL is the effective time-to-live.
	TTL time.Duration `json:"ttl"`

	// Hits counts lookups that returned this entry. Maintained by the
	// memory backend under its lock; not serialized.
	Hits int64 `json:"-"`
}

// Expired reports whether the entry is past CreatedAt+TTL.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Size is the accounted size: body bytes plus stored header bytes.
func (e *Entry) Size() int64 {
	size := int64(len(e.Body))
	for key, values := range e.Headers {
		for _, v := range values {
			size += int64(len(key) + len(v))
		}
	}
	return size
}

// Stats carries backend counters for the admin surface.
type Stats struct {
	// Hits is the number of lookups that found a live entry.
	Hits int64

	// Misses is the number of lookups that found nothing.
	Misses int64

	// Entries is the current entry count, where the backend can tell.
	Entries int64

	// Bytes is the accounted size of all entries, where the backend
	// can tell.
	Bytes int64
}

// HitRate returns the hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
