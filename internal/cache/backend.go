package cache

import (
	"context"
	"errors"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found.
	ErrCacheMiss = errors.New("cache miss")

	// ErrEntryTooLarge indicates the entry alone exceeds the backend's
	// memory ceiling.
	ErrEntryTooLarge = errors.New("cache entry too large")
)

// Backend stores cache entries. Implementations are safe for
// concurrent use.
type Backend interface {
	// Get retrieves a live entry. Returns ErrCacheMiss when the key is
	// absent or expired; expired entries are removed.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores an entry, evicting as needed to respect ceilings.
	Set(ctx context.Context, key string, entry *Entry) error

	// Delete removes an entry. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Purge removes every entry.
	Purge(ctx context.Context) error

	// Stats returns backend counters.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// IsCacheMiss reports whether the error is a cache miss.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
