// Package cache stores upstream responses and serves them for repeated
// requests. Entries are keyed by a configurable strategy, bounded by
// entry-count and memory ceilings with hit-ranked eviction, optionally
// gzip-compressed, and isolated per tenant. Memory and redis backends
// sit behind the same interface.
package cache
