package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/observability"
)

// Cacheability and TTL defaults.
const (
	DefaultTTL               = 60 * time.Second
	DefaultMinTTL            = time.Second
	DefaultMaxTTL            = time.Hour
	DefaultMaxBodyBytes      = 1 << 20
	DefaultCompressThreshold = 1 << 10
)

// uncacheableHeaders are stripped from responses before storage:
// hop-by-hop headers and Set-Cookie, which must never be replayed to
// another client. Keys are in canonical MIME form.
var uncacheableHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Set-Cookie":          {},
}

// Manager is the response cache. It derives keys from requests,
// decides cacheability, clamps TTLs and delegates storage to the
// configured backend.
type Manager struct {
	config  *config.CacheConfig
	logger  observability.Logger
	metrics *Metrics
	keys    *KeyBuilder
	backend Backend

	defaultTTL time.Duration
	minTTL     time.Duration
	maxTTL     time.Duration
	maxBody    int64

	methods  map[string]struct{}
	statuses map[int]struct{}

	compress          bool
	compressThreshold int64
}

// NewManager creates a cache manager from the given configuration.
// A disabled configuration yields a manager whose Lookup always
// misses and whose Store always declines.
func NewManager(cfg *config.CacheConfig, logger observability.Logger, metrics *Metrics) (*Manager, error) {
	if cfg == nil {
		cfg = &config.CacheConfig{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	m := &Manager{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}

	if !cfg.Enabled {
		return m, nil
	}

	keys, err := NewKeyBuilder(cfg.KeyStrategy, cfg.KeyHeaders, cfg.TenantIsolation)
	if err != nil {
		return nil, err
	}
	m.keys = keys

	m.defaultTTL = cfg.DefaultTTL.Duration()
	if m.defaultTTL <= 0 {
		m.defaultTTL = DefaultTTL
	}
	m.minTTL = cfg.MinTTL.Duration()
	if m.minTTL <= 0 {
		m.minTTL = DefaultMinTTL
	}
	m.maxTTL = cfg.MaxTTL.Duration()
	if m.maxTTL <= 0 {
		m.maxTTL = DefaultMaxTTL
	}
	if m.maxTTL < m.minTTL {
		return nil, fmt.Errorf("cache maxTtl %s is below minTtl %s", m.maxTTL, m.minTTL)
	}
	m.maxBody = cfg.MaxBodyBytes
	if m.maxBody <= 0 {
		m.maxBody = DefaultMaxBodyBytes
	}

	m.methods = make(map[string]struct{})
	for _, method := range cfg.CacheableMethods {
		m.methods[core.NormalizeMethod(method)] = struct{}{}
	}
	if len(m.methods) == 0 {
		m.methods["GET"] = struct{}{}
	}

	m.statuses = make(map[int]struct{})
	for _, status := range cfg.CacheableStatuses {
		m.statuses[status] = struct{}{}
	}
	if len(m.statuses) == 0 {
		m.statuses[200] = struct{}{}
	}

	if cfg.Compression != nil && cfg.Compression.Enabled {
		m.compress = true
		m.compressThreshold = cfg.Compression.Threshold
		if m.compressThreshold <= 0 {
			m.compressThreshold = DefaultCompressThreshold
		}
	}

	switch cfg.Backend {
	case "", "memory":
		m.backend = newMemoryBackend(cfg, logger, metrics)
	case "redis":
		backend, err := newRedisBackend(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		m.backend = backend
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}

	return m, nil
}

// Enabled reports whether the cache participates in the pipeline.
func (m *Manager) Enabled() bool {
	return m.config.Enabled && m.backend != nil
}

// Lookup returns the cached entry for the request, if any. Compressed
// bodies are transparently decompressed; the returned entry is a copy
// the caller may read freely.
func (m *Manager) Lookup(ctx context.Context, req *core.Request, identity *core.Identity) (*Entry, bool) {
	if !m.Enabled() || !m.requestCacheable(req) {
		return nil, false
	}

	key := m.keys.Build(req, identity)

	entry, err := m.backend.Get(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			m.logger.Warn("cache lookup failed",
				observability.String("key", key),
				observability.Error(err),
			)
		}
		m.metrics.RecordLookup(false)
		return nil, false
	}

	result, err := m.materialize(entry)
	if err != nil {
		m.logger.Warn("cache entry unreadable, dropping",
			observability.String("key", key),
			observability.Error(err),
		)
		_ = m.backend.Delete(ctx, key)
		m.metrics.RecordLookup(false)
		return nil, false
	}

	m.metrics.RecordLookup(true)
	m.logger.Debug("cache hit",
		observability.String("key", key),
		observability.String("path", req.Path),
	)
	return result, true
}

// Store caches the response for the request when it is cacheable.
// A non-positive ttl selects the configured default; the effective TTL
// is always clamped to the configured bounds. Reports whether the
// entry was stored.
func (m *Manager) Store(ctx context.Context, req *core.Request, resp *core.Response, identity *core.Identity, ttl time.Duration) bool {
	if !m.Enabled() {
		return false
	}
	if !m.requestCacheable(req) || !m.responseCacheable(resp) {
		return false
	}

	entry := &Entry{
		StatusCode: resp.StatusCode,
		Headers:    filterHeaders(resp.Headers),
		Body:       append([]byte(nil), resp.Body...),
		TenantID:   req.TenantID,
		CreatedAt:  time.Now(),
		TTL:        m.effectiveTTL(ttl),
	}

	if entry.Size() > m.maxBody {
		m.metrics.RecordStore(false)
		return false
	}

	m.maybeCompress(entry)

	key := m.keys.Build(req, identity)

	if err := m.backend.Set(ctx, key, entry); err != nil {
		if !errors.Is(err, ErrEntryTooLarge) {
			m.logger.Warn("cache store failed",
				observability.String("key", key),
				observability.Error(err),
			)
		}
		m.metrics.RecordStore(false)
		return false
	}

	m.metrics.RecordStore(true)
	m.logger.Debug("cache stored entry",
		observability.String("key", key),
		observability.String("path", req.Path),
		observability.Duration("ttl", entry.TTL),
		observability.Bool("compressed", entry.Compressed),
	)
	return true
}

// Invalidate removes the cached entry for the request, if any.
func (m *Manager) Invalidate(ctx context.Context, req *core.Request, identity *core.Identity) error {
	if !m.Enabled() {
		return nil
	}
	return m.backend.Delete(ctx, m.keys.Build(req, identity))
}

// InvalidatePrefix removes every entry whose key starts with prefix.
func (m *Manager) InvalidatePrefix(ctx context.Context, prefix string) error {
	if !m.Enabled() {
		return nil
	}
	return m.backend.DeletePrefix(ctx, prefix)
}

// InvalidateTenant removes every entry owned by the tenant. Requires
// tenant isolation, which namespaces keys by tenant.
func (m *Manager) InvalidateTenant(ctx context.Context, tenant string) error {
	if !m.Enabled() {
		return nil
	}
	prefix := m.keys.TenantPrefix(tenant)
	if prefix == "" {
		return errors.New("tenant invalidation requires tenant isolation")
	}
	return m.backend.DeletePrefix(ctx, prefix)
}

// Purge removes every cached entry.
func (m *Manager) Purge(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	return m.backend.Purge(ctx)
}

// Stats returns a snapshot of cache statistics.
func (m *Manager) Stats() Stats {
	if !m.Enabled() {
		return Stats{}
	}
	return m.backend.Stats()
}

// Close releases backend resources.
func (m *Manager) Close() error {
	if m.backend == nil {
		return nil
	}
	return m.backend.Close()
}

// requestCacheable reports whether the request may be served from or
// admitted to the cache: method in the cacheable set and no client
// opt-out directive.
func (m *Manager) requestCacheable(req *core.Request) bool {
	if _, ok := m.methods[req.Method]; !ok {
		return false
	}
	return !hasUncacheableDirective(req.Headers["Cache-Control"])
}

// responseCacheable reports whether the response may be stored.
func (m *Manager) responseCacheable(resp *core.Response) bool {
	if resp == nil {
		return false
	}
	if _, ok := m.statuses[resp.StatusCode]; !ok {
		return false
	}
	if resp.StatusCode >= 400 && !m.config.CacheErrors {
		return false
	}
	return !hasUncacheableDirective(resp.Headers["Cache-Control"])
}

func (m *Manager) effectiveTTL(requested time.Duration) time.Duration {
	ttl := requested
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if ttl < m.minTTL {
		ttl = m.minTTL
	}
	if ttl > m.maxTTL {
		ttl = m.maxTTL
	}
	return ttl
}

// maybeCompress gzips the entry body in place when compression is
// enabled, the body meets the threshold, and compression shrinks it by
// more than ten percent.
func (m *Manager) maybeCompress(entry *Entry) {
	if !m.compress || int64(len(entry.Body)) < m.compressThreshold {
		return
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(entry.Body); err != nil {
		return
	}
	if err := writer.Close(); err != nil {
		return
	}

	if int64(buf.Len())*10 >= int64(len(entry.Body))*9 {
		return
	}

	entry.Body = buf.Bytes()
	entry.Compressed = true
}

// materialize returns a caller-owned copy of the entry with the body
// decompressed when necessary. The stored entry is never mutated.
func (m *Manager) materialize(entry *Entry) (*Entry, error) {
	result := *entry
	result.Headers = make(map[string][]string, len(entry.Headers))
	for k, v := range entry.Headers {
		vv := make([]string, len(v))
		copy(vv, v)
		result.Headers[k] = vv
	}

	if entry.Compressed {
		reader, err := gzip.NewReader(bytes.NewReader(entry.Body))
		if err != nil {
			return nil, fmt.Errorf("open compressed cache body: %w", err)
		}
		body, err := io.ReadAll(reader)
		if cerr := reader.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("decompress cache body: %w", err)
		}
		result.Body = body
		result.Compressed = false
	}

	return &result, nil
}

// filterHeaders copies response headers, dropping hop-by-hop headers
// and Set-Cookie.
func filterHeaders(headers map[string][]string) map[string][]string {
	filtered := make(map[string][]string, len(headers))
	for key, values := range headers {
		if _, drop := uncacheableHeaders[key]; drop {
			continue
		}
		vv := make([]string, len(values))
		copy(vv, values)
		filtered[key] = vv
	}
	return filtered
}

// hasUncacheableDirective reports whether a Cache-Control header
// carries no-store or no-cache.
func hasUncacheableDirective(values []string) bool {
	for _, value := range values {
		for _, directive := range strings.Split(value, ",") {
			switch strings.ToLower(strings.TrimSpace(directive)) {
			case "no-store", "no-cache":
				return true
			}
		}
	}
	return false
}
