package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/observability"
)

// Memory backend defaults.
const (
	DefaultMaxEntries     = 10000
	DefaultMaxMemoryBytes = 256 << 20

	memoryCleanupInterval = time.Minute
)

// memoryItem wraps a stored entry with its accounted size.
type memoryItem struct {
	entry *Entry
	size  int64
}

// memoryBackend keeps entries in process memory. Under entry-count or
// byte pressure it evicts the entry with the fewest hits, oldest
// first; with tenant isolation the ceilings and the eviction scan
// apply per tenant namespace.
type memoryBackend struct {
	logger     observability.Logger
	metrics    *Metrics
	maxEntries int
	maxMemory  int64
	isolate    bool

	mu     sync.Mutex
	items  map[string]*memoryItem
	counts map[string]int
	bytes  map[string]int64

	hits   int64
	misses int64

	stopCh    chan struct{}
	closeOnce sync.Once
}

func newMemoryBackend(cfg *config.CacheConfig, logger observability.Logger, metrics *Metrics) *memoryBackend {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	maxMemory := cfg.MaxMemoryBytes
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemoryBytes
	}

	b := &memoryBackend{
		logger:     logger,
		metrics:    metrics,
		maxEntries: maxEntries,
		maxMemory:  maxMemory,
		isolate:    cfg.TenantIsolation,
		items:      make(map[string]*memoryItem),
		counts:     make(map[string]int),
		bytes:      make(map[string]int64),
		stopCh:     make(chan struct{}),
	}

	go b.cleanupLoop()

	logger.Info("memory cache backend initialized",
		observability.Int("maxEntries", maxEntries),
		observability.Int64("maxMemoryBytes", maxMemory),
		observability.Bool("tenantIsolation", b.isolate),
	)

	return b
}

// namespace returns the accounting namespace for an entry.
func (b *memoryBackend) namespace(entry *Entry) string {
	if !b.isolate {
		return ""
	}
	return tenantOrDefault(entry.TenantID)
}

func (b *memoryBackend) Get(_ context.Context, key string) (*Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, exists := b.items[key]
	if !exists {
		atomic.AddInt64(&b.misses, 1)
		return nil, ErrCacheMiss
	}

	if item.entry.Expired(time.Now()) {
		b.removeItem(key, item)
		atomic.AddInt64(&b.misses, 1)
		return nil, ErrCacheMiss
	}

	item.entry.Hits++
	atomic.AddInt64(&b.hits, 1)
	return item.entry, nil
}

func (b *memoryBackend) Set(_ context.Context, key string, entry *Entry) error {
	size := entry.Size()
	if size > b.maxMemory {
		return ErrEntryTooLarge
	}

	ns := b.namespace(entry)

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, exists := b.items[key]; exists {
		b.removeItem(key, existing)
	}

	// Make room before inserting so the incoming entry is never its
	// own eviction victim.
	for b.counts[ns]+1 > b.maxEntries || b.bytes[ns]+size > b.maxMemory {
		if !b.evictOne(ns) {
			break
		}
	}

	b.items[key] = &memoryItem{entry: entry, size: size}
	b.counts[ns]++
	b.bytes[ns] += size

	return nil
}

func (b *memoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if item, exists := b.items[key]; exists {
		b.removeItem(key, item)
	}
	return nil
}

func (b *memoryBackend) DeletePrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, item := range b.items {
		if strings.HasPrefix(key, prefix) {
			b.removeItem(key, item)
		}
	}
	return nil
}

func (b *memoryBackend) Purge(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = make(map[string]*memoryItem)
	b.counts = make(map[string]int)
	b.bytes = make(map[string]int64)
	return nil
}

func (b *memoryBackend) Stats() Stats {
	b.mu.Lock()
	entries := int64(len(b.items))
	var bytes int64
	for _, n := range b.bytes {
		bytes += n
	}
	b.mu.Unlock()

	return Stats{
		Hits:    atomic.LoadInt64(&b.hits),
		Misses:  atomic.LoadInt64(&b.misses),
		Entries: entries,
		Bytes:   bytes,
	}
}

func (b *memoryBackend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make(map[string]*memoryItem)
	b.counts = make(map[string]int)
	b.bytes = make(map[string]int64)
	return nil
}

// evictOne removes the lowest-ranked entry in the namespace: fewest
// hits first, oldest creation time breaking ties. Caller must hold the
// lock. Reports whether an entry was evicted.
func (b *memoryBackend) evictOne(ns string) bool {
	var victimKey string
	var victim *memoryItem

	for key, item := range b.items {
		if b.namespace(item.entry) != ns {
			continue
		}
		if victim == nil {
			victimKey, victim = key, item
			continue
		}
		if item.entry.Hits < victim.entry.Hits ||
			(item.entry.Hits == victim.entry.Hits && item.entry.CreatedAt.Before(victim.entry.CreatedAt)) {
			victimKey, victim = key, item
		}
	}

	if victim == nil {
		return false
	}

	b.removeItem(victimKey, victim)
	if b.metrics != nil {
		b.metrics.RecordEviction()
	}
	b.logger.Debug("cache evicted entry",
		observability.String("key", victimKey),
		observability.Int64("hits", victim.entry.Hits),
	)
	return true
}

// removeItem deletes an item and adjusts accounting. Caller must hold
// the lock.
func (b *memoryBackend) removeItem(key string, item *memoryItem) {
	delete(b.items, key)

	ns := b.namespace(item.entry)
	b.counts[ns]--
	if b.counts[ns] <= 0 {
		delete(b.counts, ns)
	}
	b.bytes[ns] -= item.size
	if b.bytes[ns] <= 0 {
		delete(b.bytes, ns)
	}
}

func (b *memoryBackend) cleanupLoop() {
	ticker := time.NewTicker(memoryCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.cleanup()
		case <-b.stopCh:
			return
		}
	}
}

// cleanup removes expired entries.
func (b *memoryBackend) cleanup() {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, item := range b.items {
		if item.entry.Expired(now) {
			b.removeItem(key, item)
			removed++
		}
	}

	if removed > 0 {
		b.logger.Debug("cache cleanup completed",
			observability.Int("removed", removed))
	}
}
