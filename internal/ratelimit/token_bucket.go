package ratelimit

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/calmisko/gatepipe/internal/observability"
	"github.com/calmisko/gatepipe/internal/ratelimit/store"
)

var _ io.Closer = (*TokenBucketLimiter)(nil)

// TokenBucketLimiter implements the token bucket algorithm. Tokens
// refill continuously at a fixed rate up to the bucket capacity; each
// admitted request consumes one token. A new key starts with a full
// bucket. When a store is configured the bucket state lives there,
// otherwise it is kept in memory.
//
// Implements io.Closer; call Close to stop the background cleanup
// goroutine.
type TokenBucketLimiter struct {
	store    store.Store
	rate     float64 // tokens per second
	capacity int
	logger   observability.Logger

	buckets sync.Map // key → *bucket

	cleanupInterval time.Duration
	bucketTTL       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// bucket is the in-memory state for a single key.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucketLimiter creates a token bucket limiter admitting
// requests per window, with capacity tokens of burst headroom. A zero
// capacity defaults to requests.
func NewTokenBucketLimiter(s store.Store, requests int, window time.Duration, capacity int, logger observability.Logger) *TokenBucketLimiter {
	return NewTokenBucketLimiterWithCleanup(s, requests, window, capacity, time.Minute, logger)
}

// NewTokenBucketLimiterWithCleanup creates a token bucket limiter with
// a custom cleanup interval for stale bucket reclamation.
func NewTokenBucketLimiterWithCleanup(
	s store.Store,
	requests int,
	window time.Duration,
	capacity int,
	cleanupInterval time.Duration,
	logger observability.Logger,
) *TokenBucketLimiter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if capacity <= 0 {
		capacity = requests
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	l := &TokenBucketLimiter{
		store:           s,
		rate:            float64(requests) / window.Seconds(),
		capacity:        capacity,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	// A bucket idle long enough to have refilled completely carries no
	// information and can be dropped.
	l.bucketTTL = time.Duration(float64(l.capacity)/l.rate*float64(time.Second)) + cleanupInterval

	go l.cleanupLoop()

	return l
}

// cleanupLoop periodically reclaims stale buckets.
func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(l.bucketTTL)
		case <-l.stopCleanup:
			return
		}
	}
}

// Close implements io.Closer. Safe to call multiple times.
func (l *TokenBucketLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if l.store == nil {
		return l.allowLocal(key), nil
	}
	return l.allowDistributed(ctx, key)
}

// allowLocal admits against in-memory bucket state.
func (l *TokenBucketLimiter) allowLocal(key string) *Result {
	now := time.Now()

	value, _ := l.buckets.LoadOrStore(key, &bucket{
		tokens:     float64(l.capacity),
		lastRefill: now,
	})
	b := value.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > float64(l.capacity) {
		b.tokens = float64(l.capacity)
	}
	b.lastRefill = now

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}

	return l.buildResult(allowed, b.tokens)
}

// allowDistributed admits against store-backed bucket state. Tokens are
// stored scaled by 1000 to keep fractional refill precision in an
// integer store.
func (l *TokenBucketLimiter) allowDistributed(ctx context.Context, key string) (*Result, error) {
	now := time.Now()
	nowMs := now.UnixMilli()

	stateKey := "tb:" + key
	tokens := float64(l.capacity)
	lastRefill := nowMs

	storedTokens, err := l.store.Get(ctx, stateKey+":tokens")
	if err == nil {
		tokens = float64(storedTokens) / 1000.0
	} else if !store.IsKeyNotFound(err) {
		return nil, err
	}

	storedTime, err := l.store.Get(ctx, stateKey+":time")
	if err == nil {
		lastRefill = storedTime
	} else if !store.IsKeyNotFound(err) {
		return nil, err
	}

	elapsed := float64(nowMs-lastRefill) / 1000.0
	tokens += elapsed * l.rate
	if tokens > float64(l.capacity) {
		tokens = float64(l.capacity)
	}

	allowed := tokens >= 1
	if allowed {
		tokens--
	}

	expiration := time.Duration(float64(l.capacity)/l.rate+1) * time.Second
	if err := l.store.Set(ctx, stateKey+":tokens", int64(tokens*1000), expiration); err != nil {
		return nil, err
	}
	if err := l.store.Set(ctx, stateKey+":time", nowMs, expiration); err != nil {
		return nil, err
	}

	return l.buildResult(allowed, tokens), nil
}

// buildResult derives the Result fields from the post-decision token
// count.
func (l *TokenBucketLimiter) buildResult(allowed bool, tokens float64) *Result {
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := time.Duration((float64(l.capacity) - tokens) / l.rate * float64(time.Second))
	if resetAfter < 0 {
		resetAfter = 0
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = time.Duration((1 - tokens) / l.rate * float64(time.Second))
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.capacity,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}
}

// Reset implements Limiter. It clears the key and any key it prefixes.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	l.buckets.Range(func(k, _ interface{}) bool {
		if ks := k.(string); ks == key || strings.HasPrefix(ks, key) {
			l.buckets.Delete(k)
		}
		return true
	})

	if l.store != nil {
		return l.store.DeletePrefix(ctx, "tb:"+key)
	}
	return nil
}

// ResetAll implements Limiter.
func (l *TokenBucketLimiter) ResetAll(ctx context.Context) error {
	l.buckets.Range(func(k, _ interface{}) bool {
		l.buckets.Delete(k)
		return true
	})

	if l.store != nil {
		return l.store.DeletePrefix(ctx, "tb:")
	}
	return nil
}

// cleanup removes buckets idle longer than maxAge.
func (l *TokenBucketLimiter) cleanup(maxAge time.Duration) {
	now := time.Now()

	l.buckets.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		if now.Sub(b.lastRefill) > maxAge {
			l.buckets.Delete(key)
		}
		b.mu.Unlock()
		return true
	})
}
