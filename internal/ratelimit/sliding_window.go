package ratelimit

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calmisko/gatepipe/internal/observability"
	"github.com/calmisko/gatepipe/internal/ratelimit/store"
)

var _ io.Closer = (*SlidingWindowLimiter)(nil)

// SlidingWindowLimiter implements the sliding window algorithm: each
// key keeps the timestamps of admitted requests inside the window, and
// a request is admitted while fewer than limit timestamps remain after
// pruning. When a store is configured the window is approximated with
// per-sub-window counters, otherwise exact timestamps are kept in
// memory.
//
// Implements io.Closer; call Close to stop the background cleanup
// goroutine.
type SlidingWindowLimiter struct {
	store     store.Store
	limit     int
	window    time.Duration
	precision int // sub-windows for the distributed approximation
	logger    observability.Logger

	windows sync.Map // key → *windowState

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// windowState holds the admitted timestamps for one key, oldest first.
type windowState struct {
	requests []time.Time
	mu       sync.Mutex
}

// NewSlidingWindowLimiter creates a sliding window limiter admitting
// limit requests per window.
func NewSlidingWindowLimiter(s store.Store, limit int, window time.Duration, logger observability.Logger) *SlidingWindowLimiter {
	return NewSlidingWindowLimiterWithCleanup(s, limit, window, time.Minute, logger)
}

// NewSlidingWindowLimiterWithCleanup creates a sliding window limiter
// with a custom cleanup interval for stale window reclamation.
func NewSlidingWindowLimiterWithCleanup(
	s store.Store,
	limit int,
	window time.Duration,
	cleanupInterval time.Duration,
	logger observability.Logger,
) *SlidingWindowLimiter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	l := &SlidingWindowLimiter{
		store:           s,
		limit:           limit,
		window:          window,
		precision:       10,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// cleanupLoop periodically reclaims fully-expired windows.
func (l *SlidingWindowLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// Close implements io.Closer. Safe to call multiple times.
func (l *SlidingWindowLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}

// Allow implements Limiter.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if l.store == nil {
		return l.allowLocal(key), nil
	}
	return l.allowDistributed(ctx, key)
}

// allowLocal admits against exact in-memory timestamps.
func (l *SlidingWindowLimiter) allowLocal(key string) *Result {
	now := time.Now()

	value, _ := l.windows.LoadOrStore(key, &windowState{})
	ws := value.(*windowState)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	l.prune(ws, now)

	allowed := len(ws.requests) < l.limit
	if allowed {
		ws.requests = append(ws.requests, now)
	}

	remaining := l.limit - len(ws.requests)
	if remaining < 0 {
		remaining = 0
	}

	var resetAfter, retryAfter time.Duration
	if len(ws.requests) > 0 {
		oldest := ws.requests[0]
		resetAfter = oldest.Add(l.window).Sub(now)
		if resetAfter < 0 {
			resetAfter = 0
		}
		if !allowed {
			retryAfter = resetAfter
		}
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}
}

// prune drops timestamps that have left the window.
func (l *SlidingWindowLimiter) prune(ws *windowState, now time.Time) {
	cutoff := now.Add(-l.window)
	keep := 0
	for _, t := range ws.requests {
		if t.After(cutoff) {
			break
		}
		keep++
	}
	if keep > 0 {
		ws.requests = append(ws.requests[:0], ws.requests[keep:]...)
	}
}

// allowDistributed admits against store-backed sub-window counters.
func (l *SlidingWindowLimiter) allowDistributed(ctx context.Context, key string) (*Result, error) {
	now := time.Now()
	nowMs := now.UnixMilli()
	windowMs := l.window.Milliseconds()

	subWindowSize := windowMs / int64(l.precision)
	if subWindowSize <= 0 {
		subWindowSize = 1
	}
	currentSubWindow := nowMs / subWindowSize

	total := int64(0)
	for i := 0; i < l.precision; i++ {
		subKey := "sw:" + key + ":" + strconv.FormatInt(currentSubWindow-int64(i), 10)
		count, err := l.store.Get(ctx, subKey)
		if err != nil && !store.IsKeyNotFound(err) {
			return nil, err
		}
		total += count
	}

	allowed := int(total) < l.limit
	if allowed {
		currentKey := "sw:" + key + ":" + strconv.FormatInt(currentSubWindow, 10)
		expiration := l.window + time.Duration(subWindowSize)*time.Millisecond
		if _, err := l.store.IncrementWithExpiry(ctx, currentKey, 1, expiration); err != nil {
			return nil, err
		}
		total++
	}

	remaining := l.limit - int(total)
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter time.Duration
	if !allowed {
		// The oldest sub-window expires first.
		retryAfter = time.Duration(subWindowSize) * time.Millisecond
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAfter: l.window,
		RetryAfter: retryAfter,
	}, nil
}

// Reset implements Limiter. It clears the key and any key it prefixes.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	l.windows.Range(func(k, _ interface{}) bool {
		if ks := k.(string); ks == key || strings.HasPrefix(ks, key) {
			l.windows.Delete(k)
		}
		return true
	})

	if l.store != nil {
		return l.store.DeletePrefix(ctx, "sw:"+key)
	}
	return nil
}

// ResetAll implements Limiter.
func (l *SlidingWindowLimiter) ResetAll(ctx context.Context) error {
	l.windows.Range(func(k, _ interface{}) bool {
		l.windows.Delete(k)
		return true
	})

	if l.store != nil {
		return l.store.DeletePrefix(ctx, "sw:")
	}
	return nil
}

// cleanup removes window states whose every timestamp has expired.
func (l *SlidingWindowLimiter) cleanup() {
	cutoff := time.Now().Add(-l.window)

	l.windows.Range(func(key, value interface{}) bool {
		ws := value.(*windowState)
		ws.mu.Lock()
		empty := true
		for _, t := range ws.requests {
			if t.After(cutoff) {
				empty = false
				break
			}
		}
		if empty {
			l.windows.Delete(key)
		}
		ws.mu.Unlock()
		return true
	})
}
