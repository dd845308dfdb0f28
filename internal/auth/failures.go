package auth

import (
	"sync"
	"time"
)

const defaultTrackerCleanupInterval = time.Minute

// failureTracker counts credential failures per client inside a
// rolling window. A client at or over the threshold is locked out
// until enough failures age out of the window.
type failureTracker struct {
	mu        sync.Mutex
	failures  map[string][]time.Time
	threshold int
	window    time.Duration

	stopCh    chan struct{}
	closeOnce sync.Once
}

func newFailureTracker(threshold int, window time.Duration) *failureTracker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = time.Minute
	}

	t := &failureTracker{
		failures:  make(map[string][]time.Time),
		threshold: threshold,
		window:    window,
		stopCh:    make(chan struct{}),
	}
	go t.cleanupLoop(defaultTrackerCleanupInterval)
	return t
}

// record adds a failure for the client.
func (t *failureTracker) record(client string) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.prune(client, now)
	t.failures[client] = append(entries, now)
}

// locked reports whether the client is locked out, and if so how long
// until the lockout clears.
func (t *failureTracker) locked(client string) (bool, time.Duration) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.prune(client, now)
	if len(entries) == 0 {
		delete(t.failures, client)
		return false, 0
	}
	t.failures[client] = entries

	if len(entries) < t.threshold {
		return false, 0
	}

	// The lockout clears when enough failures age out to drop the
	// count below the threshold.
	clearing := entries[len(entries)-t.threshold]
	retryAfter := clearing.Add(t.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return true, retryAfter
}

// clear removes all failures for the client.
func (t *failureTracker) clear(client string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, client)
}

// prune drops entries outside the window. Caller must hold the lock.
func (t *failureTracker) prune(client string, now time.Time) []time.Time {
	entries := t.failures[client]
	cutoff := now.Add(-t.window)

	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func (t *failureTracker) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.stopCh:
			return
		}
	}
}

// sweep removes clients whose failures have all aged out.
func (t *failureTracker) sweep() {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for client := range t.failures {
		entries := t.prune(client, now)
		if len(entries) == 0 {
			delete(t.failures, client)
		} else {
			t.failures[client] = entries
		}
	}
}

// Close stops the cleanup goroutine.
func (t *failureTracker) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopCh)
	})
	return nil
}
