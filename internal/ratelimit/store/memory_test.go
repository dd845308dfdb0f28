package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "key", 42, 0))

	value, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsKeyNotFound(err))
}

func TestMemoryStoreExpiration(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "key", 1, 30*time.Millisecond))

	value, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	time.Sleep(60 * time.Millisecond)

	_, err = s.Get(ctx, "key")
	assert.True(t, IsKeyNotFound(err))
}

func TestMemoryStoreIncrement(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	ctx := context.Background()

	value, err := s.Increment(ctx, "counter", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	value, err = s.Increment(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), value)
}

func TestMemoryStoreIncrementWithExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	ctx := context.Background()

	value, err := s.IncrementWithExpiry(ctx, "counter", 1, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	time.Sleep(60 * time.Millisecond)

	// The expired counter restarts from zero.
	value, err = s.IncrementWithExpiry(ctx, "counter", 1, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
}

func TestMemoryStoreIncrementConcurrent(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, err := s.Increment(ctx, "counter", 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	value, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*perGoroutine), value)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "key", 1, 0))
	require.NoError(t, s.Delete(ctx, "key"))

	_, err := s.Get(ctx, "key")
	assert.True(t, IsKeyNotFound(err))
}

func TestMemoryStoreDeleteMissing(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	assert.NoError(t, s.Delete(context.Background(), "missing"))
}

func TestMemoryStoreDeletePrefix(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "tb:client:a:tokens", 1, 0))
	require.NoError(t, s.Set(ctx, "tb:client:a:time", 2, 0))
	require.NoError(t, s.Set(ctx, "tb:client:b:tokens", 3, 0))

	require.NoError(t, s.DeletePrefix(ctx, "tb:client:a"))

	_, err := s.Get(ctx, "tb:client:a:tokens")
	assert.True(t, IsKeyNotFound(err))
	_, err = s.Get(ctx, "tb:client:a:time")
	assert.True(t, IsKeyNotFound(err))

	value, err := s.Get(ctx, "tb:client:b:tokens")
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)
}

func TestMemoryStoreSize(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	assert.Equal(t, 0, s.Size())

	require.NoError(t, s.Set(ctx, "a", 1, 0))
	require.NoError(t, s.Set(ctx, "b", 2, 0))
	assert.Equal(t, 2, s.Size())
}

func TestMemoryStoreCleanupReclaimsExpired(t *testing.T) {
	s := NewMemoryStoreWithCleanupInterval(20 * time.Millisecond)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "short", 1, 10*time.Millisecond))
	require.NoError(t, s.Set(ctx, "long", 2, time.Hour))

	require.Eventually(t, func() bool {
		return s.Size() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
