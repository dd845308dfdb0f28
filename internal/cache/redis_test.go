package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/observability"
)

func newTestRedisBackend(t *testing.T) (*miniredis.Miniredis, *redisBackend) {
	t.Helper()

	mr := miniredis.RunT(t)

	b, err := newRedisBackend(&config.RedisConfig{
		Address:   mr.Addr(),
		KeyPrefix: "test:",
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return mr, b
}

func TestNewRedisBackendRequiresConfig(t *testing.T) {
	_, err := newRedisBackend(nil, observability.NopLogger())
	require.Error(t, err)
}

func TestNewRedisBackendConnectionFailure(t *testing.T) {
	_, err := newRedisBackend(&config.RedisConfig{
		Address:     "localhost:59999",
		DialTimeout: config.Duration(100 * time.Millisecond),
	}, observability.NopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestNewRedisBackendDefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)

	b, err := newRedisBackend(&config.RedisConfig{Address: mr.Addr()}, observability.NopLogger())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Equal(t, "cache:", b.prefix)
}

func TestRedisBackendRoundtrip(t *testing.T) {
	_, b := newTestRedisBackend(t)
	ctx := context.Background()

	stored := &Entry{
		StatusCode: 200,
		Headers:    map[string][]string{"Content-Type": {"application/json"}},
		Body:       []byte(`{"ok":true}`),
		TenantID:   "acme",
		CreatedAt:  time.Now(),
		TTL:        time.Minute,
	}
	require.NoError(t, b.Set(ctx, "key", stored))

	got, err := b.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, []byte(`{"ok":true}`), got.Body)
	assert.Equal(t, "application/json", got.Headers["Content-Type"][0])
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, time.Minute, got.TTL)
	assert.WithinDuration(t, stored.CreatedAt, got.CreatedAt, time.Second)
}

func TestRedisBackendMiss(t *testing.T) {
	_, b := newTestRedisBackend(t)

	_, err := b.Get(context.Background(), "absent")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisBackendDelegatesExpiryToRedis(t *testing.T) {
	mr, b := newTestRedisBackend(t)
	ctx := context.Background()

	entry := testEntry("payload", time.Now())
	require.NoError(t, b.Set(ctx, "key", entry))

	ttl := mr.TTL("test:key")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(2 * time.Minute)

	_, err := b.Get(ctx, "key")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisBackendDropsCorruptEntry(t *testing.T) {
	mr, b := newTestRedisBackend(t)

	require.NoError(t, mr.Set("test:bad", "{not json"))

	_, err := b.Get(context.Background(), "bad")
	assert.True(t, IsCacheMiss(err))
	assert.False(t, mr.Exists("test:bad"))
}

func TestRedisBackendDelete(t *testing.T) {
	mr, b := newTestRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "key", testEntry("x", time.Now())))
	require.NoError(t, b.Delete(ctx, "key"))

	assert.False(t, mr.Exists("test:key"))
	require.NoError(t, b.Delete(ctx, "key"))
}

func TestRedisBackendDeletePrefix(t *testing.T) {
	mr, b := newTestRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "acme:1", testEntry("a", time.Now())))
	require.NoError(t, b.Set(ctx, "acme:2", testEntry("b", time.Now())))
	require.NoError(t, b.Set(ctx, "globex:1", testEntry("c", time.Now())))

	require.NoError(t, b.DeletePrefix(ctx, "acme:"))

	assert.False(t, mr.Exists("test:acme:1"))
	assert.False(t, mr.Exists("test:acme:2"))
	assert.True(t, mr.Exists("test:globex:1"))
}

func TestRedisBackendPurge(t *testing.T) {
	mr, b := newTestRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "a", testEntry("a", time.Now())))
	require.NoError(t, b.Set(ctx, "b", testEntry("b", time.Now())))

	require.NoError(t, b.Purge(ctx))

	assert.False(t, mr.Exists("test:a"))
	assert.False(t, mr.Exists("test:b"))
}

func TestRedisBackendStats(t *testing.T) {
	_, b := newTestRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "a", testEntry("a", time.Now())))
	require.NoError(t, b.Set(ctx, "b", testEntry("b", time.Now())))

	_, err := b.Get(ctx, "a")
	require.NoError(t, err)
	_, err = b.Get(ctx, "absent")
	require.Error(t, err)

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.Entries)
}

func TestRedisBackendCloseIdempotent(t *testing.T) {
	_, b := newTestRedisBackend(t)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
