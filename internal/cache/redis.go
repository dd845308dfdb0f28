package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/observability"
)

const defaultRedisKeyPrefix = "cache:"

// redisBackend stores entries in redis as JSON documents. Entry
// expiry is delegated to redis key TTLs, so Get never observes a
// stale entry.
type redisBackend struct {
	client *redis.Client
	prefix string
	logger observability.Logger

	hits   int64
	misses int64

	closed bool
	mu     sync.Mutex
}

func newRedisBackend(cfg *config.RedisConfig, logger observability.Logger) (*redisBackend, error) {
	if cfg == nil {
		return nil, errors.New("redis cache backend requires a redis configuration")
	}

	dialTimeout := cfg.DialTimeout.Duration()
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}

	logger.Info("redis cache backend initialized",
		observability.String("address", cfg.Address),
		observability.Int("db", cfg.DB),
	)

	return &redisBackend{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (b *redisBackend) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			atomic.AddInt64(&b.misses, 1)
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt document is unusable; drop it and report a miss.
		_ = b.client.Del(ctx, b.prefix+key).Err()
		atomic.AddInt64(&b.misses, 1)
		return nil, ErrCacheMiss
	}

	atomic.AddInt64(&b.hits, 1)
	return &entry, nil
}

func (b *redisBackend) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := b.client.Set(ctx, b.prefix+key, data, entry.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (b *redisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key under the prefix using SCAN so large
// keyspaces do not block the server.
func (b *redisBackend) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := b.prefix + prefix + "*"
	var cursor uint64

	for {
		keys, next, err := b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan %q: %w", pattern, err)
		}

		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del matched keys: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (b *redisBackend) Purge(ctx context.Context) error {
	return b.DeletePrefix(ctx, "")
}

func (b *redisBackend) Stats() Stats {
	var entries int64

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pattern := b.prefix + "*"
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			break
		}
		entries += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return Stats{
		Hits:    atomic.LoadInt64(&b.hits),
		Misses:  atomic.LoadInt64(&b.misses),
		Entries: entries,
	}
}

func (b *redisBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	return b.client.Close()
}
