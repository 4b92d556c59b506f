package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lgs-platform/backend/internal/models"
)

const redisKeyPrefix = "item:"

// RedisBackend stores cache entries in Redis with native TTL expiry.
// Used when multiple pipeline instances share a cache.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects and pings; a failed ping is a configuration
// error and aborts startup rather than degrading silently.
func NewRedisBackend(ctx context.Context, url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Get(ctx context.Context, key string) (*models.GeneratedItem, error) {
	data, err := b.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var item models.GeneratedItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode cached item: %w", err)
	}
	return &item, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, item *models.GeneratedItem, ttl time.Duration) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	if err := b.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (b *RedisBackend) Len(ctx context.Context) int {
	n, err := b.client.DBSize(ctx).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close releases the underlying connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
