package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGoAdapter adapts a go-redis/v9 Client to the RedisClient interface.
type RedisGoAdapter struct {
	Client *redis.Client
}

// NewRedisGoAdapter creates a new adapter for rate limiting operations.
func NewRedisGoAdapter(client *redis.Client) *RedisGoAdapter {
	return &RedisGoAdapter{Client: client}
}

// Incr atomically increments a key and returns the new value.
func (a *RedisGoAdapter) Incr(ctx context.Context, key string) (int64, error) {
	return a.Client.Incr(ctx, key).Result()
}

// Expire sets a TTL on a key.
func (a *RedisGoAdapter) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return a.Client.Expire(ctx, key, expiration).Err()
}

// Del deletes a key.
func (a *RedisGoAdapter) Del(ctx context.Context, key string) error {
	return a.Client.Del(ctx, key).Err()
}
