package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRedisUnavailable is returned when Redis is unavailable and fallback is disabled.
var ErrRedisUnavailable = errors.New("redis unavailable for rate limiting")

// RedisClient defines the Redis operations needed for distributed rate limiting.
type RedisClient interface {
	// Incr atomically increments a key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets a TTL on a key.
	Expire(ctx context.Context, key string, expiration time.Duration) error
	// Del deletes a key.
	Del(ctx context.Context, key string) error
}

// RedisLimiterConfig contains configuration for the Redis limiter.
type RedisLimiterConfig struct {
	// KeyPrefix is the prefix for all Redis keys used by the limiter.
	KeyPrefix string
	// EnableFallback enables in-memory counting when Redis is unavailable.
	// With fallback disabled, an unavailable Redis denies the call with
	// ErrRedisUnavailable.
	EnableFallback bool
}

// DefaultRedisLimiterConfig returns default configuration.
func DefaultRedisLimiterConfig() RedisLimiterConfig {
	return RedisLimiterConfig{
		KeyPrefix:      "ratelimit:",
		EnableFallback: true,
	}
}

// RedisLimiter implements the Limiter interface with fixed-window counters in
// Redis. INCR supplies the atomic check-and-increment; the window rolls
// forward by embedding its start timestamp in the key.
type RedisLimiter struct {
	client   RedisClient
	config   RedisLimiterConfig
	fallback *MemoryLimiter

	redisAvailable   bool
	redisAvailableMu sync.RWMutex
}

// NewRedisLimiter creates a new distributed limiter using Redis.
func NewRedisLimiter(client RedisClient, config RedisLimiterConfig) *RedisLimiter {
	limiter := &RedisLimiter{
		client:         client,
		config:         config,
		redisAvailable: true,
	}
	if config.EnableFallback {
		limiter.fallback = NewMemoryLimiter()
	}
	return limiter
}

// buildKey constructs the Redis key for an endpoint's counter in the current window.
func (r *RedisLimiter) buildKey(endpoint string, windowStart int64) string {
	return fmt.Sprintf("%s%s:%d", r.config.KeyPrefix, endpoint, windowStart)
}

// windowStart returns the start timestamp for the current window.
func windowStart(window time.Duration) int64 {
	return time.Now().Truncate(window).Unix()
}

// Allow checks whether a call to endpoint fits its budget, counting the call.
func (r *RedisLimiter) Allow(ctx context.Context, endpoint string, limit Limit) error {
	key := r.buildKey(endpoint, windowStart(limit.Window))

	r.redisAvailableMu.RLock()
	available := r.redisAvailable
	r.redisAvailableMu.RUnlock()

	if !available {
		return r.handleFallback(ctx, endpoint, limit)
	}

	count, err := r.client.Incr(ctx, key)
	if err != nil {
		r.markRedisUnavailable()
		return r.handleFallback(ctx, endpoint, limit)
	}
	r.markRedisAvailable()

	if count == 1 {
		// TTL slightly longer than the window so expiry never races the
		// last permitted call. Expire failures leave an orphaned key that
		// Redis cleans up once it does expire.
		_ = r.client.Expire(ctx, key, limit.Window+time.Second)
	}

	if count > int64(limit.Max) {
		return &LimitExceededError{Endpoint: endpoint, Limit: limit}
	}
	return nil
}

// handleFallback counts locally when Redis is unavailable.
func (r *RedisLimiter) handleFallback(ctx context.Context, endpoint string, limit Limit) error {
	if !r.config.EnableFallback || r.fallback == nil {
		return ErrRedisUnavailable
	}
	return r.fallback.Allow(ctx, endpoint, limit)
}

func (r *RedisLimiter) markRedisUnavailable() {
	r.redisAvailableMu.Lock()
	r.redisAvailable = false
	r.redisAvailableMu.Unlock()
}

func (r *RedisLimiter) markRedisAvailable() {
	r.redisAvailableMu.Lock()
	r.redisAvailable = true
	r.redisAvailableMu.Unlock()
}

// IsRedisAvailable returns whether Redis is currently considered available.
func (r *RedisLimiter) IsRedisAvailable() bool {
	r.redisAvailableMu.RLock()
	defer r.redisAvailableMu.RUnlock()
	return r.redisAvailable
}

// Reset clears the counter for an endpoint in the current window.
func (r *RedisLimiter) Reset(ctx context.Context, endpoint string, limit Limit) error {
	key := r.buildKey(endpoint, windowStart(limit.Window))
	if err := r.client.Del(ctx, key); err != nil {
		r.markRedisUnavailable()
		if r.fallback != nil {
			r.fallback.Reset(endpoint)
			return nil
		}
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	r.markRedisAvailable()
	return nil
}
