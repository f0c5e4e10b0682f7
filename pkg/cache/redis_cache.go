package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Siddarth2230/shortlink/pkg/metrics"
)

const layerRedis = "redis"

// RedisCache wraps Redis client for caching
type RedisCache struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisCache creates a Redis cache with default TTL and a per-operation timeout
func NewRedisCache(client redis.UniversalClient, ttl, timeout time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &RedisCache{
		client:  client,
		ttl:     ttl,
		timeout: timeout,
	}
}

// Get returns the URL stored for code. A Redis failure is reported as
// ErrCacheUnavailable so callers can treat it exactly like ErrCacheMiss.
func (r *RedisCache) Get(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	url, err := r.client.Get(ctx, Key(code)).Result()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues(layerRedis).Inc()
		return "", ErrCacheMiss
	}
	if err != nil {
		metrics.CacheErrors.WithLabelValues(layerRedis, "get").Inc()
		return "", fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	metrics.CacheHits.WithLabelValues(layerRedis).Inc()
	return url, nil
}

// Set stores url under code for ttl. A non-positive ttl writes nothing.
func (r *RedisCache) Set(ctx context.Context, code, url string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNonPositiveTTL
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, Key(code), url, ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues(layerRedis, "set").Inc()
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// SetDefault stores url under code with the cache's default TTL.
func (r *RedisCache) SetDefault(ctx context.Context, code, url string) error {
	return r.Set(ctx, code, url, r.ttl)
}

// Delete removes a key from Redis
func (r *RedisCache) Delete(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, Key(code)).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues(layerRedis, "delete").Inc()
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// TTL reports the remaining lifetime of the entry for code.
func (r *RedisCache) TTL(ctx context.Context, code string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	d, err := r.client.PTTL(ctx, Key(code)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if d < 0 {
		return 0, ErrCacheMiss
	}
	return d, nil
}

// Ping checks that Redis answers within the operation timeout.
func (r *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}
