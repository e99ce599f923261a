package middleware

import (
	"context"
	"fmt"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a Limiter backed by redis_rate's GCRA implementation, so every
// replica draws from the same per-client allowance.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisRateLimiter creates a limiter that stores its state in rdb under keys starting
// with prefix.
func NewRedisRateLimiter(rdb redis.UniversalClient, prefix string, config RateLimitConfig) *RedisRateLimiter {
	limit := redis_rate.PerMinute(config.RequestsPerMinute)
	if config.BurstSize > 0 {
		limit.Burst = config.BurstSize
	}
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   limit,
		prefix:  prefix,
	}
}

// Allow implements Limiter
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := r.limiter.Allow(ctx, r.prefix+key, r.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit check: %w", err)
	}
	d := Decision{Allowed: res.Allowed > 0, Remaining: res.Remaining}
	if !d.Allowed {
		d.RetryAfter = res.RetryAfter
	}
	return d, nil
}

// Limit implements Limiter
func (r *RedisRateLimiter) Limit() int { return r.limit.Rate }

// Backend implements Limiter
func (r *RedisRateLimiter) Backend() string { return "redis" }
