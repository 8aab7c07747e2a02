package action

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts invocation attempts per user and action name within a
// fixed window
type RateLimiter interface {
	Allow(ctx context.Context, userID int64, actionName string, config RateLimitConfig) (*Decision, error)
}

// RedisRateLimiter implements fixed-window counting with INCR+EXPIRE so the
// limit is shared across instances
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisRateLimiter creates a Redis-backed limiter
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: "ratelimit:action"}
}

// Allow increments the caller's counter for this action and checks it
// against the configured maximum. The window starts at the first attempt.
func (rl *RedisRateLimiter) Allow(ctx context.Context, userID int64, actionName string, config RateLimitConfig) (*Decision, error) {
	key := fmt.Sprintf("%s:%d:%s", rl.prefix, userID, actionName)
	window := time.Duration(config.WindowMinutes) * time.Minute

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	count := incr.Val()
	remaining := config.MaxAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}

	resetAt := time.Now().Add(window)
	if ttl, err := rl.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		resetAt = time.Now().Add(ttl)
	}

	return &Decision{
		Allowed:   count <= int64(config.MaxAttempts),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears a caller's counter for one action
func (rl *RedisRateLimiter) Reset(ctx context.Context, userID int64, actionName string) error {
	key := fmt.Sprintf("%s:%d:%s", rl.prefix, userID, actionName)
	return rl.client.Del(ctx, key).Err()
}
