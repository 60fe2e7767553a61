package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// window is the sliding window length for per-key limits.
const window = time.Minute

// Limiter is used to enforce per-key rate limits.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// NoopLimiter allows all requests (single-node deployments without Redis).
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, key string) bool {
	return true
}

// RateLimiter implements distributed rate limiting using Redis
// with a sliding window over a sorted set per API key.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// AllowWithDetails checks whether one more request fits the key's per-minute
// limit and reports the remaining allowance and when the window resets.
// A limit of zero or less means unlimited: remaining is -1 and resetAt is the
// zero time. remaining is 0 when the request was denied.
func (rl *RateLimiter) AllowWithDetails(ctx context.Context, apiKeyID string, limit int) (bool, int, time.Time, error) {
	if limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	key := fmt.Sprintf("ratelimit:%s", apiKeyID)
	now := time.Now()
	windowStart := now.Add(-window)

	pipe := rl.client.Pipeline()

	// Remove old entries outside the window
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMilli()))

	// Count current requests in window
	countCmd := pipe.ZCard(ctx, key)

	// Add current request with timestamp as score
	timestamp := now.UnixMilli()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(timestamp),
		Member: fmt.Sprintf("%d:%d", timestamp, now.UnixNano()),
	})

	// Set expiry on the key (cleanup old keys)
	pipe.Expire(ctx, key, 2*window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	// resetAt is a conservative bound: by then the whole current window has
	// rolled out.
	resetAt := now.Add(window)

	currentCount := int(countCmd.Val())
	if currentCount >= limit {
		return false, 0, resetAt, nil
	}
	return true, limit - currentCount - 1, resetAt, nil
}

// GetCurrentUsage returns the current request count in the window
func (rl *RateLimiter) GetCurrentUsage(ctx context.Context, apiKeyID string) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s", apiKeyID)
	windowStart := time.Now().Add(-window)

	// Remove old entries
	if err := rl.client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMilli())).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	// Count current requests
	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}

	return count, nil
}

// Reset resets the rate limit for a key
func (rl *RateLimiter) Reset(ctx context.Context, apiKeyID string) error {
	key := fmt.Sprintf("ratelimit:%s", apiKeyID)
	return rl.client.Del(ctx, key).Err()
}
