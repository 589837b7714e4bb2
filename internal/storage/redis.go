package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ RateLimiter = (*RedisRateLimiter)(nil)

const rateLimitKeyPrefix = "ratelimit:"

type RedisConfig struct {
	Client *redis.Client
}

// RedisRateLimiter is a sliding-window limiter shared across replicas.
type RedisRateLimiter struct {
	client     *redis.Client
	rateLimit  int
	rateWindow time.Duration
}

func NewRedisRateLimiter(cfg RedisConfig, rateLimit int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:     cfg.Client,
		rateLimit:  rateLimit,
		rateWindow: time.Second,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	params := rateLimitParams{
		window: r.rateWindow,
		limit:  r.rateLimit,
		ttl:    r.rateWindow + time.Second,
		member: uuid.NewString(),
	}

	allowed, err := runRateLimitScript(ctx, r.client, rateLimitKeyPrefix+key, params)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}

	return RateLimitResult{
		Allowed:    allowed,
		RetryAfter: r.rateWindow,
	}, nil
}
