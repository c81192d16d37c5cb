// Package ratelimit counts requests per client in fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobboard/server/internal/config"
)

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left in the window, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(wait.Seconds())) * time.Second
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close() error
}

// New builds the limiter selected by cfg.Backend.
func New(cfg config.RateLimitConfig, redisCfg config.RedisConfig) (Limiter, error) {
	switch cfg.Backend {
	case config.RateLimitBackendRedis:
		opts, err := redis.ParseURL(redisCfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return NewRedisLimiter(redis.NewClient(opts), cfg.Window, cfg.Max, true), nil
	case config.RateLimitBackendMemory, "":
		return NewMemoryLimiter(cfg.Window, cfg.Max), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}
