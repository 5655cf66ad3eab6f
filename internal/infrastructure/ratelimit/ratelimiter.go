package ratelimit

import (
	"context"
	"time"
)

// Config holds the per-window request budgets for one limiter key class.
// Windows with a non-positive limit are skipped.
type Config struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
}

// RateLimiter is the injected limiting capability. Implementations are
// backed by Redis in production and by process memory in tests and
// single-node deployments.
type RateLimiter interface {
	Allow(ctx context.Context, key string, config Config) (bool, error)
	GetRemaining(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}
