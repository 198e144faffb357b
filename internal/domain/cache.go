package domain

import (
	"context"
	"time"
)

// BarCache stores historical bars keyed by (symbol, timeframe, window). A miss
// returns ErrNotFound.
type BarCache interface {
	GetBars(ctx context.Context, key string) ([]Bar, error)
	SetBars(ctx context.Context, key string, bars []Bar) error
}

// RateLimiter enforces request budgets per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides exclusive run locks.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateWindow is one request budget: at most Limit requests per Period.
type RateWindow struct {
	Limit  int
	Period time.Duration
}
