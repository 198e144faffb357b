package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// waitPollInterval is how often Wait retries a denied request.
const waitPollInterval = 200 * time.Millisecond

// RateLimiter enforces every configured window atomically with one sorted
// set per (key, window) and a Lua script. A request is counted only when all
// windows admit it.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	windows       []domain.RateWindow
	now           func() time.Time
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter enforcing windows.
func NewRateLimiter(c *Client, windows []domain.RateWindow) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
		windows:       windows,
		now:           time.Now,
	}
}

func rateLimitKey(key string, w domain.RateWindow) string {
	return fmt.Sprintf("ratelimit:%s:%s", key, w.Period)
}

// Allow reports whether a request for key fits every window, counting it if
// so.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if len(rl.windows) == 0 {
		return true, nil
	}
	keys := make([]string, 0, len(rl.windows))
	args := []any{rl.now().UnixMicro(), uuid.NewString()}
	for _, w := range rl.windows {
		keys = append(keys, rateLimitKey(key, w))
		args = append(args, w.Period.Microseconds(), w.Limit)
	}

	result, err := rl.slidingWindow.Run(ctx, rl.rdb, keys, args...).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}

// Wait blocks until key is allowed or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := rl.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}
