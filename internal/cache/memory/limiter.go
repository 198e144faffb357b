package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// RateLimiter keeps one token bucket per (key, window). Each bucket holds
// Limit tokens and refills at Limit per Period.
type RateLimiter struct {
	windows []domain.RateWindow
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string][]*rate.Limiter
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter enforcing windows.
func NewRateLimiter(windows []domain.RateWindow) *RateLimiter {
	return &RateLimiter{
		windows: windows,
		now:     time.Now,
		buckets: make(map[string][]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiters(key string) []*rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	ls, ok := rl.buckets[key]
	if !ok {
		for _, w := range rl.windows {
			every := w.Period / time.Duration(w.Limit)
			ls = append(ls, rate.NewLimiter(rate.Every(every), w.Limit))
		}
		rl.buckets[key] = ls
	}
	return ls
}

// Allow takes a token from every bucket of key, or from none.
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	_, ok := rl.reserve(key)
	return ok, nil
}

// reserve returns the delay until the request may proceed. When ok is false
// nothing was consumed.
func (rl *RateLimiter) reserve(key string) (time.Duration, bool) {
	now := rl.now()
	ls := rl.limiters(key)
	rs := make([]*rate.Reservation, 0, len(ls))
	for _, l := range ls {
		r := l.ReserveN(now, 1)
		if !r.OK() || r.DelayFrom(now) > 0 {
			delay := r.DelayFrom(now)
			r.CancelAt(now)
			for _, prev := range rs {
				prev.CancelAt(now)
			}
			return delay, false
		}
		rs = append(rs, r)
	}
	return 0, true
}

// Wait blocks until key is allowed or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		delay, ok := rl.reserve(key)
		if ok {
			return nil
		}
		if delay <= 0 {
			delay = 10 * time.Millisecond
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("memory: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}
