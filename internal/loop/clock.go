// Package loop drives the per-tick control flow. One Driver runs both modes;
// only the Clock differs.
package loop

import (
	"context"
	"time"
)

// Clock yields tick instants. ok is false when the clock is exhausted.
type Clock interface {
	Next(ctx context.Context) (at time.Time, ok bool, err error)
}

// WallClock ticks in real time every Interval. The first tick fires
// immediately; later ticks fire Interval after the previous one, or at once
// when a slow tick has already used up the interval. It never exhausts.
type WallClock struct {
	Interval time.Duration

	now  func() time.Time
	last time.Time
}

// NewWallClock creates a WallClock.
func NewWallClock(interval time.Duration) *WallClock {
	return &WallClock{Interval: interval, now: time.Now}
}

// Next waits for the next tick or ctx cancellation.
func (c *WallClock) Next(ctx context.Context) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	now := c.now()
	if !c.last.IsZero() {
		if wait := c.last.Add(c.Interval).Sub(now); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return time.Time{}, false, ctx.Err()
			case <-timer.C:
			}
			now = c.now()
		}
	}
	c.last = now
	return now.UTC(), true, nil
}

// CursorClock steps through a precomputed, strictly increasing list of
// instants. It never waits.
type CursorClock struct {
	times []time.Time
	pos   int
}

// NewCursorClock creates a CursorClock over times.
func NewCursorClock(times []time.Time) *CursorClock {
	return &CursorClock{times: append([]time.Time(nil), times...)}
}

// Next returns the next instant, or ok=false once every instant was used.
func (c *CursorClock) Next(ctx context.Context) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	if c.pos >= len(c.times) {
		return time.Time{}, false, nil
	}
	t := c.times[c.pos]
	c.pos++
	return t, true, nil
}

// Len returns the total number of instants.
func (c *CursorClock) Len() int { return len(c.times) }

// Remaining returns how many instants are left.
func (c *CursorClock) Remaining() int { return len(c.times) - c.pos }
