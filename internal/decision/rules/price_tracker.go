package rules

import (
	"sync"
	"time"
)

// PricePoint records a single price observation at a point in time.
type PricePoint struct {
	Price float64
	Time  time.Time
}

// PriceTracker keeps a sliding window of observed prices per symbol. The
// momentum role compares each observation with the one before it.
type PriceTracker struct {
	history    map[string][]PricePoint
	windowSize time.Duration
	mu         sync.RWMutex
}

// NewPriceTracker creates an empty tracker. Points older than windowSize
// relative to the newest observation are discarded.
func NewPriceTracker(windowSize time.Duration) *PriceTracker {
	return &PriceTracker{
		history:    make(map[string][]PricePoint),
		windowSize: windowSize,
	}
}

// Observe records price for symbol and returns the previous observation, if
// any. Observations at or before the latest recorded time are ignored and
// report the point before the latest, so a repeated tick sees the same
// comparison.
func (pt *PriceTracker) Observe(symbol string, price float64, ts time.Time) (PricePoint, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pts := pt.history[symbol]
	if n := len(pts); n > 0 && !ts.After(pts[n-1].Time) {
		if n > 1 {
			return pts[n-2], true
		}
		return PricePoint{}, false
	}

	var prev PricePoint
	ok := false
	if n := len(pts); n > 0 {
		prev, ok = pts[n-1], true
	}
	pt.history[symbol] = append(pts, PricePoint{Price: price, Time: ts})
	pt.trim(symbol, ts)
	return prev, ok
}

// History returns a copy of the window for symbol.
func (pt *PriceTracker) History(symbol string) []PricePoint {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	src := pt.history[symbol]
	if len(src) == 0 {
		return nil
	}
	out := make([]PricePoint, len(src))
	copy(out, src)
	return out
}

// trim removes all points older than windowSize relative to now, always
// keeping the newest point. The caller must hold pt.mu.
func (pt *PriceTracker) trim(symbol string, now time.Time) {
	if pt.windowSize <= 0 {
		return
	}
	cutoff := now.Add(-pt.windowSize)
	pts := pt.history[symbol]

	i := 0
	for i < len(pts)-1 && pts[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		pt.history[symbol] = pts[i:]
	}
}
