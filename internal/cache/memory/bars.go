// Package memory provides in-process implementations of the cache, rate
// limit, lock and bus capabilities, used when Redis is not configured.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// BarCache is a map-backed bar cache. Slices are copied on the way in and
// out.
type BarCache struct {
	mu   sync.RWMutex
	bars map[string][]domain.Bar
}

var _ domain.BarCache = (*BarCache)(nil)

// NewBarCache creates an empty BarCache.
func NewBarCache() *BarCache {
	return &BarCache{bars: make(map[string][]domain.Bar)}
}

// GetBars returns the bars for key or domain.ErrNotFound.
func (c *BarCache) GetBars(_ context.Context, key string) ([]domain.Bar, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bars, ok := c.bars[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.Bar(nil), bars...), nil
}

// SetBars stores bars under key.
func (c *BarCache) SetBars(_ context.Context, key string, bars []domain.Bar) error {
	c.mu.Lock()
	c.bars[key] = append([]domain.Bar(nil), bars...)
	c.mu.Unlock()
	return nil
}
