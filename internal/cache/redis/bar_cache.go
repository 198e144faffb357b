package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// BarCache stores historical bars as JSON strings at "bars:{key}". Historical
// bars never change, so the TTL only bounds memory.
type BarCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.BarCache = (*BarCache)(nil)

// NewBarCache creates a BarCache. A zero ttl keeps entries forever.
func NewBarCache(c *Client, ttl time.Duration) *BarCache {
	return &BarCache{rdb: c.Underlying(), ttl: ttl}
}

func barKey(key string) string {
	return "bars:" + key
}

// GetBars returns the cached bars for key or domain.ErrNotFound.
func (bc *BarCache) GetBars(ctx context.Context, key string) ([]domain.Bar, error) {
	raw, err := bc.rdb.Get(ctx, barKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get bars %s: %w", key, err)
	}
	var bars []domain.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("redis: decode bars %s: %w", key, err)
	}
	return bars, nil
}

// SetBars stores bars under key.
func (bc *BarCache) SetBars(ctx context.Context, key string, bars []domain.Bar) error {
	raw, err := json.Marshal(bars)
	if err != nil {
		return fmt.Errorf("redis: encode bars %s: %w", key, err)
	}
	if err := bc.rdb.Set(ctx, barKey(key), raw, bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set bars %s: %w", key, err)
	}
	return nil
}
