package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "bars:PLTR|1Hour|2025-11-03", barKey("PLTR|1Hour|2025-11-03"))
	assert.Equal(t, "lock:tradeloop:live", lockKey("tradeloop:live"))
	assert.Equal(t, "ratelimit:executor:submit_order:1h0m0s",
		rateLimitKey("executor:submit_order", domain.RateWindow{Limit: 1000, Period: time.Hour}))
}

func TestFromConfig(t *testing.T) {
	cc := FromConfig(config.RedisConfig{Addr: "localhost:6379", DB: 2, PoolSize: 5, TLSEnabled: true})
	assert.Equal(t, ClientConfig{Addr: "localhost:6379", DB: 2, PoolSize: 5, TLSEnabled: true}, cc)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
