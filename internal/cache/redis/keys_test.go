package redis

import (
	"crypto/tls"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperlocal/internal/config"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

func TestKeySchema(t *testing.T) {
	var addr domain.Address
	addr[31] = 0xab

	assert.Equal(t, "market:"+addr.Hex(), marketKey(addr))
	assert.Equal(t, "lock:agent:market:"+addr.Hex(), lockKey(MarketLockKey(addr)))
	assert.Equal(t, "ratelimit:ip:10.0.0.1", rateLimitKey("ip:10.0.0.1"))
	assert.Equal(t, "replay:0xabc", replayKey("0xabc"))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.True(t, strings.Contains(slidingWindowLua, "ZREMRANGEBYSCORE"))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ch:*"))
	assert.False(t, hasPattern("ch:order"))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := options(config.RedisConfig{Addr: "cache:6379", DB: 2, PoolSize: 7, MaxRetries: 1})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Nil(t, opts.TLSConfig)

	opts = options(config.RedisConfig{Addr: "cache:6380", TLSEnabled: true})
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
}

func TestConstructorsReadClientSizing(t *testing.T) {
	c := &Client{cacheTTL: 3 * time.Minute, streamMaxLen: 50}
	assert.Equal(t, 3*time.Minute, NewMarketCache(c).ttl)
	assert.Equal(t, int64(50), NewSignalBus(c).maxLen)

	c = &Client{}
	assert.Equal(t, defaultMarketTTL, NewMarketCache(c).ttl)
	assert.Equal(t, int64(defaultStreamMaxLen), NewSignalBus(c).maxLen)
}
