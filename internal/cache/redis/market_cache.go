package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultMarketTTL = 10 * time.Minute

// MarketCache implements domain.MarketCache with JSON-serialized market
// views. Entries are dropped by the engine after every committed mutation,
// so the TTL only bounds staleness from writers in other processes.
//
// Key schema:
//
//	market:{address hex} - string containing the market JSON
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A
// non-positive cache_ttl_minutes selects the default.
func NewMarketCache(c *Client) *MarketCache {
	ttl := c.cacheTTL
	if ttl <= 0 {
		ttl = defaultMarketTTL
	}
	return &MarketCache{rdb: c.rdb, ttl: ttl}
}

func marketKey(addr domain.Address) string { return "market:" + addr.Hex() }

// Set stores a market view.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.Address, err)
	}
	if err := mc.rdb.Set(ctx, marketKey(market.Address), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.Address, err)
	}
	return nil
}

// Get retrieves a market view. It returns domain.ErrNotFound on a miss.
func (mc *MarketCache) Get(ctx context.Context, addr domain.Address) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", addr, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", addr, err)
	}
	return market, nil
}

// Invalidate removes a market view.
func (mc *MarketCache) Invalidate(ctx context.Context, addr domain.Address) error {
	if err := mc.rdb.Del(ctx, marketKey(addr)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", addr, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
