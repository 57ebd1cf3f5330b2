package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// ReplayGuard implements domain.ReplayGuard with SET NX. Every API process
// shares the keyspace, so a signed request is accepted once cluster-wide.
type ReplayGuard struct {
	rdb *redis.Client
}

// NewReplayGuard creates a ReplayGuard backed by the given Client.
func NewReplayGuard(c *Client) *ReplayGuard {
	return &ReplayGuard{rdb: c.rdb}
}

func replayKey(key string) string {
	return "replay:" + key
}

// FirstUse stores key for ttl and reports whether it was new.
func (g *ReplayGuard) FirstUse(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	fresh, err := g.rdb.SetNX(ctx, replayKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: replay check: %w", err)
	}
	return fresh, nil
}

var _ domain.ReplayGuard = (*ReplayGuard)(nil)
