// Package redis implements the market view cache, agent locks, API rate
// limiting, signed-request replay protection and the event bus on top of
// go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hyperlocal/internal/config"
)

// Client is the shared connection every Redis-backed component is built
// from. It also carries the cache and stream sizing from the [redis] config
// section so constructors need only the client.
type Client struct {
	rdb          *redis.Client
	cacheTTL     time.Duration
	streamMaxLen int
}

// New connects to the server described by cfg and fails unless it answers
// a PING.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(options(cfg))
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}
	return &Client{
		rdb:          rdb,
		cacheTTL:     time.Duration(cfg.CacheTTLMinutes) * time.Minute,
		streamMaxLen: cfg.StreamMaxLen,
	}, nil
}

func options(cfg config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Ping is the health check for the redis dependency.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return c.rdb.Close() }
