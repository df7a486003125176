package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hzhao/stock-selector/pkg/config"
)

// pingTimeout bounds the startup connectivity check.
const pingTimeout = 3 * time.Second

// Client wraps go-redis with a disabled mode: when Redis is turned off
// in config every consumer degrades (cache misses, locks always
// acquired, counters stay zero) instead of erroring.
// ⭐ SSOT: Redis 连接只在这里管理
type Client struct {
	rdb     *redis.Client
	enabled bool
}

// New connects per config, or returns a disabled client when
// REDIS_ENABLED is false. A configured-but-unreachable Redis is an
// error: silent degradation is only for the deliberate opt-out.
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{enabled: false}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{rdb: rdb, enabled: true}, nil
}

// Close releases the connection. Safe on a disabled client.
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled reports whether Redis operations will actually hit a server.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Redis exposes the driver for pipelines and raw commands.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// IsNil reports whether err is the redis nil-reply error, so callers
// don't need to import the driver just to tell "missing" from broken.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
