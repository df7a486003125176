package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter implements an expiring usage counter (INCR + EXPIRE)
// ⭐ SSOT: 配额计数只在这里实现
type Counter struct {
	client *Client
}

// NewCounter creates a counter helper.
func NewCounter(client *Client) *Counter {
	return &Counter{client: client}
}

// Incr increments the counter and returns the new value. The TTL is set
// atomically on first increment so the key always expires.
func (c *Counter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if !c.client.Enabled() {
		// Without Redis there is no shared quota; report zero usage.
		return 0, nil
	}

	script := redis.NewScript(`
		local n = redis.call('INCR', KEYS[1])
		if n == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return n
	`)

	n, err := script.Run(ctx, c.client.Redis(), []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("counter incr failed: %w", err)
	}
	return n, nil
}

// Get returns the current counter value, 0 when the key is missing.
func (c *Counter) Get(ctx context.Context, key string) (int64, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	n, err := c.client.Redis().Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter get failed: %w", err)
	}
	return n, nil
}
