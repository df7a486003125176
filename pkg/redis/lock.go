package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock implements a best-effort distributed lock using SET NX
// ⭐ SSOT: 分布式锁只在这里实现
type Lock struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// NewLock creates a lock helper. The token identifies the holder so a
// stale release from another process cannot drop someone else's lock.
func NewLock(client *Client, key, token string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		token:  token,
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock. Returns true if taken.
// When Redis is disabled the lock always succeeds: single-process mode.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	if !l.client.Enabled() {
		return true, nil
	}

	ok, err := l.client.Redis().SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire failed: %w", err)
	}
	return ok, nil
}

// Release drops the lock only if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	if !l.client.Enabled() {
		return nil
	}

	script := redis.NewScript(`
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		end
		return 0
	`)

	if err := script.Run(ctx, l.client.Redis(), []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}

// ForceRelease drops the lock regardless of holder. Only startup
// recovery uses this, to clear a lock left by a crashed process.
func (l *Lock) ForceRelease(ctx context.Context) error {
	if !l.client.Enabled() {
		return nil
	}

	if err := l.client.Redis().Del(ctx, l.key).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("lock force release failed: %w", err)
	}
	return nil
}

// Holder returns the current lock owner token, or "" when free.
func (l *Lock) Holder(ctx context.Context) (string, error) {
	if !l.client.Enabled() {
		return "", nil
	}

	val, err := l.client.Redis().Get(ctx, l.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lock holder lookup failed: %w", err)
	}
	return val, nil
}

// SyncLockKey is the single cluster-wide sync lock.
const SyncLockKey = "stock_selector:sync_lock"
