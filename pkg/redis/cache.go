package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 缓存读写只经过这里
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper. An empty prefix means keys are
// used verbatim.
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) fullKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

// Get unmarshals the cached value into dest. The bool reports a hit;
// a nil reply is a miss, any other failure is an error.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if IsNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.fullKey(key)).Err()
}

// GetOrSet reads through the cache, calling fn on a miss and storing
// its result. fn's result is always delivered into dest even when the
// store fails: a broken cache must not hide a good value.
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	found, err := c.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	value, err := fn()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal failed: %w", err)
	}

	_ = c.Set(ctx, key, value, ttl)
	return nil
}

// Predefined TTLs
const (
	TTLTechLatest = 25 * time.Hour     // 最新技术指标快照
	TTLSyncState  = 7 * 24 * time.Hour // 同步状态与探测计数
	TTLAIBudget   = 2 * 24 * time.Hour // AI 每日调用计数
	TTLSyncLock   = 4 * time.Hour      // 分布式同步锁
)

// Common cache key generators
func TechLatestKey(tsCode string) string {
	return fmt.Sprintf("tech:%s:latest", tsCode)
}

func SyncStatusKey(tradeDate string) string {
	return fmt.Sprintf("sync_status:%s", tradeDate)
}

func ProbeCountKey(tradeDate string) string {
	return fmt.Sprintf("probe_count:%s", tradeDate)
}

func ProbeJobIDKey(tradeDate string) string {
	return fmt.Sprintf("probe_job_id:%s", tradeDate)
}

func AIDailyCallsKey(tradeDate string) string {
	return fmt.Sprintf("ai:daily_calls:%s", tradeDate)
}
