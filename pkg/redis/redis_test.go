package redis

import (
	"context"
	"testing"

	"github.com/hzhao/stock-selector/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
}

func TestLock_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, _ := New(cfg)
	lock := NewLock(client, SyncLockKey, "job-1", TTLSyncLock)

	// Without Redis the lock degrades to single-process mode
	ok, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Error("Expected lock to be acquired when Redis disabled")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestCounter_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, _ := New(cfg)
	counter := NewCounter(client)

	n, err := counter.Incr(context.Background(), AIDailyCallsKey("2024-06-14"), TTLAIBudget)
	if err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Expected zero usage when Redis disabled, got %d", n)
	}
}

func TestCache_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, _ := New(cfg)
	cache := NewCache(client, "test")

	// When Redis is disabled, cache operations should be no-ops
	var result string
	found, err := cache.Get(context.Background(), "key", &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Expected cache miss when Redis disabled")
	}
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{
			name:     "TechLatestKey",
			fn:       func() string { return TechLatestKey("600519.SH") },
			expected: "tech:600519.SH:latest",
		},
		{
			name:     "SyncStatusKey",
			fn:       func() string { return SyncStatusKey("2024-06-14") },
			expected: "sync_status:2024-06-14",
		},
		{
			name:     "ProbeCountKey",
			fn:       func() string { return ProbeCountKey("2024-06-14") },
			expected: "probe_count:2024-06-14",
		},
		{
			name:     "AIDailyCallsKey",
			fn:       func() string { return AIDailyCallsKey("2024-06-14") },
			expected: "ai:daily_calls:2024-06-14",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
