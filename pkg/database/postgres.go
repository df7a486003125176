package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// connectTimeout bounds the startup ping.
const connectTimeout = 5 * time.Second

// DB owns the process-wide pgx pool. Repositories receive db.Pool and
// never open their own connections.
// ⭐ SSOT: 数据库连接只在这个包里创建
type DB struct {
	Pool *pgxpool.Pool
}

// New parses the configured URL, applies pool tuning and verifies the
// connection before returning.
// ⭐ SSOT: 唯一调用 pgxpool.NewWithConfig() 的函数
func New(cfg *config.Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close drains and closes the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// PoolStats is the subset of pgxpool.Stat worth logging.
type PoolStats struct {
	AcquiredConns int32         `json:"acquired_conns"`
	IdleConns     int32         `json:"idle_conns"`
	TotalConns    int32         `json:"total_conns"`
	MaxConns      int32         `json:"max_conns"`
	AcquireCount  int64         `json:"acquire_count"`
	AcquireWait   time.Duration `json:"acquire_wait"`
}

// Stats snapshots the current pool state.
func (db *DB) Stats() PoolStats {
	s := db.Pool.Stat()
	return PoolStats{
		AcquiredConns: s.AcquiredConns(),
		IdleConns:     s.IdleConns(),
		TotalConns:    s.TotalConns(),
		MaxConns:      s.MaxConns(),
		AcquireCount:  s.AcquireCount(),
		AcquireWait:   s.AcquireDuration(),
	}
}

// HealthCheck pings the database and reports latency plus pool state.
func (db *DB) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	if err := db.Pool.Ping(ctx); err != nil {
		return &HealthStatus{Error: err.Error()}, err
	}
	return &HealthStatus{
		Healthy:      true,
		ResponseTime: time.Since(start),
		Stats:        db.Stats(),
	}, nil
}

// HealthStatus is one health-check result.
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
}
