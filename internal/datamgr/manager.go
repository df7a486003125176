// Package datamgr is the aggregate data access layer: it coordinates
// the vendor client, the raw store, the ETL transformers and the
// progress tracker, and exposes the operations the orchestrator and
// the CLI call. It holds no state beyond its constructor dependencies.
package datamgr

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hzhao/stock-selector/internal/etl"
	"github.com/hzhao/stock-selector/internal/progress"
	"github.com/hzhao/stock-selector/internal/rawstore"
	"github.com/hzhao/stock-selector/internal/tushare"
	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/logger"
	"github.com/hzhao/stock-selector/pkg/redis"
)

// Manager is the data façade
// ⭐ SSOT: 同步与 ETL 的聚合操作只在这里编排
type Manager struct {
	pool    *pgxpool.Pool
	store   *rawstore.Store
	client  *tushare.Client
	tracker *progress.Tracker
	lock    *redis.Lock
	cfg     *config.Config
	logger  *logger.Logger
}

// New creates a data manager. The sync lock token identifies this
// process so a stale release cannot drop another holder's lock.
func New(pool *pgxpool.Pool, store *rawstore.Store, client *tushare.Client, tracker *progress.Tracker, rdb *redis.Client, cfg *config.Config, log *logger.Logger) *Manager {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	token := fmt.Sprintf("%s-%d", host, os.Getpid())

	return &Manager{
		pool:    pool,
		store:   store,
		client:  client,
		tracker: tracker,
		lock:    redis.NewLock(rdb, redis.SyncLockKey, token, redis.TTLSyncLock),
		cfg:     cfg,
		logger:  log.WithField("component", "datamgr"),
	}
}

// Tracker exposes the progress tracker for callers that drive
// per-entity processing.
func (m *Manager) Tracker() *progress.Tracker {
	return m.tracker
}

// AcquireSyncLock takes the cluster-wide sync lock. When Redis is
// disabled it always succeeds (single-process mode).
func (m *Manager) AcquireSyncLock(ctx context.Context) (bool, error) {
	return m.lock.Acquire(ctx)
}

// ReleaseSyncLock drops the sync lock if this process still owns it.
func (m *Manager) ReleaseSyncLock(ctx context.Context) error {
	return m.lock.Release(ctx)
}

// ClearSyncLock drops the sync lock no matter who holds it. Startup
// recovery uses it to clear a lock orphaned by a crash; the TTL would
// expire it eventually, this just avoids the wait.
func (m *Manager) ClearSyncLock(ctx context.Context) error {
	return m.lock.ForceRelease(ctx)
}

// SyncStockList refreshes the full entity list: raw rows for every
// list status, then the stocks business table. Returns the number of
// business rows written.
func (m *Manager) SyncStockList(ctx context.Context) (int, error) {
	var rawAll []map[string]interface{}

	for _, status := range []string{"L", "D", "P"} {
		res, err := m.client.StockBasic(ctx, status)
		if err != nil {
			return 0, fmt.Errorf("fetch stock_basic %s: %w", status, err)
		}
		rows := rawRows(res, colsStockBasic, 1)
		if _, err := m.store.UpsertRows(ctx, tableRawStockBasic, colsStockBasic, keysStockBasic, rows); err != nil {
			return 0, err
		}
		rawAll = append(rawAll, res.Maps()...)
	}

	infos := etl.TransformStockBasic(rawAll)
	bizRows := make([][]interface{}, 0, len(infos))
	for _, info := range infos {
		bizRows = append(bizRows, stockRow(info))
	}

	written, err := m.store.UpsertRows(ctx, "stocks", colsStocks, []string{"ts_code"}, bizRows)
	if err != nil {
		return 0, err
	}

	m.logger.WithField("rows", written).Info("Stock list synced")
	return written, nil
}

// SyncTradeCalendar refreshes the exchange calendar over [start, end]:
// raw rows, then the trade_calendar business table.
func (m *Manager) SyncTradeCalendar(ctx context.Context, start, end string) (int, error) {
	res, err := m.client.TradeCal(ctx, "SSE", start, end)
	if err != nil {
		return 0, fmt.Errorf("fetch trade_cal: %w", err)
	}

	rows := rawRows(res, colsTradeCal, 2)
	if _, err := m.store.UpsertRows(ctx, tableRawTradeCal, colsTradeCal, keysTradeCal, rows); err != nil {
		return 0, err
	}

	days := etl.TransformTradeCal(res.Maps())
	bizRows := make([][]interface{}, 0, len(days))
	for _, day := range days {
		bizRows = append(bizRows, calendarRow(day))
	}

	written, err := m.store.UpsertRows(ctx, "trade_calendar", colsCalendar, []string{"exchange", "cal_date"}, bizRows)
	if err != nil {
		return 0, err
	}

	m.logger.WithFields(map[string]interface{}{
		"start": start,
		"end":   end,
		"rows":  written,
	}).Info("Trade calendar synced")
	return written, nil
}
