package datamgr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hzhao/stock-selector/internal/etl"
	"github.com/hzhao/stock-selector/internal/tushare"
)

// RawDailyCounts reports per-endpoint raw row counts for one date.
type RawDailyCounts struct {
	Daily      int
	AdjFactor  int
	DailyBasic int
	StkLimit   int
	Moneyflow  int
	TopList    int
}

// SyncRawDaily ingests one trade date across the daily endpoints in
// parallel. daily / adj_factor / daily_basic feed the ETL and are
// required; stk_limit / moneyflow / top_list are raw-only archives and
// their failures are logged, not raised.
func (m *Manager) SyncRawDaily(ctx context.Context, target time.Time) (*RawDailyCounts, error) {
	key := etl.DateKey(target)
	counts := &RawDailyCounts{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := m.fetchAndStore(gctx, tableRawDaily, colsDaily, keysCodeDate, 2, func(c context.Context) (*tushare.Result, error) {
			return m.client.Daily(c, key)
		})
		counts.Daily = n
		return err
	})
	g.Go(func() error {
		n, err := m.fetchAndStore(gctx, tableRawAdjFactor, colsAdjFactor, keysCodeDate, 2, func(c context.Context) (*tushare.Result, error) {
			return m.client.AdjFactor(c, key)
		})
		counts.AdjFactor = n
		return err
	})
	g.Go(func() error {
		n, err := m.fetchAndStore(gctx, tableRawDailyBasic, colsDailyBasic, keysCodeDate, 2, func(c context.Context) (*tushare.Result, error) {
			return m.client.DailyBasic(c, key)
		})
		counts.DailyBasic = n
		return err
	})

	g.Go(func() error {
		n, err := m.fetchAndStore(gctx, tableRawStkLimit, colsStkLimit, keysCodeDate, 2, func(c context.Context) (*tushare.Result, error) {
			return m.client.StkLimit(c, key)
		})
		if err != nil {
			m.logger.WithError(err).WithField("date", key).Warn("stk_limit ingest failed, skipped")
			return nil
		}
		counts.StkLimit = n
		return nil
	})
	g.Go(func() error {
		n, err := m.fetchAndStore(gctx, tableRawMoneyflow, colsMoneyflow, keysCodeDate, 2, func(c context.Context) (*tushare.Result, error) {
			return m.client.Moneyflow(c, key)
		})
		if err != nil {
			m.logger.WithError(err).WithField("date", key).Warn("moneyflow ingest failed, skipped")
			return nil
		}
		counts.Moneyflow = n
		return nil
	})
	g.Go(func() error {
		n, err := m.fetchAndStore(gctx, tableRawTopList, colsTopList, keysTopList, 3, func(c context.Context) (*tushare.Result, error) {
			return m.client.TopList(c, key)
		})
		if err != nil {
			m.logger.WithError(err).WithField("date", key).Warn("top_list ingest failed, skipped")
			return nil
		}
		counts.TopList = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return counts, fmt.Errorf("sync raw daily %s: %w", key, err)
	}

	m.logger.WithFields(map[string]interface{}{
		"date":        key,
		"daily":       counts.Daily,
		"adj_factor":  counts.AdjFactor,
		"daily_basic": counts.DailyBasic,
	}).Info("Raw daily ingested")
	return counts, nil
}

func (m *Manager) fetchAndStore(ctx context.Context, table string, columns, keys []string, keyCount int, fetch func(context.Context) (*tushare.Result, error)) (int, error) {
	res, err := fetch(ctx)
	if err != nil {
		return 0, err
	}
	return m.store.UpsertRows(ctx, table, columns, keys, rawRows(res, columns, keyCount))
}

// ETLDaily rebuilds stock_daily for one trade date from the raw
// tables. Rerunning over the same raw rows yields the same business
// rows, so the call is safe to repeat.
func (m *Manager) ETLDaily(ctx context.Context, target time.Time) (int, error) {
	key := etl.DateKey(target)

	daily, err := m.readRaw(ctx, tableRawDaily, colsDaily, "trade_date", key)
	if err != nil {
		return 0, err
	}
	adj, err := m.readRaw(ctx, tableRawAdjFactor, colsAdjFactor, "trade_date", key)
	if err != nil {
		return 0, err
	}
	basic, err := m.readRaw(ctx, tableRawDailyBasic, colsDailyBasic, "trade_date", key)
	if err != nil {
		return 0, err
	}

	bars := etl.TransformDaily(daily, adj, basic)

	batchSize := m.cfg.ETLBatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}

	written := 0
	for start := 0; start < len(bars); start += batchSize {
		end := start + batchSize
		if end > len(bars) {
			end = len(bars)
		}

		rows := make([][]interface{}, 0, end-start)
		for _, bar := range bars[start:end] {
			rows = append(rows, barRow(bar))
		}

		n, err := m.store.UpsertRows(ctx, "stock_daily", colsStockDaily, keysCodeDate, rows)
		if err != nil {
			return written, fmt.Errorf("etl daily %s: %w", key, err)
		}
		written += n
	}

	m.logger.WithFields(map[string]interface{}{
		"date": key,
		"rows": written,
	}).Info("Daily ETL done")
	return written, nil
}

// SyncStockRange ingests one entity over [start, end]: raw rows,
// business bars and the data_date advance commit in a single
// transaction, so partial progress is never recorded. A window with no
// bars writes nothing and does not advance. Returns the business row
// count.
func (m *Manager) SyncStockRange(ctx context.Context, tsCode string, start, end time.Time) (int, error) {
	startKey, endKey := etl.DateKey(start), etl.DateKey(end)

	dailyRes, err := m.client.DailyByCode(ctx, tsCode, startKey, endKey)
	if err != nil {
		return 0, fmt.Errorf("fetch daily %s: %w", tsCode, err)
	}
	adjRes, err := m.client.AdjFactorByCode(ctx, tsCode, startKey, endKey)
	if err != nil {
		return 0, fmt.Errorf("fetch adj_factor %s: %w", tsCode, err)
	}
	basicRes, err := m.client.DailyBasicByCode(ctx, tsCode, startKey, endKey)
	if err != nil {
		return 0, fmt.Errorf("fetch daily_basic %s: %w", tsCode, err)
	}

	bars := etl.TransformDaily(dailyRes.Maps(), adjRes.Maps(), basicRes.Maps())
	if len(bars) == 0 {
		return 0, nil
	}

	bizRows := make([][]interface{}, 0, len(bars))
	for _, bar := range bars {
		bizRows = append(bizRows, barRow(bar))
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin sync tx %s: %w", tsCode, err)
	}
	defer tx.Rollback(ctx)

	if _, err := m.store.UpsertInTx(ctx, tx, tableRawDaily, colsDaily, keysCodeDate, rawRows(dailyRes, colsDaily, 2)); err != nil {
		return 0, err
	}
	if _, err := m.store.UpsertInTx(ctx, tx, tableRawAdjFactor, colsAdjFactor, keysCodeDate, rawRows(adjRes, colsAdjFactor, 2)); err != nil {
		return 0, err
	}
	if _, err := m.store.UpsertInTx(ctx, tx, tableRawDailyBasic, colsDailyBasic, keysCodeDate, rawRows(basicRes, colsDailyBasic, 2)); err != nil {
		return 0, err
	}
	if _, err := m.store.UpsertInTx(ctx, tx, "stock_daily", colsStockDaily, keysCodeDate, bizRows); err != nil {
		return 0, err
	}

	if err := m.tracker.UpdateDataProgressTx(ctx, tx, tsCode, end); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit sync tx %s: %w", tsCode, err)
	}

	return len(bars), nil
}

// readRaw reads one raw table back as vendor-shaped rows filtered on
// a single key column. Every cell is read as text so the transformers
// see the same loosely typed values the vendor sent.
func (m *Manager) readRaw(ctx context.Context, table string, columns []string, keyCol, key string) ([]map[string]interface{}, error) {
	sel := make([]string, len(columns))
	for i, col := range columns {
		sel[i] = col + "::text"
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", strings.Join(sel, ", "), table, keyCol)

	rows, err := m.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		cells := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}

		rowMap := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			rowMap[col] = cells[i]
		}
		out = append(out, rowMap)
	}
	return out, rows.Err()
}
