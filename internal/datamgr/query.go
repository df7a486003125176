package datamgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hzhao/stock-selector/internal/etl"
	"github.com/hzhao/stock-selector/internal/indicator"
	"github.com/hzhao/stock-selector/internal/tushare"
)

// GetDailyBars loads business bars for one entity over [start, end],
// ascending by trade date. Implements the indicator engine's bar
// source.
func (m *Manager) GetDailyBars(ctx context.Context, tsCode string, start, end time.Time) ([]etl.DailyBar, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT ts_code, trade_date, open, high, low, close, pre_close, pct_chg,
		       COALESCE(vol, 0), COALESCE(amount, 0), adj_factor, turnover_rate,
		       COALESCE(trade_status, '')
		FROM stock_daily
		WHERE ts_code = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date
	`, tsCode, start, end)
	if err != nil {
		return nil, fmt.Errorf("query daily bars %s: %w", tsCode, err)
	}
	defer rows.Close()

	var bars []etl.DailyBar
	for rows.Next() {
		var bar etl.DailyBar
		if err := rows.Scan(
			&bar.TsCode, &bar.TradeDate, &bar.Open, &bar.High, &bar.Low,
			&bar.Close, &bar.PreClose, &bar.PctChg, &bar.Vol, &bar.Amount,
			&bar.AdjFactor, &bar.TurnoverRate, &bar.TradeStatus,
		); err != nil {
			return nil, fmt.Errorf("scan daily bar %s: %w", tsCode, err)
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// TechRow is the newest indicator row of one entity. Values holds the
// non-null indicator columns.
type TechRow struct {
	TsCode    string
	TradeDate time.Time
	Values    map[string]float64
}

// GetLatestTechnical returns the newest indicator row per entity.
func (m *Manager) GetLatestTechnical(ctx context.Context, tsCodes []string) ([]TechRow, error) {
	if len(tsCodes) == 0 {
		return nil, nil
	}

	cols := indicator.Columns()
	sql := fmt.Sprintf(`
		SELECT DISTINCT ON (ts_code) %s
		FROM technical_daily
		WHERE ts_code = ANY($1)
		ORDER BY ts_code, trade_date DESC
	`, strings.Join(cols, ", "))

	rows, err := m.pool.Query(ctx, sql, tsCodes)
	if err != nil {
		return nil, fmt.Errorf("query latest technical: %w", err)
	}
	defer rows.Close()

	var out []TechRow
	indCols := cols[2:]
	for rows.Next() {
		row := TechRow{Values: make(map[string]float64, len(indCols))}
		vals := make([]*float64, len(indCols))

		dest := make([]interface{}, 0, len(cols))
		dest = append(dest, &row.TsCode, &row.TradeDate)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan latest technical: %w", err)
		}

		for i, col := range indCols {
			if vals[i] != nil {
				row.Values[col] = *vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetTradeCalendar returns the open trading days in [start, end],
// ascending.
func (m *Manager) GetTradeCalendar(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT cal_date FROM trade_calendar
		WHERE exchange = 'SSE' AND is_open AND cal_date BETWEEN $1 AND $2
		ORDER BY cal_date
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query trade calendar: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan trade calendar: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// IsTradeDay reports whether d is an open trading day. An unknown date
// counts as closed.
func (m *Manager) IsTradeDay(ctx context.Context, d time.Time) (bool, error) {
	var isOpen bool
	err := m.pool.QueryRow(ctx, `
		SELECT is_open FROM trade_calendar
		WHERE exchange = 'SSE' AND cal_date = $1
	`, d).Scan(&isOpen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query trade day %s: %w", d.Format("2006-01-02"), err)
	}
	return isOpen, nil
}

// DetectMissingDates returns the open trading days in [start, end]
// with no stock_daily rows, ascending.
func (m *Manager) DetectMissingDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	trading, err := m.GetTradeCalendar(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(trading) == 0 {
		return nil, nil
	}

	rows, err := m.pool.Query(ctx, `
		SELECT DISTINCT trade_date FROM stock_daily
		WHERE trade_date BETWEEN $1 AND $2
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query synced dates: %w", err)
	}
	defer rows.Close()

	var existing []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan synced date: %w", err)
		}
		existing = append(existing, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	missing := missingDates(trading, existing)
	m.logger.WithFields(map[string]interface{}{
		"trading": len(trading),
		"synced":  len(existing),
		"missing": len(missing),
	}).Debug("Missing dates detected")
	return missing, nil
}

// missingDates subtracts existing from trading, preserving order.
func missingDates(trading, existing []time.Time) []time.Time {
	have := make(map[string]bool, len(existing))
	for _, d := range existing {
		have[etl.DateKey(d)] = true
	}

	var missing []time.Time
	for _, d := range trading {
		if !have[etl.DateKey(d)] {
			missing = append(missing, d)
		}
	}
	return missing
}

// ProbeDailyData checks whether the vendor has published data for
// target by fetching only the configured sample entities. Ready when
// the fraction with rows reaches the probe threshold.
// ⭐ SSOT: 数据就绪判断只在这里
func (m *Manager) ProbeDailyData(ctx context.Context, target time.Time) (bool, error) {
	codes := m.cfg.Scheduler.ProbeStocks
	if len(codes) == 0 {
		m.logger.Warn("Probe sample list empty, treating data as not ready")
		return false, nil
	}

	res, err := m.client.Query(ctx, "daily", map[string]string{
		"ts_code":    strings.Join(codes, ","),
		"trade_date": etl.DateKey(target),
	}, "ts_code,trade_date")
	if err != nil {
		return false, fmt.Errorf("probe daily data: %w", err)
	}

	seen := make(map[string]bool, len(codes))
	for _, row := range res.Maps() {
		if code := tushare.CellString(row["ts_code"]); code != "" {
			seen[code] = true
		}
	}

	rate := float64(len(seen)) / float64(len(codes))
	ready := rate >= m.cfg.Scheduler.ProbeThreshold

	m.logger.WithFields(map[string]interface{}{
		"date":      etl.DateKey(target),
		"found":     len(seen),
		"samples":   len(codes),
		"rate":      rate,
		"threshold": m.cfg.Scheduler.ProbeThreshold,
		"ready":     ready,
	}).Info("Daily data probed")
	return ready, nil
}
