package datamgr

import (
	"context"
	"fmt"

	"github.com/hzhao/stock-selector/internal/etl"
)

// SyncRawFina ingests quarterly financial indicators for one report
// period (YYYYMMDD quarter end) via the VIP endpoint. There is no
// per-entity fallback: without VIP permission the vendor error is
// raised as-is.
func (m *Manager) SyncRawFina(ctx context.Context, period string) (int, error) {
	res, err := m.client.FinaIndicatorVIP(ctx, period)
	if err != nil {
		return 0, fmt.Errorf("fetch fina_indicator_vip %s: %w", period, err)
	}

	written, err := m.store.UpsertRows(ctx, tableRawFina, colsFina, keysFina, rawRows(res, colsFina, 2))
	if err != nil {
		return 0, err
	}

	m.logger.WithFields(map[string]interface{}{
		"period": period,
		"rows":   written,
	}).Info("Raw financials ingested")
	return written, nil
}

// ETLFina rebuilds fina_indicators for one report period from the raw
// table.
func (m *Manager) ETLFina(ctx context.Context, period string) (int, error) {
	raw, err := m.readRaw(ctx, tableRawFina, colsFina, "end_date", period)
	if err != nil {
		return 0, err
	}

	finas := etl.TransformFinaIndicator(raw)
	rows := make([][]interface{}, 0, len(finas))
	for _, fina := range finas {
		rows = append(rows, finaRow(fina))
	}

	written, err := m.store.UpsertRows(ctx, "fina_indicators", colsFinaBiz, []string{"ts_code", "end_date"}, rows)
	if err != nil {
		return 0, fmt.Errorf("etl fina %s: %w", period, err)
	}

	m.logger.WithFields(map[string]interface{}{
		"period": period,
		"rows":   written,
	}).Info("Financial ETL done")
	return written, nil
}

// ReportPeriod returns the report period (previous quarter end,
// YYYYMMDD) whose financials should be available around t.
func ReportPeriod(year, month int) string {
	switch {
	case month <= 3:
		return fmt.Sprintf("%d1231", year-1)
	case month <= 6:
		return fmt.Sprintf("%d0331", year)
	case month <= 9:
		return fmt.Sprintf("%d0630", year)
	default:
		return fmt.Sprintf("%d0930", year)
	}
}
