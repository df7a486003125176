package datamgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzhao/stock-selector/internal/etl"
	"github.com/hzhao/stock-selector/internal/tushare"
)

func TestRawRowsAlignsVendorColumns(t *testing.T) {
	res := &tushare.Result{
		Fields: []string{"trade_date", "ts_code", "close"},
		Items: [][]interface{}{
			{"20240315", "600519.SH", 1688.0},
			{"20240315", "000001.SZ", 10.52},
		},
	}

	rows := rawRows(res, []string{"ts_code", "trade_date", "close"}, 2)
	require.Len(t, rows, 2)

	assert.Equal(t, []interface{}{"600519.SH", "20240315", 1688.0}, rows[0])
	assert.Equal(t, []interface{}{"000001.SZ", "20240315", 10.52}, rows[1])
}

func TestRawRowsDropsRowsWithEmptyKeyCells(t *testing.T) {
	res := &tushare.Result{
		Fields: []string{"ts_code", "trade_date", "close"},
		Items: [][]interface{}{
			{"600519.SH", "20240315", 1688.0},
			{nil, "20240315", 9.99},
			{"000001.SZ", nil, 10.52},
		},
	}

	rows := rawRows(res, []string{"ts_code", "trade_date", "close"}, 2)
	require.Len(t, rows, 1)
	assert.Equal(t, "600519.SH", rows[0][0])
}

func TestRawRowsKeepsNullNonKeyCells(t *testing.T) {
	res := &tushare.Result{
		Fields: []string{"ts_code", "trade_date", "adj_factor"},
		Items: [][]interface{}{
			{"600519.SH", "20240315", nil},
		},
	}

	rows := rawRows(res, colsAdjFactor, 2)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0][2])
}

func TestMissingDates(t *testing.T) {
	day := func(s string) time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return d
	}

	trading := []time.Time{day("2024-03-11"), day("2024-03-12"), day("2024-03-13"), day("2024-03-14")}
	existing := []time.Time{day("2024-03-11"), day("2024-03-13")}

	missing := missingDates(trading, existing)
	require.Len(t, missing, 2)
	assert.Equal(t, day("2024-03-12"), missing[0])
	assert.Equal(t, day("2024-03-14"), missing[1])
}

func TestMissingDatesAllSynced(t *testing.T) {
	d := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, missingDates([]time.Time{d}, []time.Time{d}))
}

func TestReportPeriod(t *testing.T) {
	tests := []struct {
		year, month int
		want        string
	}{
		{2024, 1, "20231231"},
		{2024, 3, "20231231"},
		{2024, 4, "20240331"},
		{2024, 7, "20240630"},
		{2024, 10, "20240930"},
		{2024, 12, "20240930"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReportPeriod(tt.year, tt.month))
	}
}

func TestBarRowMatchesStockDailyColumns(t *testing.T) {
	c := 1688.0
	bar := etl.DailyBar{
		TsCode:      "600519.SH",
		TradeDate:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Close:       &c,
		Vol:         120000,
		Amount:      2.0e9,
		TradeStatus: etl.StatusTrading,
	}

	row := barRow(bar)
	require.Len(t, row, len(colsStockDaily))
	assert.Equal(t, "600519.SH", row[0])
	assert.Equal(t, &c, row[5])
	assert.Equal(t, etl.StatusTrading, row[len(row)-1])
}

func TestFinaRowMatchesBusinessColumns(t *testing.T) {
	roe := 24.5
	fina := etl.FinaRow{
		TsCode:  "600519.SH",
		EndDate: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		ROE:     &roe,
	}

	row := finaRow(fina)
	require.Len(t, row, len(colsFinaBiz))
	assert.Equal(t, &roe, row[4])
}

func TestRawColumnListsMatchVendorFieldCounts(t *testing.T) {
	// daily_basic and moneyflow carry the widest payloads; a drifted
	// column list would silently shift every cell.
	assert.Len(t, colsDailyBasic, 16)
	assert.Len(t, colsMoneyflow, 20)
	assert.Len(t, colsTopList, 14)
	assert.Len(t, colsFina, 17)
}
