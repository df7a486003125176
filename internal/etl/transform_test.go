package etl

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want float64
		ok   bool
	}{
		{"float", 1720.5, 1720.5, true},
		{"zero", 0.0, 0, true},
		{"string number", "10.33", 10.33, true},
		{"string with spaces", " 42 ", 42, true},
		{"nil", nil, 0, false},
		{"empty string", "", 0, false},
		{"N/A", "N/A", 0, false},
		{"dashes", "--", 0, false},
		{"None", "None", 0, false},
		{"none", "none", 0, false},
		{"null", "null", 0, false},
		{"NULL", "NULL", 0, false},
		{"NaN float", math.NaN(), 0, false},
		{"Inf float", math.Inf(1), 0, false},
		{"garbage", "abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDecimal(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("20240614")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), d)

	d, ok = ParseDate("2024-06-14")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), d)

	_, ok = ParseDate("")
	assert.False(t, ok)
	_, ok = ParseDate("14/06/2024")
	assert.False(t, ok)
	_, ok = ParseDate(nil)
	assert.False(t, ok)
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		raw    string
		source string
		want   string
	}{
		{"600519.SH", "tushare", "600519.SH"},
		{"600519.sh", "tushare", "600519.SH"},
		{"sh600519", "sina", "600519.SH"},
		{"sz000001", "sina", "000001.SZ"},
		{"bj830799", "sina", "830799.BJ"},
		{"600519", "plain", "600519.SH"},
		{"000001", "plain", "000001.SZ"},
		{"300750", "plain", "300750.SZ"},
		{"830799", "plain", "830799.BJ"},
		{"", "tushare", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw+"/"+tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCode(tt.raw, tt.source))
		})
	}
}

func TestTransformDaily_JoinAndUnits(t *testing.T) {
	daily := []map[string]interface{}{
		{
			"ts_code": "600519.SH", "trade_date": "20240614",
			"open": 1700.0, "high": 1730.0, "low": 1695.0, "close": 1720.5,
			"pre_close": 1710.0, "pct_chg": 0.61,
			"vol": 25000.0, "amount": 4300000.0, // thousand yuan
		},
		{
			"ts_code": "000001.SZ", "trade_date": "20240614",
			"open": 10.30, "high": 10.40, "low": 10.20, "close": 10.33,
			"vol": 0.0, "amount": 0.0,
		},
	}
	adj := []map[string]interface{}{
		{"ts_code": "600519.SH", "trade_date": "20240614", "adj_factor": 15.432},
	}
	basic := []map[string]interface{}{
		{"ts_code": "600519.SH", "trade_date": "20240614", "turnover_rate": 0.2},
	}

	bars := TransformDaily(daily, adj, basic)
	require.Len(t, bars, 2)

	mt := bars[0]
	assert.Equal(t, "600519.SH", mt.TsCode)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), mt.TradeDate)
	require.NotNil(t, mt.Close)
	assert.Equal(t, 1720.5, *mt.Close)
	assert.Equal(t, 4300000.0*1000, mt.Amount, "amount must be converted to yuan")
	require.NotNil(t, mt.AdjFactor)
	assert.Equal(t, 15.432, *mt.AdjFactor)
	require.NotNil(t, mt.TurnoverRate)
	assert.Equal(t, 0.2, *mt.TurnoverRate)
	assert.Equal(t, StatusTrading, mt.TradeStatus)

	// No join partners: optional fields stay nil.
	pa := bars[1]
	assert.Nil(t, pa.AdjFactor)
	assert.Nil(t, pa.TurnoverRate)
	assert.Equal(t, StatusSuspended, pa.TradeStatus, "vol=0 and amount=0 means suspended")
}

func TestTransformDaily_DropsUnparsableDates(t *testing.T) {
	daily := []map[string]interface{}{
		{"ts_code": "600519.SH", "trade_date": "not-a-date", "close": 1.0},
		{"ts_code": "", "trade_date": "20240614", "close": 1.0},
	}

	bars := TransformDaily(daily, nil, nil)
	assert.Empty(t, bars)
}

func TestTransformDaily_Idempotent(t *testing.T) {
	daily := []map[string]interface{}{
		{
			"ts_code": "600519.SH", "trade_date": "20240614",
			"open": 1700.0, "close": 1720.5, "vol": 25000.0, "amount": 4300000.0,
		},
	}

	first := TransformDaily(daily, nil, nil)
	second := TransformDaily(daily, nil, nil)
	assert.Equal(t, first, second)
}

func TestTransformStockBasic(t *testing.T) {
	raw := []map[string]interface{}{
		{
			"ts_code": "600519.SH", "symbol": "600519", "name": "贵州茅台",
			"industry": "白酒", "market": "主板", "exchange": "SSE",
			"list_status": "L", "list_date": "20010827",
		},
		{"ts_code": "", "name": "dropped"},
	}

	stocks := TransformStockBasic(raw)
	require.Len(t, stocks, 1)
	assert.Equal(t, "600519.SH", stocks[0].TsCode)
	assert.Equal(t, "贵州茅台", stocks[0].Name)
	assert.Equal(t, "L", stocks[0].ListStatus)
	require.NotNil(t, stocks[0].ListDate)
	assert.Equal(t, 2001, stocks[0].ListDate.Year())
	assert.Nil(t, stocks[0].DelistDate)
}

func TestTransformTradeCal(t *testing.T) {
	raw := []map[string]interface{}{
		{"exchange": "SSE", "cal_date": "20240614", "is_open": 1.0, "pretrade_date": "20240613"},
		{"exchange": "SSE", "cal_date": "20240615", "is_open": 0.0},
		{"exchange": "SSE", "cal_date": "bogus"},
	}

	days := TransformTradeCal(raw)
	require.Len(t, days, 2)
	assert.True(t, days[0].IsOpen)
	require.NotNil(t, days[0].PreTradeDate)
	assert.False(t, days[1].IsOpen)
	assert.Nil(t, days[1].PreTradeDate)
}

func TestTransformFinaIndicator(t *testing.T) {
	raw := []map[string]interface{}{
		{
			"ts_code": "600519.SH", "ann_date": "20240430", "end_date": "20240331",
			"eps": 15.21, "roe": "N/A", "roe_waa": 8.5,
			"netprofit_yoy": 15.7, "debt_to_assets": 18.2,
		},
		{"ts_code": "000001.SZ", "end_date": ""},
	}

	rows := TransformFinaIndicator(raw)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, "600519.SH", r.TsCode)
	require.NotNil(t, r.ROE)
	assert.Equal(t, 8.5, *r.ROE, "roe_waa fills in when roe is null")
	require.NotNil(t, r.NetProfitYoY)
	assert.Equal(t, 15.7, *r.NetProfitYoY)
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, "20240614", DateKey(time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)))
}
