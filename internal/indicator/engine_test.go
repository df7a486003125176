package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// makeBars builds a series where bar i carries the given close; OHLC
// spread a little around it, volume fixed at 1000.
func makeBars(closes []float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			TradeDate: day(i),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Vol:       1000,
		}
	}
	return bars
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 10 + float64(i)*0.5
	}
	return closes
}

func TestCompute_Empty(t *testing.T) {
	assert.Nil(t, Compute("600519.SH", nil))
}

func TestCompute_MAWarmup(t *testing.T) {
	rows := Compute("600519.SH", makeBars([]float64{1, 2, 3, 4, 5, 6}))
	require.Len(t, rows, 6)

	assert.True(t, math.IsNaN(rows[3].Ma5), "ma5 undefined before 5 points")
	assert.Equal(t, 3.0, rows[4].Ma5)
	assert.Equal(t, 4.0, rows[5].Ma5)
	assert.True(t, math.IsNaN(rows[5].Ma10))
	assert.True(t, math.IsNaN(rows[5].Ma250))
}

func TestCompute_MACDHist(t *testing.T) {
	rows := Compute("600519.SH", makeBars(risingCloses(60)))

	for _, r := range rows {
		require.False(t, math.IsNaN(r.MacdDif))
		require.False(t, math.IsNaN(r.MacdDea))
		assert.InDelta(t, 2*(r.MacdDif-r.MacdDea), r.MacdHist, 1e-3,
			"HIST must be twice the DIF-DEA gap")
	}
}

func TestCompute_KDJFlatSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 50
	}
	bars := make([]Bar, len(closes))
	for i := range bars {
		// Perfectly flat: high == low == close.
		bars[i] = Bar{TradeDate: day(i), Open: 50, High: 50, Low: 50, Close: 50, Vol: 1000}
	}

	rows := Compute("600519.SH", bars)
	for i, r := range rows {
		if i < 8 {
			assert.True(t, math.IsNaN(r.KdjK))
			continue
		}
		require.False(t, math.IsNaN(r.KdjK), "flat series must keep KDJ defined")
		require.False(t, math.IsInf(r.KdjK, 0))
		assert.InDelta(t, 50, r.KdjK, 1e-9)
		assert.InDelta(t, 50, r.KdjD, 1e-9)
		assert.InDelta(t, 50, r.KdjJ, 1e-9)
	}
}

// Indicators stay NULL until their full lookback window has data.
func TestCompute_WarmupWindows(t *testing.T) {
	rows := Compute("600519.SH", makeBars(risingCloses(30)))

	for i, r := range rows {
		assert.Equal(t, i >= 6, !math.IsNaN(r.Rsi6), "rsi6 at %d", i)
		assert.Equal(t, i >= 12, !math.IsNaN(r.Rsi12), "rsi12 at %d", i)
		assert.Equal(t, i >= 24, !math.IsNaN(r.Rsi24), "rsi24 at %d", i)
		assert.Equal(t, i >= 8, !math.IsNaN(r.KdjK), "kdj_k at %d", i)
		assert.Equal(t, i >= 8, !math.IsNaN(r.KdjD), "kdj_d at %d", i)
		assert.Equal(t, i >= 8, !math.IsNaN(r.KdjJ), "kdj_j at %d", i)
		assert.Equal(t, i >= 13, !math.IsNaN(r.Atr14), "atr14 at %d", i)
	}
}

func TestCompute_KDJSeedsAtFirstFullWindow(t *testing.T) {
	closes := risingCloses(12)
	rows := Compute("600519.SH", makeBars(closes))

	// Highs are close+1, lows close-1. At bar 8 the 9-bar window spans
	// [close[0]-1, close[8]+1] and smoothing starts from K = D = 50.
	hh := closes[8] + 1
	ll := closes[0] - 1
	rsv := (closes[8] - ll) / (hh - ll) * 100
	k := 50*2.0/3.0 + rsv/3.0
	d := 50*2.0/3.0 + k/3.0
	assert.InDelta(t, k, rows[8].KdjK, 1e-3)
	assert.InDelta(t, d, rows[8].KdjD, 1e-3)
	assert.InDelta(t, 3*k-2*d, rows[8].KdjJ, 1e-3)
}

func TestCompute_RSIBoundsAndSaturation(t *testing.T) {
	rows := Compute("600519.SH", makeBars(risingCloses(40)))

	last := rows[len(rows)-1]
	assert.Equal(t, 100.0, last.Rsi6, "strictly rising series saturates RSI at 100")
	assert.Equal(t, 100.0, last.Rsi12)
	assert.Equal(t, 100.0, last.Rsi24)

	// Mixed series stays within [0, 100].
	mixed := []float64{10, 11, 10.5, 12, 11.8, 12.4, 11.9, 13, 12.2, 12.8, 13.5, 12.9, 14, 13.1, 14.2}
	for _, r := range Compute("600519.SH", makeBars(mixed)) {
		if math.IsNaN(r.Rsi6) {
			continue
		}
		assert.GreaterOrEqual(t, r.Rsi6, 0.0)
		assert.LessOrEqual(t, r.Rsi6, 100.0)
	}
}

func TestCompute_RSIFlatSeriesIsZero(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 10
	}
	rows := Compute("600519.SH", makeBars(flat))

	// No gains and no losses: RSI reads 0, not the all-gain saturation.
	for i, r := range rows {
		if i < 6 {
			assert.True(t, math.IsNaN(r.Rsi6))
			continue
		}
		assert.Equal(t, 0.0, r.Rsi6, "at %d", i)
	}
	assert.Equal(t, 0.0, rows[19].Rsi12)
}

func TestCompute_Bollinger(t *testing.T) {
	// Varying series so stddev > 0 once the window fills.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 10 + math.Sin(float64(i))*2
	}
	rows := Compute("600519.SH", makeBars(closes))

	for i, r := range rows {
		if i < 19 {
			assert.True(t, math.IsNaN(r.BollMid))
			continue
		}
		require.False(t, math.IsNaN(r.BollMid))
		assert.InDelta(t, r.Ma20, r.BollMid, 1e-9, "boll mid is MA20")
		assert.Greater(t, r.BollUpper, r.BollMid)
		assert.Greater(t, r.BollMid, r.BollLower)
	}
}

func TestCompute_VolRatio(t *testing.T) {
	bars := makeBars(risingCloses(10))
	for i := range bars {
		bars[i].Vol = 0
	}
	rows := Compute("600519.SH", bars)
	assert.True(t, math.IsNaN(rows[9].VolRatio), "vol_ratio undefined when vol_ma5 is zero")

	bars2 := makeBars(risingCloses(10))
	rows2 := Compute("600519.SH", bars2)
	assert.Equal(t, 1.0, rows2[9].VolRatio)
}

func TestCompute_WilliamsR(t *testing.T) {
	rows := Compute("600519.SH", makeBars(risingCloses(30)))
	for i, r := range rows {
		if i < 13 {
			assert.True(t, math.IsNaN(r.Wr14))
			continue
		}
		assert.GreaterOrEqual(t, r.Wr14, -100.0)
		assert.LessOrEqual(t, r.Wr14, 0.0)
	}
}

func TestCompute_OBV(t *testing.T) {
	closes := []float64{10, 11, 10, 10, 12}
	bars := makeBars(closes)
	rows := Compute("600519.SH", bars)

	// seed 1000, +1000, -1000, flat, +1000
	assert.Equal(t, 1000.0, rows[0].Obv)
	assert.Equal(t, 2000.0, rows[1].Obv)
	assert.Equal(t, 1000.0, rows[2].Obv)
	assert.Equal(t, 1000.0, rows[3].Obv)
	assert.Equal(t, 2000.0, rows[4].Obv)
}

func TestCompute_Donchian(t *testing.T) {
	rows := Compute("600519.SH", makeBars(risingCloses(25)))

	last := rows[len(rows)-1]
	// Highs are close+1, lows close-1; window covers the last 20 bars.
	expectedHigh := risingCloses(25)[24] + 1
	expectedLow := risingCloses(25)[5] - 1
	assert.InDelta(t, expectedHigh, last.DonchianUpper, 1e-9)
	assert.InDelta(t, expectedLow, last.DonchianLower, 1e-9)
}

func TestCompute_Rounding(t *testing.T) {
	closes := []float64{10.123456, 10.234567, 10.345678, 10.456789, 10.567891}
	rows := Compute("600519.SH", makeBars(closes))

	v := rows[4].Ma5
	require.False(t, math.IsNaN(v))
	assert.Equal(t, v, math.Round(v*10000)/10000, "values are rounded to 4 decimals")
}

func TestCompute_ATR(t *testing.T) {
	rows := Compute("600519.SH", makeBars(risingCloses(20)))
	for i, r := range rows {
		if i < 13 {
			assert.True(t, math.IsNaN(r.Atr14))
			continue
		}
		require.False(t, math.IsNaN(r.Atr14))
		assert.Greater(t, r.Atr14, 0.0)
	}
}

func TestCompute_CCIFlat(t *testing.T) {
	bars := make([]Bar, 20)
	for i := range bars {
		bars[i] = Bar{TradeDate: day(i), Open: 10, High: 10, Low: 10, Close: 10, Vol: 100}
	}
	rows := Compute("600519.SH", bars)
	assert.True(t, math.IsNaN(rows[19].Cci14), "flat price leaves CCI undefined")
}

func TestRound4(t *testing.T) {
	assert.Equal(t, 1.2346, round4(1.23456))
	assert.True(t, math.IsNaN(round4(math.NaN())))
}
