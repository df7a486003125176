package indicator

import (
	"math"
	"time"
)

// Bar is one price observation, ordered by date ascending.
type Bar struct {
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Vol       float64
}

// Row carries the 29 indicator values for one (ts_code, trade_date).
// NaN means the look-back window is not yet filled.
type Row struct {
	TsCode    string
	TradeDate time.Time

	Ma5   float64
	Ma10  float64
	Ma20  float64
	Ma60  float64
	Ma120 float64
	Ma250 float64

	MacdDif  float64
	MacdDea  float64
	MacdHist float64

	KdjK float64
	KdjD float64
	KdjJ float64

	Rsi6  float64
	Rsi12 float64
	Rsi24 float64

	BollUpper float64
	BollMid   float64
	BollLower float64

	VolMa5   float64
	VolMa10  float64
	VolMa20  float64
	VolRatio float64

	Atr14 float64
	Wr14  float64
	Cci14 float64
	Bias  float64
	Obv   float64

	DonchianUpper float64
	DonchianLower float64
}

// Compute derives the full indicator set for one entity's bar series.
// Output length equals input length; early rows carry NaN where the
// window is short. No minimum length is required.
func Compute(tsCode string, bars []Bar) []Row {
	n := len(bars)
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	vols := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		vols[i] = b.Vol
	}

	ma5 := sma(closes, 5)
	ma10 := sma(closes, 10)
	ma20 := sma(closes, 20)
	ma60 := sma(closes, 60)
	ma120 := sma(closes, 120)
	ma250 := sma(closes, 250)

	dif, dea, hist := macd(closes)
	k, d, j := kdj(highs, lows, closes)
	rsi6 := rsi(closes, 6)
	rsi12 := rsi(closes, 12)
	rsi24 := rsi(closes, 24)
	upper, mid, lower := boll(closes)

	volMa5 := sma(vols, 5)
	volMa10 := sma(vols, 10)
	volMa20 := sma(vols, 20)

	atr14 := atr(highs, lows, closes, 14)
	wr14 := williamsR(highs, lows, closes, 14)
	cci14 := cci(highs, lows, closes, 14)
	obvSeries := obv(closes, vols)
	donUp := rollingMax(highs, 20)
	donLow := rollingMin(lows, 20)

	rows := make([]Row, n)
	for i := range bars {
		volRatio := math.NaN()
		if !math.IsNaN(volMa5[i]) && volMa5[i] != 0 {
			volRatio = vols[i] / volMa5[i]
		}

		bias := math.NaN()
		if !math.IsNaN(ma20[i]) && ma20[i] != 0 {
			bias = (closes[i] - ma20[i]) / ma20[i] * 100
		}

		rows[i] = Row{
			TsCode:    tsCode,
			TradeDate: bars[i].TradeDate,

			Ma5:   round4(ma5[i]),
			Ma10:  round4(ma10[i]),
			Ma20:  round4(ma20[i]),
			Ma60:  round4(ma60[i]),
			Ma120: round4(ma120[i]),
			Ma250: round4(ma250[i]),

			MacdDif:  round4(dif[i]),
			MacdDea:  round4(dea[i]),
			MacdHist: round4(hist[i]),

			KdjK: round4(k[i]),
			KdjD: round4(d[i]),
			KdjJ: round4(j[i]),

			Rsi6:  round4(rsi6[i]),
			Rsi12: round4(rsi12[i]),
			Rsi24: round4(rsi24[i]),

			BollUpper: round4(upper[i]),
			BollMid:   round4(mid[i]),
			BollLower: round4(lower[i]),

			VolMa5:   round4(volMa5[i]),
			VolMa10:  round4(volMa10[i]),
			VolMa20:  round4(volMa20[i]),
			VolRatio: round4(volRatio),

			Atr14: round4(atr14[i]),
			Wr14:  round4(wr14[i]),
			Cci14: round4(cci14[i]),
			Bias:  round4(bias),
			Obv:   round4(obvSeries[i]),

			DonchianUpper: round4(donUp[i]),
			DonchianLower: round4(donLow[i]),
		}
	}
	return rows
}

// macd returns DIF = EMA12 − EMA26, DEA = EMA9(DIF),
// HIST = 2 × (DIF − DEA) per the CN-market convention.
func macd(closes []float64) (dif, dea, hist []float64) {
	ema12 := ema(closes, 12)
	ema26 := ema(closes, 26)

	n := len(closes)
	dif = make([]float64, n)
	for i := range closes {
		dif[i] = ema12[i] - ema26[i]
	}

	dea = ema(dif, 9)

	hist = make([]float64, n)
	for i := range closes {
		hist[i] = 2 * (dif[i] - dea[i])
	}
	return dif, dea, hist
}

// kdj computes the 9-period stochastic with recursive 1/3 smoothing.
// K and D are seeded at 50 on the first full window; earlier rows are
// undefined. A flat window (max high = min low) yields RSV = 50.
func kdj(highs, lows, closes []float64) (ks, ds, js []float64) {
	n := len(closes)
	const period = 9

	hh := rollingMax(highs, period)
	ll := rollingMin(lows, period)

	ks = nanSlice(n)
	ds = nanSlice(n)
	js = nanSlice(n)

	prevK, prevD := 50.0, 50.0
	for i := period - 1; i < n; i++ {
		rsv := 50.0
		if hh[i] != ll[i] {
			rsv = (closes[i] - ll[i]) / (hh[i] - ll[i]) * 100
		}

		k := prevK*2/3 + rsv/3
		d := prevD*2/3 + k/3
		ks[i] = k
		ds[i] = d
		js[i] = 3*k - 2*d
		prevK, prevD = k, d
	}
	return ks, ds, js
}

// rsi computes the Wilder-smoothed relative strength index over the
// first period changes onward. An all-gain series saturates at 100; a
// perfectly flat series reads 0.
func rsi(closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if n < 2 {
		return out
	}

	gains := make([]float64, n-1)
	losses := make([]float64, n-1)
	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	avgGain := wilder(gains, period)
	avgLoss := wilder(losses, period)

	for i := period; i < n; i++ {
		g, l := avgGain[i-1], avgLoss[i-1]
		switch {
		case g == 0 && l == 0:
			out[i] = 0
		case l == 0:
			out[i] = 100
		default:
			rs := g / l
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// boll returns the 20-period Bollinger band with 2× population stddev.
func boll(closes []float64) (upper, mid, lower []float64) {
	const period = 20
	mid = sma(closes, period)
	std := rollingStd(closes, period)

	n := len(closes)
	upper = make([]float64, n)
	lower = make([]float64, n)
	for i := range closes {
		upper[i] = mid[i] + 2*std[i]
		lower[i] = mid[i] - 2*std[i]
	}
	return upper, mid, lower
}

// atr computes the EMA-smoothed average true range. The first period-1
// rows are undefined.
func atr(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := highs[i] - lows[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	out := ema(tr, period)
	for i := 0; i < period-1 && i < n; i++ {
		out[i] = math.NaN()
	}
	return out
}

// williamsR computes Williams %R in [-100, 0]; a flat window yields -50.
func williamsR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)

	hh := rollingMax(highs, period)
	ll := rollingMin(lows, period)
	for i := period - 1; i < n; i++ {
		if hh[i] == ll[i] {
			out[i] = -50
			continue
		}
		out[i] = (hh[i] - closes[i]) / (hh[i] - ll[i]) * -100
	}
	return out
}

// cci computes the commodity channel index over the typical price.
func cci(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)

	tp := make([]float64, n)
	for i := 0; i < n; i++ {
		tp[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	tpMa := sma(tp, period)

	for i := period - 1; i < n; i++ {
		var dev float64
		for j := i - period + 1; j <= i; j++ {
			dev += math.Abs(tp[j] - tpMa[i])
		}
		md := dev / float64(period)
		if md == 0 {
			continue // leave NaN, price never moved
		}
		out[i] = (tp[i] - tpMa[i]) / (0.015 * md)
	}
	return out
}

// obv computes cumulative on-balance volume, seeded with the first
// day's volume.
func obv(closes, vols []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	out[0] = vols[0]
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + vols[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - vols[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}
