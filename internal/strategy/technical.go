package strategy

import (
	"fmt"
	"math"
	"time"
)

// MACross flags a short moving average crossing above a long one with
// volume confirmation.
// 金叉：昨日短期 <= 长期，今日短期 > 长期
type MACross struct{ base }

func NewMACross(params map[string]float64) *MACross {
	return &MACross{newBase(Meta{
		Name:          "ma-cross",
		Category:      CategoryTechnical,
		DisplayName:   "均线金叉",
		Description:   "短期均线上穿长期均线，且成交量放大",
		DefaultParams: map[string]float64{"fast": 5, "slow": 10, "vol_ratio": 1.5},
	}, params)}
}

func (st *MACross) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	fast := snap.Indicator(fmt.Sprintf("ma%.0f", st.param("fast", 5)))
	slow := snap.Indicator(fmt.Sprintf("ma%.0f", st.param("slow", 10)))
	fastPrev := snap.IndicatorPrev(fmt.Sprintf("ma%.0f", st.param("fast", 5)))
	slowPrev := snap.IndicatorPrev(fmt.Sprintf("ma%.0f", st.param("slow", 10)))
	volRatio := snap.Indicator("vol_ratio")
	minVolRatio := st.param("vol_ratio", 1.5)

	mask := make([]bool, snap.Len())
	for i := range mask {
		cross := val(fastPrev, i, 0) <= val(slowPrev, i, 0) &&
			val(fast, i, 0) > val(slow, i, 0)
		volumeOK := val(volRatio, i, 0) >= minVolRatio
		trading := val(snap.Vol, i, 0) > 0
		mask[i] = cross && volumeOK && trading
	}
	return mask
}

// MACDGolden flags DIF crossing above DEA.
type MACDGolden struct{ base }

func NewMACDGolden(params map[string]float64) *MACDGolden {
	return &MACDGolden{newBase(Meta{
		Name:        "macd-golden",
		Category:    CategoryTechnical,
		DisplayName: "MACD金叉",
		Description: "MACD DIF 线上穿 DEA 线，发出买入信号",
	}, params)}
}

func (st *MACDGolden) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	dif := snap.Indicator("macd_dif")
	dea := snap.Indicator("macd_dea")
	difPrev := snap.IndicatorPrev("macd_dif")
	deaPrev := snap.IndicatorPrev("macd_dea")

	mask := make([]bool, snap.Len())
	for i := range mask {
		cross := val(difPrev, i, 0) <= val(deaPrev, i, 0) &&
			val(dif, i, 0) > val(dea, i, 0)
		mask[i] = cross && val(snap.Vol, i, 0) > 0
	}
	return mask
}

// KDJGolden flags K crossing above D while J sits in the oversold
// zone.
type KDJGolden struct{ base }

func NewKDJGolden(params map[string]float64) *KDJGolden {
	return &KDJGolden{newBase(Meta{
		Name:          "kdj-golden",
		Category:      CategoryTechnical,
		DisplayName:   "KDJ金叉",
		Description:   "KDJ K线上穿D线，且J值处于超卖区域",
		DefaultParams: map[string]float64{"oversold_j": 20},
	}, params)}
}

func (st *KDJGolden) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	k := snap.Indicator("kdj_k")
	d := snap.Indicator("kdj_d")
	j := snap.Indicator("kdj_j")
	kPrev := snap.IndicatorPrev("kdj_k")
	dPrev := snap.IndicatorPrev("kdj_d")
	oversoldJ := st.param("oversold_j", 20)

	mask := make([]bool, snap.Len())
	for i := range mask {
		cross := val(kPrev, i, 50) <= val(dPrev, i, 50) &&
			val(k, i, 50) > val(d, i, 50)
		oversold := val(j, i, 50) < oversoldJ
		mask[i] = cross && oversold && val(snap.Vol, i, 0) > 0
	}
	return mask
}

// RSIOversold flags RSI bouncing out of the oversold zone.
// 昨日 RSI <= 超卖线，今日 RSI > 反弹线
type RSIOversold struct{ base }

func NewRSIOversold(params map[string]float64) *RSIOversold {
	return &RSIOversold{newBase(Meta{
		Name:          "rsi-oversold",
		Category:      CategoryTechnical,
		DisplayName:   "RSI超卖反弹",
		Description:   "RSI 从超卖区域回升，发出反弹买入信号",
		DefaultParams: map[string]float64{"period": 6, "oversold": 20, "bounce": 30},
	}, params)}
}

func (st *RSIOversold) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	col := fmt.Sprintf("rsi%.0f", st.param("period", 6))
	rsi := snap.Indicator(col)
	rsiPrev := snap.IndicatorPrev(col)
	oversold := st.param("oversold", 20)
	bounce := st.param("bounce", 30)

	mask := make([]bool, snap.Len())
	for i := range mask {
		signal := val(rsiPrev, i, 50) <= oversold && val(rsi, i, 50) > bounce
		mask[i] = signal && val(snap.Vol, i, 0) > 0
	}
	return mask
}

// BollBreakthrough flags the close recovering above the lower
// Bollinger band.
type BollBreakthrough struct{ base }

func NewBollBreakthrough(params map[string]float64) *BollBreakthrough {
	return &BollBreakthrough{newBase(Meta{
		Name:        "boll-breakthrough",
		Category:    CategoryTechnical,
		DisplayName: "布林带突破",
		Description: "价格从布林带下轨下方回升，发出超跌反弹信号",
	}, params)}
}

func (st *BollBreakthrough) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	lower := snap.Indicator("boll_lower")
	lowerPrev := snap.IndicatorPrev("boll_lower")
	closePrev := snap.IndicatorPrev("close")

	mask := make([]bool, snap.Len())
	for i := range mask {
		signal := val(closePrev, i, 0) <= val(lowerPrev, i, 0) &&
			val(snap.Close, i, 0) > val(lower, i, 0)
		mask[i] = signal && val(snap.Vol, i, 0) > 0
	}
	return mask
}

// VolumeBreakout flags a price breakout with heavy volume. Without a
// precomputed 20-day high column the breakout test approximates with
// close > ma20 * 1.05.
type VolumeBreakout struct{ base }

func NewVolumeBreakout(params map[string]float64) *VolumeBreakout {
	return &VolumeBreakout{newBase(Meta{
		Name:          "volume-breakout",
		Category:      CategoryTechnical,
		DisplayName:   "放量突破",
		Description:   "价格创近期新高且成交量显著放大",
		DefaultParams: map[string]float64{"high_period": 20, "min_vol_ratio": 2.0},
	}, params)}
}

func (st *VolumeBreakout) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	minVolRatio := st.param("min_vol_ratio", 2.0)
	volRatio := snap.Indicator("vol_ratio")
	high20, hasHigh := snap.Ind["high_20"]
	ma20 := snap.Indicator("ma20")

	mask := make([]bool, snap.Len())
	for i := range mask {
		close := val(snap.Close, i, 0)
		var breakout bool
		if hasHigh {
			// 缺失的 high_20 视为不可突破
			breakout = close >= val(high20, i, inf)
		} else {
			m := val(ma20, i, 0)
			breakout = m > 0 && close > m*1.05
		}
		volumeOK := val(volRatio, i, 0) >= minVolRatio
		mask[i] = breakout && volumeOK && val(snap.Vol, i, 0) > 0
	}
	return mask
}

// MALongArrange flags a bullish moving-average stack:
// MA5 > MA10 > MA20 > MA60.
type MALongArrange struct{ base }

func NewMALongArrange(params map[string]float64) *MALongArrange {
	return &MALongArrange{newBase(Meta{
		Name:        "ma-long-arrange",
		Category:    CategoryTechnical,
		DisplayName: "均线多头排列",
		Description: "MA5 > MA10 > MA20 > MA60，强势上涨趋势",
	}, params)}
}

func (st *MALongArrange) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	ma5 := snap.Indicator("ma5")
	ma10 := snap.Indicator("ma10")
	ma20 := snap.Indicator("ma20")
	ma60 := snap.Indicator("ma60")

	mask := make([]bool, snap.Len())
	for i := range mask {
		v5, v10, v20, v60 := val(ma5, i, 0), val(ma10, i, 0), val(ma20, i, 0), val(ma60, i, 0)
		signal := v5 > v10 && v10 > v20 && v20 > v60 && v60 > 0
		mask[i] = signal && val(snap.Vol, i, 0) > 0
	}
	return mask
}

// WilliamsR flags Williams %R bouncing out of the oversold zone.
type WilliamsR struct{ base }

func NewWilliamsR(params map[string]float64) *WilliamsR {
	return &WilliamsR{newBase(Meta{
		Name:          "williams-r",
		Category:      CategoryTechnical,
		DisplayName:   "Williams %R超卖反弹",
		Description:   "Williams %R 从超卖区（<-80）反弹至 -50 以上",
		DefaultParams: map[string]float64{"oversold": -80, "bounce": -50},
	}, params)}
}

func (st *WilliamsR) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	wr := snap.Indicator("wr14")
	wrPrev := snap.IndicatorPrev("wr14")
	oversold := st.param("oversold", -80)
	bounce := st.param("bounce", -50)

	mask := make([]bool, snap.Len())
	for i := range mask {
		signal := val(wrPrev, i, 0) <= oversold && val(wr, i, 0) > bounce
		mask[i] = signal && val(snap.Vol, i, 0) > 0
	}
	return mask
}

var inf = math.Inf(1)
