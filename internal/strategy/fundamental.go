package strategy

import "time"

// LowPEHighROE screens for cheap, profitable, growing names.
// PE < 30, ROE > 15%, 利润同比增长 > 20%
type LowPEHighROE struct{ base }

func NewLowPEHighROE(params map[string]float64) *LowPEHighROE {
	return &LowPEHighROE{newBase(Meta{
		Name:          "low-pe-high-roe",
		Category:      CategoryFundamental,
		DisplayName:   "低估值高成长",
		Description:   "市盈率低于30，ROE高于15%，利润同比增长超20%",
		DefaultParams: map[string]float64{"pe_max": 30, "roe_min": 15, "profit_growth_min": 20},
	}, params)}
}

func (st *LowPEHighROE) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	peMax := st.param("pe_max", 30)
	roeMin := st.param("roe_min", 15)
	growthMin := st.param("profit_growth_min", 20)

	mask := make([]bool, snap.Len())
	for i := range mask {
		pe := val(snap.PeTTM, i, -1)
		peOK := pe > 0 && pe < peMax // 排除亏损
		roeOK := val(snap.Roe, i, 0) >= roeMin
		growthOK := val(snap.ProfitYoY, i, 0) >= growthMin
		mask[i] = peOK && roeOK && growthOK
	}
	return mask
}

// HighDividend screens for high yield at a low valuation.
type HighDividend struct{ base }

func NewHighDividend(params map[string]float64) *HighDividend {
	return &HighDividend{newBase(Meta{
		Name:          "high-dividend",
		Category:      CategoryFundamental,
		DisplayName:   "高股息",
		Description:   "股息率高于3%，市盈率低于20",
		DefaultParams: map[string]float64{"min_dividend_yield": 3.0, "pe_max": 20},
	}, params)}
}

func (st *HighDividend) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	minYield := st.param("min_dividend_yield", 3.0)
	peMax := st.param("pe_max", 20)

	mask := make([]bool, snap.Len())
	for i := range mask {
		pe := val(snap.PeTTM, i, -1)
		mask[i] = val(snap.DividendYield, i, 0) >= minYield && pe > 0 && pe < peMax
	}
	return mask
}

// GrowthStock screens for revenue and profit both growing fast.
type GrowthStock struct{ base }

func NewGrowthStock(params map[string]float64) *GrowthStock {
	return &GrowthStock{newBase(Meta{
		Name:          "growth-stock",
		Category:      CategoryFundamental,
		DisplayName:   "成长股",
		Description:   "营收和利润同比增长均超过20%",
		DefaultParams: map[string]float64{"revenue_growth_min": 20, "profit_growth_min": 20},
	}, params)}
}

func (st *GrowthStock) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	revMin := st.param("revenue_growth_min", 20)
	profitMin := st.param("profit_growth_min", 20)

	mask := make([]bool, snap.Len())
	for i := range mask {
		mask[i] = val(snap.RevenueYoY, i, 0) >= revMin &&
			val(snap.ProfitYoY, i, 0) >= profitMin
	}
	return mask
}

// FinancialSafety screens for low leverage and healthy liquidity.
type FinancialSafety struct{ base }

func NewFinancialSafety(params map[string]float64) *FinancialSafety {
	return &FinancialSafety{newBase(Meta{
		Name:          "financial-safety",
		Category:      CategoryFundamental,
		DisplayName:   "财务安全",
		Description:   "资产负债率低于60%，流动比率高于1.5",
		DefaultParams: map[string]float64{"debt_ratio_max": 60, "current_ratio_min": 1.5},
	}, params)}
}

func (st *FinancialSafety) FilterBatch(snap *Snapshot, _ time.Time) []bool {
	debtMax := st.param("debt_ratio_max", 60)
	currentMin := st.param("current_ratio_min", 1.5)

	mask := make([]bool, snap.Len())
	for i := range mask {
		// 缺失负债率按最差处理
		debtOK := val(snap.DebtRatio, i, 100) < debtMax
		liquidityOK := val(snap.CurrentRatio, i, 0) >= currentMin
		mask[i] = debtOK && liquidityOK
	}
	return mask
}
