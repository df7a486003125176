package tushare

import "context"

// Typed endpoint wrappers. Field lists pin the column order so raw
// upserts stay aligned with the raw_* table schemas.

const (
	fieldsStockBasic = "ts_code,symbol,name,area,industry,market,exchange,list_status,list_date,delist_date"
	fieldsTradeCal   = "exchange,cal_date,is_open,pretrade_date"
	fieldsDaily      = "ts_code,trade_date,open,high,low,close,pre_close,change,pct_chg,vol,amount"
	fieldsAdjFactor  = "ts_code,trade_date,adj_factor"
	fieldsDailyBasic = "ts_code,trade_date,close,turnover_rate,turnover_rate_f,volume_ratio,pe,pe_ttm,pb,ps,dv_ratio,dv_ttm,total_share,float_share,total_mv,circ_mv"
	fieldsStkLimit   = "ts_code,trade_date,up_limit,down_limit"
	fieldsMoneyflow  = "ts_code,trade_date,buy_sm_vol,buy_sm_amount,sell_sm_vol,sell_sm_amount,buy_md_vol,buy_md_amount,sell_md_vol,sell_md_amount,buy_lg_vol,buy_lg_amount,sell_lg_vol,sell_lg_amount,buy_elg_vol,buy_elg_amount,sell_elg_vol,sell_elg_amount,net_mf_vol,net_mf_amount"
	fieldsTopList    = "trade_date,ts_code,name,close,pct_change,turnover_rate,amount,l_sell,l_buy,l_amount,net_amount,net_rate,amount_rate,reason"
	fieldsFinaVIP    = "ts_code,ann_date,end_date,eps,roe,roe_waa,grossprofit_margin,netprofit_margin,debt_to_assets,current_ratio,quick_ratio,or_yoy,netprofit_yoy,basic_eps_yoy,bps,cfps,dt_eps"
)

// StockBasic lists entities with the given list status (L, D or P).
func (c *Client) StockBasic(ctx context.Context, listStatus string) (*Result, error) {
	return c.Query(ctx, "stock_basic", map[string]string{
		"list_status": listStatus,
	}, fieldsStockBasic)
}

// TradeCal returns the exchange calendar over [start, end], dates as
// YYYYMMDD.
func (c *Client) TradeCal(ctx context.Context, exchange, start, end string) (*Result, error) {
	return c.Query(ctx, "trade_cal", map[string]string{
		"exchange":   exchange,
		"start_date": start,
		"end_date":   end,
	}, fieldsTradeCal)
}

// Daily returns OHLCV for every entity on a trade date (YYYYMMDD).
func (c *Client) Daily(ctx context.Context, tradeDate string) (*Result, error) {
	return c.Query(ctx, "daily", map[string]string{
		"trade_date": tradeDate,
	}, fieldsDaily)
}

// DailyByCode returns OHLCV for one entity over [start, end].
func (c *Client) DailyByCode(ctx context.Context, tsCode, start, end string) (*Result, error) {
	return c.Query(ctx, "daily", map[string]string{
		"ts_code":    tsCode,
		"start_date": start,
		"end_date":   end,
	}, fieldsDaily)
}

// AdjFactor returns adjustment factors for a trade date.
func (c *Client) AdjFactor(ctx context.Context, tradeDate string) (*Result, error) {
	return c.Query(ctx, "adj_factor", map[string]string{
		"trade_date": tradeDate,
	}, fieldsAdjFactor)
}

// AdjFactorByCode returns adjustment factors for one entity over a range.
func (c *Client) AdjFactorByCode(ctx context.Context, tsCode, start, end string) (*Result, error) {
	return c.Query(ctx, "adj_factor", map[string]string{
		"ts_code":    tsCode,
		"start_date": start,
		"end_date":   end,
	}, fieldsAdjFactor)
}

// DailyBasic returns per-day valuation metrics for a trade date.
func (c *Client) DailyBasic(ctx context.Context, tradeDate string) (*Result, error) {
	return c.Query(ctx, "daily_basic", map[string]string{
		"trade_date": tradeDate,
	}, fieldsDailyBasic)
}

// DailyBasicByCode returns valuation metrics for one entity over a range.
func (c *Client) DailyBasicByCode(ctx context.Context, tsCode, start, end string) (*Result, error) {
	return c.Query(ctx, "daily_basic", map[string]string{
		"ts_code":    tsCode,
		"start_date": start,
		"end_date":   end,
	}, fieldsDailyBasic)
}

// StkLimit returns limit-up/limit-down prices for a trade date.
func (c *Client) StkLimit(ctx context.Context, tradeDate string) (*Result, error) {
	return c.Query(ctx, "stk_limit", map[string]string{
		"trade_date": tradeDate,
	}, fieldsStkLimit)
}

// Moneyflow returns per-entity money flow for a trade date.
func (c *Client) Moneyflow(ctx context.Context, tradeDate string) (*Result, error) {
	return c.Query(ctx, "moneyflow", map[string]string{
		"trade_date": tradeDate,
	}, fieldsMoneyflow)
}

// TopList returns the dragon-tiger list for a trade date.
func (c *Client) TopList(ctx context.Context, tradeDate string) (*Result, error) {
	return c.Query(ctx, "top_list", map[string]string{
		"trade_date": tradeDate,
	}, fieldsTopList)
}

// FinaIndicatorVIP returns quarterly financial indicators for every
// entity for one report period (YYYYMMDD quarter end). Requires the
// vendor's VIP permission.
func (c *Client) FinaIndicatorVIP(ctx context.Context, period string) (*Result, error) {
	return c.Query(ctx, "fina_indicator_vip", map[string]string{
		"period": period,
	}, fieldsFinaVIP)
}
