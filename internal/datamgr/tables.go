package datamgr

import (
	"github.com/hzhao/stock-selector/internal/etl"
	"github.com/hzhao/stock-selector/internal/tushare"
)

// Raw table names mirror the vendor endpoint names.
const (
	tableRawStockBasic = "raw_tushare_stock_basic"
	tableRawTradeCal   = "raw_tushare_trade_cal"
	tableRawDaily      = "raw_tushare_daily"
	tableRawAdjFactor  = "raw_tushare_adj_factor"
	tableRawDailyBasic = "raw_tushare_daily_basic"
	tableRawStkLimit   = "raw_tushare_stk_limit"
	tableRawMoneyflow  = "raw_tushare_moneyflow"
	tableRawTopList    = "raw_tushare_top_list"
	tableRawFina       = "raw_tushare_fina_indicator"
)

// Raw column lists pin the vendor field order; the leading columns of
// each list form the idempotency key.
var (
	colsStockBasic = []string{"ts_code", "symbol", "name", "area", "industry", "market", "exchange", "list_status", "list_date", "delist_date"}
	keysStockBasic = []string{"ts_code"}

	colsTradeCal = []string{"exchange", "cal_date", "is_open", "pretrade_date"}
	keysTradeCal = []string{"exchange", "cal_date"}

	colsDaily = []string{"ts_code", "trade_date", "open", "high", "low", "close", "pre_close", "change", "pct_chg", "vol", "amount"}

	colsAdjFactor = []string{"ts_code", "trade_date", "adj_factor"}

	colsDailyBasic = []string{"ts_code", "trade_date", "close", "turnover_rate", "turnover_rate_f", "volume_ratio", "pe", "pe_ttm", "pb", "ps", "dv_ratio", "dv_ttm", "total_share", "float_share", "total_mv", "circ_mv"}

	colsStkLimit = []string{"ts_code", "trade_date", "up_limit", "down_limit"}

	colsMoneyflow = []string{"ts_code", "trade_date", "buy_sm_vol", "buy_sm_amount", "sell_sm_vol", "sell_sm_amount", "buy_md_vol", "buy_md_amount", "sell_md_vol", "sell_md_amount", "buy_lg_vol", "buy_lg_amount", "sell_lg_vol", "sell_lg_amount", "buy_elg_vol", "buy_elg_amount", "sell_elg_vol", "sell_elg_amount", "net_mf_vol", "net_mf_amount"}

	// A stock can land on the winners list several times on one day,
	// once per reason, so reason is part of the key.
	colsTopList = []string{"ts_code", "trade_date", "reason", "name", "close", "pct_change", "turnover_rate", "amount", "l_sell", "l_buy", "l_amount", "net_amount", "net_rate", "amount_rate"}
	keysTopList = []string{"ts_code", "trade_date", "reason"}

	colsFina = []string{"ts_code", "end_date", "ann_date", "eps", "roe", "roe_waa", "grossprofit_margin", "netprofit_margin", "debt_to_assets", "current_ratio", "quick_ratio", "or_yoy", "netprofit_yoy", "basic_eps_yoy", "bps", "cfps", "dt_eps"}
	keysFina = []string{"ts_code", "end_date"}

	keysCodeDate = []string{"ts_code", "trade_date"}
)

// Business table column lists.
var (
	colsStocks = []string{"ts_code", "symbol", "name", "area", "industry", "market", "exchange", "list_status", "list_date", "delist_date"}

	colsCalendar = []string{"exchange", "cal_date", "is_open", "pretrade_date"}

	colsStockDaily = []string{"ts_code", "trade_date", "open", "high", "low", "close", "pre_close", "pct_chg", "vol", "amount", "adj_factor", "turnover_rate", "trade_status"}

	colsFinaBiz = []string{"ts_code", "end_date", "ann_date", "eps", "roe", "grossprofit_margin", "netprofit_margin", "debt_to_assets", "current_ratio", "quick_ratio", "revenue_yoy", "netprofit_yoy", "bps", "cfps"}
)

// rawRows aligns vendor payload rows with a raw table's column order.
// Rows whose first keyCount cells render empty are dropped: they could
// never satisfy the idempotency key.
func rawRows(res *tushare.Result, columns []string, keyCount int) [][]interface{} {
	maps := res.Maps()
	out := make([][]interface{}, 0, len(maps))

rows:
	for _, m := range maps {
		row := make([]interface{}, len(columns))
		for i, col := range columns {
			row[i] = m[col]
			if i < keyCount && tushare.CellString(row[i]) == "" {
				continue rows
			}
		}
		out = append(out, row)
	}
	return out
}

func stockRow(info etl.StockInfo) []interface{} {
	return []interface{}{
		info.TsCode, info.Symbol, info.Name, info.Area, info.Industry,
		info.Market, info.Exchange, info.ListStatus, info.ListDate, info.DelistDate,
	}
}

func calendarRow(day etl.TradingDay) []interface{} {
	return []interface{}{day.Exchange, day.CalDate, day.IsOpen, day.PreTradeDate}
}

func barRow(bar etl.DailyBar) []interface{} {
	return []interface{}{
		bar.TsCode, bar.TradeDate, bar.Open, bar.High, bar.Low, bar.Close,
		bar.PreClose, bar.PctChg, bar.Vol, bar.Amount, bar.AdjFactor,
		bar.TurnoverRate, bar.TradeStatus,
	}
}

func finaRow(fina etl.FinaRow) []interface{} {
	return []interface{}{
		fina.TsCode, fina.EndDate, fina.AnnDate, fina.EPS, fina.ROE,
		fina.GrossProfitMargin, fina.NetProfitMargin, fina.DebtToAssets,
		fina.CurrentRatio, fina.QuickRatio, fina.RevenueYoY, fina.NetProfitYoY,
		fina.BPS, fina.CFPS,
	}
}
