package etl

import "time"

// Pure transformers from raw vendor rows (field → cell maps) to
// business rows. Re-running any transformer over the same input yields
// identical output.

// TransformStockBasic maps raw stock_basic rows to stocks rows.
// Rows without a ts_code are dropped.
func TransformStockBasic(raw []map[string]interface{}) []StockInfo {
	out := make([]StockInfo, 0, len(raw))
	for _, row := range raw {
		code := NormalizeCode(cellString(row["ts_code"]), "tushare")
		if code == "" {
			continue
		}

		info := StockInfo{
			TsCode:     code,
			Symbol:     cellString(row["symbol"]),
			Name:       cellString(row["name"]),
			Area:       cellString(row["area"]),
			Industry:   cellString(row["industry"]),
			Market:     cellString(row["market"]),
			Exchange:   cellString(row["exchange"]),
			ListStatus: cellString(row["list_status"]),
		}
		if d, ok := ParseDate(row["list_date"]); ok {
			info.ListDate = &d
		}
		if d, ok := ParseDate(row["delist_date"]); ok {
			info.DelistDate = &d
		}
		out = append(out, info)
	}
	return out
}

// TransformTradeCal maps raw trade_cal rows to trade_calendar rows.
// Rows with an unparsable cal_date are dropped.
func TransformTradeCal(raw []map[string]interface{}) []TradingDay {
	out := make([]TradingDay, 0, len(raw))
	for _, row := range raw {
		calDate, ok := ParseDate(row["cal_date"])
		if !ok {
			continue
		}

		day := TradingDay{
			Exchange: cellString(row["exchange"]),
			CalDate:  calDate,
		}
		if f, ok := ParseDecimal(row["is_open"]); ok {
			day.IsOpen = f != 0
		}
		if d, ok := ParseDate(row["pretrade_date"]); ok {
			day.PreTradeDate = &d
		}
		out = append(out, day)
	}
	return out
}

// TransformDaily joins the three raw daily tables on
// (ts_code, trade_date string) and emits business bars.
//   - core OHLCV from raw_daily
//   - adj_factor from raw_adj_factor (optional)
//   - turnover_rate from raw_daily_basic (optional)
//
// Vendor amounts are thousand yuan; bars carry yuan. Rows whose
// trade_date does not parse are dropped. trade_status is suspended
// exactly when vol = 0 and amount = 0.
func TransformDaily(daily, adj, basic []map[string]interface{}) []DailyBar {
	adjByKey := indexByKey(adj)
	basicByKey := indexByKey(basic)

	out := make([]DailyBar, 0, len(daily))
	for _, row := range daily {
		code := NormalizeCode(cellString(row["ts_code"]), "tushare")
		dateStr := cellString(row["trade_date"])
		tradeDate, ok := ParseDate(dateStr)
		if code == "" || !ok {
			continue
		}

		bar := DailyBar{
			TsCode:    code,
			TradeDate: tradeDate,
			Open:      decimalPtr(row["open"]),
			High:      decimalPtr(row["high"]),
			Low:       decimalPtr(row["low"]),
			Close:     decimalPtr(row["close"]),
			PreClose:  decimalPtr(row["pre_close"]),
			PctChg:    decimalPtr(row["pct_chg"]),
		}

		if v, ok := ParseDecimal(row["vol"]); ok {
			bar.Vol = v
		}
		if a, ok := ParseDecimal(row["amount"]); ok {
			bar.Amount = a * 1000 // 千元 → 元
		}

		key := code + "|" + dateStr
		if partner, ok := adjByKey[key]; ok {
			bar.AdjFactor = decimalPtr(partner["adj_factor"])
		}
		if partner, ok := basicByKey[key]; ok {
			bar.TurnoverRate = decimalPtr(partner["turnover_rate"])
		}

		if bar.Vol == 0 && bar.Amount == 0 {
			bar.TradeStatus = StatusSuspended
		} else {
			bar.TradeStatus = StatusTrading
		}

		out = append(out, bar)
	}
	return out
}

// TransformFinaIndicator maps raw fina_indicator_vip rows to
// fina_indicators rows. Rows without a parsable end_date are dropped.
func TransformFinaIndicator(raw []map[string]interface{}) []FinaRow {
	out := make([]FinaRow, 0, len(raw))
	for _, row := range raw {
		code := NormalizeCode(cellString(row["ts_code"]), "tushare")
		endDate, ok := ParseDate(row["end_date"])
		if code == "" || !ok {
			continue
		}

		fina := FinaRow{
			TsCode:            code,
			EndDate:           endDate,
			EPS:               decimalPtr(row["eps"]),
			ROE:               firstDecimal(row["roe"], row["roe_waa"]),
			GrossProfitMargin: decimalPtr(row["grossprofit_margin"]),
			NetProfitMargin:   decimalPtr(row["netprofit_margin"]),
			DebtToAssets:      decimalPtr(row["debt_to_assets"]),
			CurrentRatio:      decimalPtr(row["current_ratio"]),
			QuickRatio:        decimalPtr(row["quick_ratio"]),
			RevenueYoY:        decimalPtr(row["or_yoy"]),
			NetProfitYoY:      decimalPtr(row["netprofit_yoy"]),
			BPS:               decimalPtr(row["bps"]),
			CFPS:              decimalPtr(row["cfps"]),
		}
		if d, ok := ParseDate(row["ann_date"]); ok {
			fina.AnnDate = &d
		}
		out = append(out, fina)
	}
	return out
}

// indexByKey maps raw rows by "ts_code|trade_date" for join lookups.
func indexByKey(rows []map[string]interface{}) map[string]map[string]interface{} {
	idx := make(map[string]map[string]interface{}, len(rows))
	for _, row := range rows {
		code := NormalizeCode(cellString(row["ts_code"]), "tushare")
		dateStr := cellString(row["trade_date"])
		if code == "" || dateStr == "" {
			continue
		}
		idx[code+"|"+dateStr] = row
	}
	return idx
}

func firstDecimal(cells ...interface{}) *float64 {
	for _, c := range cells {
		if p := decimalPtr(c); p != nil {
			return p
		}
	}
	return nil
}

// DateKey renders a date in the vendor's YYYYMMDD spelling.
func DateKey(d time.Time) string {
	return d.Format("20060102")
}
