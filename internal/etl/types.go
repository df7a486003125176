package etl

import "time"

// Trade status values on business daily rows.
const (
	StatusTrading   = "trading"
	StatusSuspended = "suspended"
)

// StockInfo is a row of the stocks business table.
type StockInfo struct {
	TsCode     string
	Symbol     string
	Name       string
	Area       string
	Industry   string
	Market     string
	Exchange   string
	ListStatus string // L / D / P
	ListDate   *time.Time
	DelistDate *time.Time
}

// TradingDay is a row of the trade_calendar business table.
type TradingDay struct {
	Exchange     string
	CalDate      time.Time
	IsOpen       bool
	PreTradeDate *time.Time
}

// DailyBar is a row of the stock_daily business table. Amounts are in
// yuan (the vendor reports thousand yuan).
type DailyBar struct {
	TsCode       string
	TradeDate    time.Time
	Open         *float64
	High         *float64
	Low          *float64
	Close        *float64
	PreClose     *float64
	PctChg       *float64
	Vol          float64
	Amount       float64
	AdjFactor    *float64
	TurnoverRate *float64
	TradeStatus  string
}

// FinaRow is a row of the fina_indicators business table, one per
// (ts_code, end_date) report period.
type FinaRow struct {
	TsCode            string
	AnnDate           *time.Time
	EndDate           time.Time
	EPS               *float64
	ROE               *float64
	GrossProfitMargin *float64
	NetProfitMargin   *float64
	DebtToAssets      *float64
	CurrentRatio      *float64
	QuickRatio        *float64
	RevenueYoY        *float64
	NetProfitYoY      *float64
	BPS               *float64
	CFPS              *float64
}
