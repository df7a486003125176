package indicator

import (
	"context"
	"math"

	"github.com/hzhao/stock-selector/internal/rawstore"
)

// technical_daily column order, shared by the upsert and the cache
// refresher.
var techColumns = []string{
	"ts_code", "trade_date",
	"ma5", "ma10", "ma20", "ma60", "ma120", "ma250",
	"macd_dif", "macd_dea", "macd_hist",
	"kdj_k", "kdj_d", "kdj_j",
	"rsi6", "rsi12", "rsi24",
	"boll_upper", "boll_mid", "boll_lower",
	"vol_ma5", "vol_ma10", "vol_ma20", "vol_ratio",
	"atr14", "wr14", "cci14", "bias", "obv",
	"donchian_upper", "donchian_lower",
}

var techKeyColumns = []string{"ts_code", "trade_date"}

// Columns returns the technical_daily column order. The first two are
// the key columns, the rest are nullable float indicators.
func Columns() []string {
	cols := make([]string, len(techColumns))
	copy(cols, techColumns)
	return cols
}

// Repository persists indicator rows via the generic upsert writer.
type Repository struct {
	store *rawstore.Store
}

// NewRepository creates an indicator repository.
func NewRepository(store *rawstore.Store) *Repository {
	return &Repository{store: store}
}

// UpsertRows writes indicator rows keyed by (ts_code, trade_date).
// Re-runs produce identical rows.
func (r *Repository) UpsertRows(ctx context.Context, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = row.values()
	}
	return r.store.UpsertRows(ctx, "technical_daily", techColumns, techKeyColumns, values)
}

func (row *Row) values() []interface{} {
	return []interface{}{
		row.TsCode, row.TradeDate,
		nanToNil(row.Ma5), nanToNil(row.Ma10), nanToNil(row.Ma20),
		nanToNil(row.Ma60), nanToNil(row.Ma120), nanToNil(row.Ma250),
		nanToNil(row.MacdDif), nanToNil(row.MacdDea), nanToNil(row.MacdHist),
		nanToNil(row.KdjK), nanToNil(row.KdjD), nanToNil(row.KdjJ),
		nanToNil(row.Rsi6), nanToNil(row.Rsi12), nanToNil(row.Rsi24),
		nanToNil(row.BollUpper), nanToNil(row.BollMid), nanToNil(row.BollLower),
		nanToNil(row.VolMa5), nanToNil(row.VolMa10), nanToNil(row.VolMa20), nanToNil(row.VolRatio),
		nanToNil(row.Atr14), nanToNil(row.Wr14), nanToNil(row.Cci14),
		nanToNil(row.Bias), nanToNil(row.Obv),
		nanToNil(row.DonchianUpper), nanToNil(row.DonchianLower),
	}
}

// nanToNil converts an undefined indicator value to SQL NULL.
func nanToNil(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
