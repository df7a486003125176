package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hzhao/stock-selector/internal/etl"
	"github.com/hzhao/stock-selector/internal/indicator"
	"github.com/hzhao/stock-selector/internal/strategy"
)

// universeRow is one Layer-1 survivor.
type universeRow struct {
	TsCode       string
	Name         string
	Close        *float64
	PctChg       *float64
	Vol          float64
	TurnoverRate *float64
}

// layer1 pulls the tradable universe for the target date: listed,
// traded and liquid enough. The ST name filter runs in Go like the
// rest of the name handling.
func (p *Pipeline) layer1(ctx context.Context, target time.Time, opts Options) ([]universeRow, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT sd.ts_code, s.name, sd.close, sd.pct_chg, sd.vol, sd.turnover_rate
		FROM stock_daily sd
		JOIN stocks s ON sd.ts_code = s.ts_code
		WHERE sd.trade_date = $1
		  AND s.list_status = 'L'
		  AND sd.vol > 0
		  AND sd.turnover_rate >= $2
	`, target, opts.MinTurnoverRate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []universeRow
	for rows.Next() {
		var r universeRow
		if err := rows.Scan(&r.TsCode, &r.Name, &r.Close, &r.PctChg, &r.Vol, &r.TurnoverRate); err != nil {
			return nil, err
		}
		if opts.ExcludeST && strings.Contains(strings.ToUpper(r.Name), "ST") {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// buildSnapshot joins today's and the previous trading day's
// indicator rows for the Layer-1 survivors into a column-oriented
// snapshot. Yesterday's columns land in Prev under their plain names,
// plus Prev["close"] from the daily bar.
func (p *Pipeline) buildSnapshot(ctx context.Context, universe []universeRow, target time.Time) (*strategy.Snapshot, error) {
	snap := strategy.NewSnapshot(len(universe))
	index := make(map[string]int, len(universe))
	codes := make([]string, len(universe))
	for i, r := range universe {
		snap.TsCodes[i] = r.TsCode
		snap.Names[i] = r.Name
		if r.Close != nil {
			snap.Close[i] = *r.Close
		}
		if r.PctChg != nil {
			snap.PctChg[i] = *r.PctChg
		}
		snap.Vol[i] = r.Vol
		if r.TurnoverRate != nil {
			snap.TurnoverRate[i] = *r.TurnoverRate
		}
		index[r.TsCode] = i
		codes[i] = r.TsCode
	}

	indicatorCols := indicator.Columns()[2:]
	colList := strings.Join(indicatorCols, ", ")

	// 当日指标
	today, err := p.pool.Query(ctx,
		`SELECT ts_code, `+colList+` FROM technical_daily
		 WHERE trade_date = $1 AND ts_code = ANY($2)`, target, codes)
	if err != nil {
		return nil, fmt.Errorf("query technical rows: %w", err)
	}
	if err := scanIndicatorRows(today, indicatorCols, index, snap.SetIndicator); err != nil {
		return nil, err
	}

	// 前一交易日
	var prevDate *time.Time
	err = p.pool.QueryRow(ctx,
		`SELECT MAX(trade_date) FROM stock_daily WHERE trade_date < $1 AND vol > 0`,
		target).Scan(&prevDate)
	if err != nil {
		return nil, fmt.Errorf("resolve previous trade date: %w", err)
	}
	if prevDate == nil {
		return snap, nil
	}

	prev, err := p.pool.Query(ctx,
		`SELECT td.ts_code, sd.close, `+prefixColumns("td", indicatorCols)+`
		 FROM technical_daily td
		 JOIN stock_daily sd ON td.ts_code = sd.ts_code AND td.trade_date = sd.trade_date
		 WHERE td.trade_date = $1 AND td.ts_code = ANY($2)`, *prevDate, codes)
	if err != nil {
		return nil, fmt.Errorf("query previous technical rows: %w", err)
	}
	defer prev.Close()

	for prev.Next() {
		var tsCode string
		var closePrev *float64
		floats := make([]*float64, len(indicatorCols))
		dest := make([]any, 0, len(indicatorCols)+2)
		dest = append(dest, &tsCode, &closePrev)
		for i := range floats {
			dest = append(dest, &floats[i])
		}
		if err := prev.Scan(dest...); err != nil {
			return nil, err
		}
		i, ok := index[tsCode]
		if !ok {
			continue
		}
		if closePrev != nil {
			snap.SetIndicatorPrev("close", i, *closePrev)
		}
		for c, v := range floats {
			if v != nil {
				snap.SetIndicatorPrev(indicatorCols[c], i, *v)
			}
		}
	}
	return snap, prev.Err()
}

// indicatorRowScanner matches pgx.Rows for scanIndicatorRows.
type indicatorRowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func scanIndicatorRows(rows indicatorRowScanner, cols []string, index map[string]int, set func(name string, i int, v float64)) error {
	defer rows.Close()
	for rows.Next() {
		var tsCode string
		floats := make([]*float64, len(cols))
		dest := make([]any, 0, len(cols)+1)
		dest = append(dest, &tsCode)
		for i := range floats {
			dest = append(dest, &floats[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		i, ok := index[tsCode]
		if !ok {
			continue
		}
		for c, v := range floats {
			if v != nil {
				set(cols[c], i, *v)
			}
		}
	}
	return rows.Err()
}

// enrichFundamentals joins the latest announced financial report per
// entity plus the per-day valuation row. Per-day values win where
// both exist.
// 报告期数据按 ann_date <= D 取最新一期
func (p *Pipeline) enrichFundamentals(ctx context.Context, snap *strategy.Snapshot, target time.Time) error {
	index := make(map[string]int, snap.Len())
	for i, code := range snap.TsCodes {
		index[code] = i
	}
	codes := snap.TsCodes

	fina, err := p.pool.Query(ctx, `
		SELECT DISTINCT ON (ts_code)
			ts_code, roe, revenue_yoy, netprofit_yoy, debt_to_assets, current_ratio
		FROM fina_indicators
		WHERE ts_code = ANY($1) AND ann_date <= $2
		ORDER BY ts_code, end_date DESC
	`, codes, target)
	if err != nil {
		return fmt.Errorf("query financial reports: %w", err)
	}
	defer fina.Close()

	for fina.Next() {
		var tsCode string
		var roe, revYoY, profitYoY, debt, current *float64
		if err := fina.Scan(&tsCode, &roe, &revYoY, &profitYoY, &debt, &current); err != nil {
			return err
		}
		i, ok := index[tsCode]
		if !ok {
			continue
		}
		setIfPresent(snap.Roe, i, roe)
		setIfPresent(snap.RevenueYoY, i, revYoY)
		setIfPresent(snap.ProfitYoY, i, profitYoY)
		setIfPresent(snap.DebtRatio, i, debt)
		setIfPresent(snap.CurrentRatio, i, current)
	}
	if err := fina.Err(); err != nil {
		return err
	}

	// 每日估值（raw 表的 trade_date 为 YYYYMMDD 字符串）
	basics, err := p.pool.Query(ctx, `
		SELECT ts_code, pe_ttm, pb, dv_ttm, total_mv
		FROM raw_tushare_daily_basic
		WHERE trade_date = $1 AND ts_code = ANY($2)
	`, target.Format("20060102"), codes)
	if err != nil {
		return fmt.Errorf("query daily valuations: %w", err)
	}
	defer basics.Close()

	for basics.Next() {
		var tsCode string
		var peRaw, pbRaw, dvRaw, mvRaw *string
		if err := basics.Scan(&tsCode, &peRaw, &pbRaw, &dvRaw, &mvRaw); err != nil {
			return err
		}
		i, ok := index[tsCode]
		if !ok {
			continue
		}
		setParsed(snap.PeTTM, i, peRaw)
		setParsed(snap.Pb, i, pbRaw)
		setParsed(snap.DividendYield, i, dvRaw)
		setParsed(snap.TotalMV, i, mvRaw)
	}
	return basics.Err()
}

func setIfPresent(col []float64, i int, v *float64) {
	if v != nil {
		col[i] = *v
	}
}

func setParsed(col []float64, i int, raw *string) {
	if raw == nil {
		return
	}
	if v, ok := etl.ParseDecimal(*raw); ok {
		col[i] = v
	}
}

// filterSnapshot keeps the rows where mask is true, preserving order.
func filterSnapshot(snap *strategy.Snapshot, mask []bool) *strategy.Snapshot {
	n := 0
	for _, keep := range mask {
		if keep {
			n++
		}
	}
	out := strategy.NewSnapshot(n)

	j := 0
	for i, keep := range mask {
		if !keep {
			continue
		}
		out.TsCodes[j] = snap.TsCodes[i]
		out.Names[j] = snap.Names[i]
		out.Close[j] = snap.Close[i]
		out.PctChg[j] = snap.PctChg[i]
		out.Vol[j] = snap.Vol[i]
		out.TurnoverRate[j] = snap.TurnoverRate[i]
		out.PeTTM[j] = snap.PeTTM[i]
		out.Pb[j] = snap.Pb[i]
		out.DividendYield[j] = snap.DividendYield[i]
		out.TotalMV[j] = snap.TotalMV[i]
		out.Roe[j] = snap.Roe[i]
		out.ProfitYoY[j] = snap.ProfitYoY[i]
		out.RevenueYoY[j] = snap.RevenueYoY[i]
		out.DebtRatio[j] = snap.DebtRatio[i]
		out.CurrentRatio[j] = snap.CurrentRatio[i]
		for name, col := range snap.Ind {
			out.SetIndicator(name, j, col[i])
		}
		for name, col := range snap.Prev {
			out.SetIndicatorPrev(name, j, col[i])
		}
		j++
	}
	return out
}

func prefixColumns(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}
