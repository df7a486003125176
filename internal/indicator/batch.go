package indicator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hzhao/stock-selector/internal/etl"
	"github.com/hzhao/stock-selector/pkg/logger"
)

// BarSource loads business bars for one entity over a date range.
type BarSource interface {
	GetDailyBars(ctx context.Context, tsCode string, start, end time.Time) ([]etl.DailyBar, error)
}

// ProgressSink records indicator advancement and per-entity failures.
type ProgressSink interface {
	UpdateIndicatorProgress(ctx context.Context, tsCode string, date time.Time) error
	UpdateStatus(ctx context.Context, tsCode, status, errMsg string) error
}

// RowWriter persists computed indicator rows.
type RowWriter interface {
	UpsertRows(ctx context.Context, rows []Row) (int, error)
}

// Target is one entity's pending indicator window.
type Target struct {
	TsCode string
	From   time.Time // first date needing indicators
}

// Engine computes and persists indicator rows for many entities.
type Engine struct {
	bars     BarSource
	repo     RowWriter
	progress ProgressSink
	lookback int // calendar days of context loaded before a window
	workers  int
	logger   *logger.Logger
}

// NewEngine creates the engine. workers is floored at 8.
func NewEngine(bars BarSource, repo RowWriter, progress ProgressSink, lookback, workers int, log *logger.Logger) *Engine {
	if workers < 8 {
		workers = 8
	}
	if lookback <= 0 {
		lookback = 300
	}
	return &Engine{
		bars:     bars,
		repo:     repo,
		progress: progress,
		lookback: lookback,
		workers:  workers,
		logger:   log.WithField("component", "indicator"),
	}
}

// ComputeRange computes indicators for one entity over
// [winStart, winEnd]. History back to winStart − lookback is loaded so
// long-window indicators have context; only rows inside the window are
// written. Advances indicator_date to the last written date. A window
// with no bars writes nothing and does not advance.
func (e *Engine) ComputeRange(ctx context.Context, tsCode string, winStart, winEnd time.Time) (int, error) {
	loadStart := winStart.AddDate(0, 0, -e.lookback)

	dailyBars, err := e.bars.GetDailyBars(ctx, tsCode, loadStart, winEnd)
	if err != nil {
		return 0, fmt.Errorf("load bars for %s: %w", tsCode, err)
	}

	bars := toBars(dailyBars)
	if len(bars) == 0 {
		return 0, nil
	}

	rows := Compute(tsCode, bars)

	// Keep only rows inside the requested window.
	inWindow := rows[:0:0]
	var lastDate time.Time
	for _, row := range rows {
		if row.TradeDate.Before(winStart) || row.TradeDate.After(winEnd) {
			continue
		}
		inWindow = append(inWindow, row)
		if row.TradeDate.After(lastDate) {
			lastDate = row.TradeDate
		}
	}
	if len(inWindow) == 0 {
		return 0, nil
	}

	written, err := e.repo.UpsertRows(ctx, inWindow)
	if err != nil {
		return 0, fmt.Errorf("upsert indicators for %s: %w", tsCode, err)
	}

	if err := e.progress.UpdateIndicatorProgress(ctx, tsCode, lastDate); err != nil {
		return written, fmt.Errorf("advance indicator_date for %s: %w", tsCode, err)
	}
	return written, nil
}

// ComputeAll recomputes the full history for every target up to end.
// Entities run in parallel on a bounded pool; a failing entity is
// marked failed and does not affect the rest.
func (e *Engine) ComputeAll(ctx context.Context, codes []string, historyStart, end time.Time) (success, failed int) {
	targets := make([]Target, len(codes))
	for i, code := range codes {
		targets[i] = Target{TsCode: code, From: historyStart}
	}
	return e.computeTargets(ctx, targets, end)
}

// ComputeIncremental computes each target's pending window up to end.
func (e *Engine) ComputeIncremental(ctx context.Context, targets []Target, end time.Time) (success, failed int) {
	return e.computeTargets(ctx, targets, end)
}

func (e *Engine) computeTargets(ctx context.Context, targets []Target, end time.Time) (int, int) {
	var okCount, failCount int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			written, err := e.ComputeRange(gctx, target.TsCode, target.From, end)
			if err != nil {
				atomic.AddInt64(&failCount, 1)
				e.logger.WithError(err).WithField("ts_code", target.TsCode).Error("Indicator computation failed")
				if serr := e.progress.UpdateStatus(gctx, target.TsCode, "failed", truncateError(err)); serr != nil {
					e.logger.WithError(serr).WithField("ts_code", target.TsCode).Warn("Failed to mark stock failed")
				}
				return nil
			}
			atomic.AddInt64(&okCount, 1)
			if written > 0 {
				e.logger.WithFields(map[string]interface{}{
					"ts_code": target.TsCode,
					"rows":    written,
				}).Debug("Indicators computed")
			}
			return nil
		})
	}

	_ = g.Wait()
	return int(atomic.LoadInt64(&okCount)), int(atomic.LoadInt64(&failCount))
}

// toBars drops rows without a close price; missing OHL fall back to
// close so suspended days do not poison ranges.
func toBars(dailyBars []etl.DailyBar) []Bar {
	bars := make([]Bar, 0, len(dailyBars))
	for _, db := range dailyBars {
		if db.Close == nil {
			continue
		}
		c := *db.Close
		bar := Bar{TradeDate: db.TradeDate, Open: c, High: c, Low: c, Close: c, Vol: db.Vol}
		if db.Open != nil {
			bar.Open = *db.Open
		}
		if db.High != nil {
			bar.High = *db.High
		}
		if db.Low != nil {
			bar.Low = *db.Low
		}
		bars = append(bars, bar)
	}
	return bars
}

// truncateError keeps the first 500 chars for the progress table.
func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
