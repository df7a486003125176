package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hzhao/stock-selector/pkg/logger"
)

// trackerAPI is the slice of Tracker the processor needs.
type trackerAPI interface {
	Get(ctx context.Context, tsCode string) (*Record, error)
	UpdateStatus(ctx context.Context, tsCode, status, errMsg string) error
}

// StockSyncer ingests raw + business rows for one entity over a date
// range, advancing data_date in the same transaction as the rows.
type StockSyncer interface {
	SyncStockRange(ctx context.Context, tsCode string, start, end time.Time) (int, error)
}

// IndicatorComputer computes and persists indicators for one entity
// window, advancing indicator_date.
type IndicatorComputer interface {
	ComputeRange(ctx context.Context, tsCode string, start, end time.Time) (int, error)
}

// BatchResult summarizes one batch run.
type BatchResult struct {
	Success  int
	Failed   int
	TimedOut bool
}

// Processor drives per-entity catch-up: sync windows then indicator
// windows, with status bookkeeping around both.
type Processor struct {
	tracker      trackerAPI
	syncer       StockSyncer
	engine       IndicatorComputer
	windowDays   int
	historyStart time.Time
	logger       *logger.Logger
}

// NewProcessor creates a processor. windowDays defaults to 365.
func NewProcessor(tracker *Tracker, syncer StockSyncer, engine IndicatorComputer, windowDays int, historyStart time.Time, log *logger.Logger) *Processor {
	return newProcessor(tracker, syncer, engine, windowDays, historyStart, log)
}

func newProcessor(tracker trackerAPI, syncer StockSyncer, engine IndicatorComputer, windowDays int, historyStart time.Time, log *logger.Logger) *Processor {
	if windowDays <= 0 {
		windowDays = 365
	}
	return &Processor{
		tracker:      tracker,
		syncer:       syncer,
		engine:       engine,
		windowDays:   windowDays,
		historyStart: historyStart,
		logger:       log.WithField("component", "processor"),
	}
}

// ProcessSingle catches one entity up to target. The sequence is
// strictly serial: every sync window advances data_date before the
// next starts; indicator windows follow only after all sync windows.
// On failure the entity is marked failed and the error propagates.
func (p *Processor) ProcessSingle(ctx context.Context, tsCode string, target time.Time) error {
	record, err := p.tracker.Get(ctx, tsCode)
	if err != nil {
		return err
	}

	if err := p.syncPhase(ctx, record, target); err != nil {
		p.markFailed(ctx, tsCode, err)
		return err
	}

	if err := p.indicatorPhase(ctx, tsCode, target); err != nil {
		p.markFailed(ctx, tsCode, err)
		return err
	}

	if err := p.tracker.UpdateStatus(ctx, tsCode, StatusIdle, ""); err != nil {
		return err
	}
	return nil
}

func (p *Processor) syncPhase(ctx context.Context, record *Record, target time.Time) error {
	syncStart := p.nextDate(record.DataDate)
	if syncStart.After(target) {
		return nil
	}

	if err := p.tracker.UpdateStatus(ctx, record.TsCode, StatusSyncing, ""); err != nil {
		return err
	}

	for winStart := syncStart; !winStart.After(target); {
		winEnd := winStart.AddDate(0, 0, p.windowDays-1)
		if winEnd.After(target) {
			winEnd = target
		}

		rows, err := p.syncer.SyncStockRange(ctx, record.TsCode, winStart, winEnd)
		if err != nil {
			return fmt.Errorf("sync window %s..%s: %w",
				winStart.Format("2006-01-02"), winEnd.Format("2006-01-02"), err)
		}
		if rows == 0 {
			// 没有数据的窗口不推进 data_date
			p.logger.WithFields(map[string]interface{}{
				"ts_code": record.TsCode,
				"from":    winStart.Format("2006-01-02"),
				"to":      winEnd.Format("2006-01-02"),
			}).Debug("Empty sync window, data_date not advanced")
		}

		winStart = winEnd.AddDate(0, 0, 1)
	}
	return nil
}

func (p *Processor) indicatorPhase(ctx context.Context, tsCode string, target time.Time) error {
	// Re-read: the sync phase moved data_date.
	record, err := p.tracker.Get(ctx, tsCode)
	if err != nil {
		return err
	}

	indicatorStart := p.nextDate(record.IndicatorDate)
	// Indicators never run ahead of data.
	end := target
	if record.DataDate.Before(end) {
		end = record.DataDate
	}
	if indicatorStart.After(end) {
		return nil
	}

	if err := p.tracker.UpdateStatus(ctx, tsCode, StatusComputing, ""); err != nil {
		return err
	}

	for winStart := indicatorStart; !winStart.After(end); {
		winEnd := winStart.AddDate(0, 0, p.windowDays-1)
		if winEnd.After(end) {
			winEnd = end
		}

		if _, err := p.engine.ComputeRange(ctx, tsCode, winStart, winEnd); err != nil {
			return fmt.Errorf("indicator window %s..%s: %w",
				winStart.Format("2006-01-02"), winEnd.Format("2006-01-02"), err)
		}

		winStart = winEnd.AddDate(0, 0, 1)
	}
	return nil
}

// ProcessBatch runs ProcessSingle across codes with bounded
// concurrency. A timeout stops admitting new entities; in-flight ones
// finish and record their own outcome.
func (p *Processor) ProcessBatch(ctx context.Context, codes []string, target time.Time, concurrency int, timeout time.Duration) BatchResult {
	if concurrency <= 0 {
		concurrency = 10
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	var (
		result BatchResult
		mu     sync.Mutex
		wg     sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(concurrency))

	for _, code := range codes {
		if !deadline.IsZero() && time.Now().After(deadline) {
			result.TimedOut = true
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			sem.Release(1)
			result.TimedOut = true
			break
		}

		wg.Add(1)
		go func(tsCode string) {
			defer wg.Done()
			defer sem.Release(1)

			err := p.ProcessSingle(ctx, tsCode, target)
			mu.Lock()
			if err != nil {
				result.Failed++
			} else {
				result.Success++
			}
			mu.Unlock()
		}(code)
	}

	wg.Wait()

	p.logger.WithFields(map[string]interface{}{
		"success":   result.Success,
		"failed":    result.Failed,
		"timed_out": result.TimedOut,
	}).Info("Batch processing finished")

	return result
}

func (p *Processor) markFailed(ctx context.Context, tsCode string, cause error) {
	if err := p.tracker.UpdateStatus(ctx, tsCode, StatusFailed, cause.Error()); err != nil {
		p.logger.WithError(err).WithField("ts_code", tsCode).Warn("Failed to record failure status")
	}
}

// nextDate maps a progress date to the first date still to process.
func (p *Processor) nextDate(current time.Time) time.Time {
	if !current.After(SentinelDate) {
		return p.historyStart
	}
	return current.AddDate(0, 0, 1)
}
