package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hzhao/stock-selector/internal/datamgr"
	"github.com/hzhao/stock-selector/internal/indicator"
	"github.com/hzhao/stock-selector/internal/pipeline"
	"github.com/hzhao/stock-selector/internal/progress"
	"github.com/hzhao/stock-selector/internal/strategy"
	"github.com/hzhao/stock-selector/internal/techcache"
	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/logger"
)

// How far back the chain and startup recovery look for unsynced
// trading days. Older gaps are backfill territory, handled manually.
const missingDatesLookback = 30

// pipelineTopN is the pick count the scheduled chain requests.
const pipelineTopN = 50

// Orchestrator wires the daily chain: probe, ingest, ETL, indicators,
// cache refresh, completeness gate, selection
// ⭐ SSOT: 盘后链路只在这里编排
type Orchestrator struct {
	sched     *Scheduler
	mgr       *datamgr.Manager
	processor *progress.Processor
	engine    *indicator.Engine
	cache     *techcache.TechCache
	pipe      *pipeline.Pipeline
	registry  *strategy.Registry
	state     *RunState
	cfg       *config.Config
	logger    *logger.Logger
	loc       *time.Location
}

// NewOrchestrator creates the chain orchestrator.
func NewOrchestrator(sched *Scheduler, mgr *datamgr.Manager, processor *progress.Processor, engine *indicator.Engine, cache *techcache.TechCache, pipe *pipeline.Pipeline, registry *strategy.Registry, state *RunState, cfg *config.Config, log *logger.Logger) (*Orchestrator, error) {
	loc, err := time.LoadLocation(cronLocation)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cronLocation, err)
	}

	return &Orchestrator{
		sched:     sched,
		mgr:       mgr,
		processor: processor,
		engine:    engine,
		cache:     cache,
		pipe:      pipe,
		registry:  registry,
		state:     state,
		cfg:       cfg,
		logger:    log.WithField("component", "orchestrator"),
		loc:       loc,
	}, nil
}

// RegisterJobs schedules the three standing jobs.
func (o *Orchestrator) RegisterJobs() error {
	jobs := []Job{
		JobFunc{
			JobName: "auto_update",
			Spec:    o.cfg.Scheduler.AutoUpdateCron,
			Fn: func(ctx context.Context) error {
				return o.AutoUpdate(ctx, o.today())
			},
		},
		JobFunc{
			JobName: "retry_failed",
			Spec:    o.cfg.Scheduler.RetryCron,
			Fn: func(ctx context.Context) error {
				return o.RetryFailed(ctx, o.today())
			},
		},
		JobFunc{
			JobName: "refresh_stock_list",
			Spec:    o.cfg.Scheduler.StockListCron,
			Fn: func(ctx context.Context) error {
				_, err := o.mgr.SyncStockList(ctx)
				return err
			},
		},
	}

	for _, job := range jobs {
		if err := o.sched.AddJob(job); err != nil {
			return err
		}
	}
	return nil
}

// today is the current date in the exchange timezone.
func (o *Orchestrator) today() time.Time {
	now := time.Now().In(o.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// AutoUpdate is the daily post-market entry point. It probes data
// readiness and either runs the chain at once or schedules a probe
// ticker for the date.
func (o *Orchestrator) AutoUpdate(ctx context.Context, target time.Time) error {
	log := o.logger.WithField("date", dateKey(target))

	isTrading, err := o.mgr.IsTradeDay(ctx, target)
	if err != nil {
		return err
	}
	if !isTrading {
		log.Info("Not a trading day, skipping")
		return nil
	}

	if done, err := o.state.IsCompleted(ctx, target); err != nil {
		return err
	} else if done {
		log.Info("Run already completed, skipping")
		return nil
	}
	if busy, err := o.state.InFlight(ctx, target); err != nil {
		return err
	} else if busy {
		log.Info("Run already in flight, skipping")
		return nil
	}

	ready, err := o.mgr.ProbeDailyData(ctx, target)
	if err != nil {
		log.WithError(err).Warn("Probe failed, scheduling probe ticker")
		ready = false
	}

	if ready {
		return o.runChainStated(ctx, target)
	}

	return o.startProbeTicker(ctx, target)
}

// startProbeTicker registers the per-date probe job and marks the date
// probing.
func (o *Orchestrator) startProbeTicker(ctx context.Context, target time.Time) error {
	if err := o.state.Set(ctx, target, StateProbing); err != nil {
		return err
	}

	jobName := fmt.Sprintf("probe_and_sync_%s", dateKey(target))
	job := JobFunc{
		JobName: jobName,
		Spec:    fmt.Sprintf("@every %s", o.cfg.Scheduler.ProbeInterval),
		Fn: func(ctx context.Context) error {
			return o.probeTick(ctx, target)
		},
	}

	if err := o.sched.AddJob(job); err != nil {
		return err
	}
	if err := o.state.SaveProbeJob(ctx, target, jobName); err != nil {
		o.logger.WithError(err).Warn("Probe job name not persisted")
	}

	o.logger.WithFields(map[string]interface{}{
		"date":     dateKey(target),
		"interval": o.cfg.Scheduler.ProbeInterval,
	}).Info("Data not ready, probe ticker started")
	return nil
}

// probeTick is one probe ticker firing: stop when completed, fail when
// past the wall-clock deadline, run the chain when the data arrives.
func (o *Orchestrator) probeTick(ctx context.Context, target time.Time) error {
	log := o.logger.WithField("date", dateKey(target))

	if done, err := o.state.IsCompleted(ctx, target); err != nil {
		return err
	} else if done {
		log.Info("Run completed, stopping probe ticker")
		o.stopProbeTicker(ctx, target)
		return nil
	}

	count, err := o.state.IncrProbeCount(ctx, target)
	if err != nil {
		log.WithError(err).Warn("Probe count not recorded")
	}
	log.WithField("probe", count).Info("Probe tick")

	if o.pastProbeDeadline() {
		log.Error("Probe deadline passed with data still unavailable")
		if err := o.state.Set(ctx, target, StateFailed); err != nil {
			return err
		}
		o.stopProbeTicker(ctx, target)
		return nil
	}

	ready, err := o.mgr.ProbeDailyData(ctx, target)
	if err != nil {
		log.WithError(err).Warn("Probe failed, waiting for next tick")
		return nil
	}
	if !ready {
		log.Info("Data not ready, waiting for next tick")
		return nil
	}

	err = o.runChainStated(ctx, target)
	o.stopProbeTicker(ctx, target)
	return err
}

// pastProbeDeadline reports whether the exchange-local clock has
// passed the configured HH:MM probe cutoff.
func (o *Orchestrator) pastProbeDeadline() bool {
	deadline, err := time.Parse("15:04", o.cfg.Scheduler.ProbeTimeout)
	if err != nil {
		return false
	}

	now := time.Now().In(o.loc)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), deadline.Hour(), deadline.Minute(), 0, 0, o.loc)
	return !now.Before(cutoff)
}

func (o *Orchestrator) stopProbeTicker(ctx context.Context, target time.Time) {
	jobName, err := o.state.ProbeJob(ctx, target)
	if err != nil || jobName == "" {
		jobName = fmt.Sprintf("probe_and_sync_%s", dateKey(target))
	}

	if o.sched.HasJob(jobName) {
		if err := o.sched.RemoveJob(jobName); err != nil {
			o.logger.WithError(err).WithField("job", jobName).Warn("Probe ticker not removed")
		}
	}
}

// runChainStated runs the chain under the state machine: syncing while
// running, completed or failed after.
func (o *Orchestrator) runChainStated(ctx context.Context, target time.Time) error {
	if err := o.state.Set(ctx, target, StateSyncing); err != nil {
		return err
	}

	if err := o.RunChain(ctx, target); err != nil {
		if stateErr := o.state.Set(ctx, target, StateFailed); stateErr != nil {
			o.logger.WithError(stateErr).Warn("Failed state not recorded")
		}
		return err
	}

	return o.state.Set(ctx, target, StateCompleted)
}

// RunChain executes the post-market chain for one date. Per-date
// ingest failures are tolerated; a date that never syncs surfaces on
// the next run through missing-date detection.
func (o *Orchestrator) RunChain(ctx context.Context, target time.Time) error {
	log := o.logger.WithField("date", dateKey(target))
	chainStart := time.Now()
	log.Info("Post-market chain started")

	// 日历刷新失败不阻断，沿用库里已有的日历
	calStart := target.AddDate(-1, 0, 0)
	calEnd := target.AddDate(0, 3, 0)
	if _, err := o.mgr.SyncTradeCalendar(ctx, calStart.Format("20060102"), calEnd.Format("20060102")); err != nil {
		log.WithError(err).Warn("Trade calendar refresh failed, continuing")
	}

	isTrading, err := o.mgr.IsTradeDay(ctx, target)
	if err != nil {
		return err
	}
	if !isTrading {
		log.Info("Not a trading day, chain skipped")
		return nil
	}

	acquired, err := o.mgr.AcquireSyncLock(ctx)
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		log.Warn("Sync lock held elsewhere, chain skipped")
		return nil
	}
	defer func() {
		if err := o.mgr.ReleaseSyncLock(context.Background()); err != nil {
			log.WithError(err).Warn("Sync lock not released, TTL will expire it")
		}
	}()

	if _, err := o.mgr.SyncStockList(ctx); err != nil {
		log.WithError(err).Warn("Stock list refresh failed, continuing")
	}

	tracker := o.mgr.Tracker()
	if _, err := tracker.ResetStale(ctx); err != nil {
		return err
	}
	if _, err := tracker.InitProgress(ctx); err != nil {
		return err
	}
	if err := tracker.SyncDelisted(ctx); err != nil {
		return err
	}

	failedDates := o.syncMissingDates(ctx, target)

	o.syncQuarterlyFina(ctx, target)

	if err := o.computeIncremental(ctx, target); err != nil {
		return err
	}

	if _, err := o.cache.RefreshAll(ctx); err != nil {
		log.WithError(err).Warn("Tech cache refresh failed, continuing")
	}

	summary, err := tracker.SyncSummary(ctx, target)
	if err != nil {
		return err
	}
	if summary.CompletionRate < o.cfg.Sync.CompletenessThreshold {
		log.WithFields(map[string]interface{}{
			"completion": summary.CompletionRate,
			"threshold":  o.cfg.Sync.CompletenessThreshold,
		}).Warn("Completeness below threshold, selection skipped")
		return nil
	}

	opts := pipeline.DefaultOptions()
	opts.TopN = pipelineTopN
	result, err := o.pipe.Execute(ctx, o.registry.Names(), target, opts)
	if err != nil {
		return fmt.Errorf("selection pipeline: %w", err)
	}

	log.WithDuration(time.Since(chainStart)).WithFields(map[string]interface{}{
		"picks":        len(result.Picks),
		"failed_dates": failedDates,
	}).Info("Post-market chain finished")
	return nil
}

// syncMissingDates ingests every recent unsynced trading day up to
// target, ascending. Returns how many dates failed.
func (o *Orchestrator) syncMissingDates(ctx context.Context, target time.Time) int {
	missing, err := o.mgr.DetectMissingDates(ctx, target.AddDate(0, 0, -missingDatesLookback), target)
	if err != nil {
		o.logger.WithError(err).Warn("Missing-date detection failed, syncing target only")
		missing = []time.Time{target}
	}

	failed := 0
	for _, d := range missing {
		if _, err := o.mgr.SyncRawDaily(ctx, d); err != nil {
			o.logger.WithError(err).WithField("date", dateKey(d)).Error("Raw ingest failed, date skipped")
			failed++
			continue
		}
		if _, err := o.mgr.ETLDaily(ctx, d); err != nil {
			o.logger.WithError(err).WithField("date", dateKey(d)).Error("Daily ETL failed, date skipped")
			failed++
		}
	}
	return failed
}

// syncQuarterlyFina refreshes the previous quarter's financials in the
// first month of each quarter. Failures never block the chain.
func (o *Orchestrator) syncQuarterlyFina(ctx context.Context, target time.Time) {
	month := int(target.Month())
	if month != 1 && month != 4 && month != 7 && month != 10 {
		return
	}

	period := datamgr.ReportPeriod(target.Year(), month)
	if _, err := o.mgr.SyncRawFina(ctx, period); err != nil {
		o.logger.WithError(err).WithField("period", period).Warn("Financial ingest failed, continuing")
		return
	}
	if _, err := o.mgr.ETLFina(ctx, period); err != nil {
		o.logger.WithError(err).WithField("period", period).Warn("Financial ETL failed, continuing")
	}
}

// computeIncremental advances indicators for every entity whose data
// is ahead of its indicators.
func (o *Orchestrator) computeIncremental(ctx context.Context, target time.Time) error {
	pendings, err := o.mgr.Tracker().StocksNeedingIndicators(ctx, target)
	if err != nil {
		return err
	}
	if len(pendings) == 0 {
		return nil
	}

	historyStart, err := time.Parse("2006-01-02", o.cfg.Sync.HistoryStart)
	if err != nil {
		return fmt.Errorf("parse history start: %w", err)
	}

	targets := make([]indicator.Target, len(pendings))
	for i, p := range pendings {
		from := p.IndicatorDate.AddDate(0, 0, 1)
		if !p.IndicatorDate.After(progress.SentinelDate) {
			from = historyStart
		}
		targets[i] = indicator.Target{TsCode: p.TsCode, From: from}
	}

	success, failed := o.engine.ComputeIncremental(ctx, targets, target)
	o.logger.WithFields(map[string]interface{}{
		"date":    dateKey(target),
		"success": success,
		"failed":  failed,
	}).Info("Incremental indicators computed")
	return nil
}

// RetryFailed resets failed entities to idle, reprocesses them, then
// re-checks the completeness gate and runs the selection layer if it
// now passes.
func (o *Orchestrator) RetryFailed(ctx context.Context, target time.Time) error {
	log := o.logger.WithField("date", dateKey(target))

	tracker := o.mgr.Tracker()
	codes, err := tracker.FailedStocks(ctx, o.cfg.Sync.MaxRetries)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		log.Info("No failed entities to retry")
		return nil
	}

	for _, code := range codes {
		if err := tracker.UpdateStatus(ctx, code, progress.StatusIdle, ""); err != nil {
			return err
		}
	}

	result := o.processor.ProcessBatch(ctx, codes, target, o.cfg.Sync.Concurrency, o.cfg.Sync.BatchTimeout)
	log.WithFields(map[string]interface{}{
		"retried": len(codes),
		"success": result.Success,
		"failed":  result.Failed,
	}).Info("Failed entities reprocessed")

	isTrading, err := o.mgr.IsTradeDay(ctx, target)
	if err != nil || !isTrading {
		return err
	}

	summary, err := tracker.SyncSummary(ctx, target)
	if err != nil {
		return err
	}
	if summary.CompletionRate < o.cfg.Sync.CompletenessThreshold {
		log.WithField("completion", summary.CompletionRate).Info("Gate still below threshold after retry")
		return nil
	}

	opts := pipeline.DefaultOptions()
	opts.TopN = pipelineTopN
	_, err = o.pipe.Execute(ctx, o.registry.Names(), target, opts)
	return err
}

// StartupRecovery brings a restarted process back in step: clear the
// orphaned lock, reset stale statuses, warm the cache, and backfill
// recent missing dates.
func (o *Orchestrator) StartupRecovery(ctx context.Context) error {
	target := o.today()
	log := o.logger.WithField("date", dateKey(target))
	log.Info("Startup recovery started")

	if err := o.mgr.ClearSyncLock(ctx); err != nil {
		log.WithError(err).Warn("Stale lock not cleared")
	}

	tracker := o.mgr.Tracker()
	if n, err := tracker.ResetStale(ctx); err != nil {
		return err
	} else if n > 0 {
		log.WithField("reset", n).Info("Stale statuses reset")
	}
	if _, err := tracker.InitProgress(ctx); err != nil {
		return err
	}
	if err := tracker.SyncDelisted(ctx); err != nil {
		return err
	}

	if err := o.cache.Warmup(ctx); err != nil {
		log.WithError(err).Warn("Cache warmup failed, continuing")
	}

	if failed := o.syncMissingDates(ctx, target); failed > 0 {
		log.WithField("failed_dates", failed).Warn("Some dates not recovered")
	}

	log.Info("Startup recovery finished")
	return nil
}
