package commands

import (
	"fmt"
	"time"

	"github.com/hzhao/stock-selector/internal/ai"
	"github.com/hzhao/stock-selector/internal/datamgr"
	"github.com/hzhao/stock-selector/internal/indicator"
	"github.com/hzhao/stock-selector/internal/pipeline"
	"github.com/hzhao/stock-selector/internal/progress"
	"github.com/hzhao/stock-selector/internal/rawstore"
	"github.com/hzhao/stock-selector/internal/scheduler"
	"github.com/hzhao/stock-selector/internal/strategy"
	"github.com/hzhao/stock-selector/internal/techcache"
	"github.com/hzhao/stock-selector/internal/tushare"
	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/database"
	"github.com/hzhao/stock-selector/pkg/logger"
	"github.com/hzhao/stock-selector/pkg/redis"
)

// indicatorWorkers is the bounded pool size for indicator batches.
const indicatorWorkers = 8

// app bundles every wired component a command may need. Each command
// builds one, uses what it needs and closes it.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	rdb      *redis.Client
	tracker  *progress.Tracker
	mgr      *datamgr.Manager
	engine   *indicator.Engine
	proc     *progress.Processor
	cache    *techcache.TechCache
	registry *strategy.Registry
	pipe     *pipeline.Pipeline
}

// newApp loads configuration and wires the full component graph.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	historyStart, err := time.Parse("2006-01-02", cfg.Sync.HistoryStart)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parse history start: %w", err)
	}

	store := rawstore.New(db.Pool, log)
	tracker := progress.NewTracker(db.Pool, log)
	client := tushare.New(cfg, log)
	mgr := datamgr.New(db.Pool, store, client, tracker, rdb, cfg, log)

	repo := indicator.NewRepository(store)
	engine := indicator.NewEngine(mgr, repo, tracker, cfg.Sync.IndicatorLookback, indicatorWorkers, log)
	proc := progress.NewProcessor(tracker, mgr, engine, cfg.Sync.BatchDaysWindow, historyStart, log)

	cache := techcache.New(db.Pool, rdb, cfg, log)
	registry := strategy.NewDefaultRegistry()
	scorer := ai.NewManager(cfg, rdb, log)
	pipe := pipeline.New(db.Pool, store, registry, scorer, log)

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		rdb:      rdb,
		tracker:  tracker,
		mgr:      mgr,
		engine:   engine,
		proc:     proc,
		cache:    cache,
		registry: registry,
		pipe:     pipe,
	}, nil
}

// newSchedulerless wires an orchestrator for one-shot command use.
// The embedded cron scheduler is never started.
func newSchedulerless(a *app) (*scheduler.Orchestrator, error) {
	sched, err := scheduler.New(a.log)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	state := scheduler.NewRunState(a.rdb)
	return scheduler.NewOrchestrator(sched, a.mgr, a.proc, a.engine, a.cache, a.pipe, a.registry, state, a.cfg, a.log)
}

// Close releases the database and cache handles.
func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.WithError(err).Warn("Redis close failed")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
