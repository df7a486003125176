// Package pipeline runs the five-layer stock selection funnel:
// SQL 粗筛 → 技术面策略 → 基本面策略 → 加权排序 → AI 终审.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hzhao/stock-selector/internal/ai"
	"github.com/hzhao/stock-selector/internal/rawstore"
	"github.com/hzhao/stock-selector/internal/strategy"
	"github.com/hzhao/stock-selector/pkg/logger"
)

// Pick is one selected stock with its ranking context.
type Pick struct {
	TsCode            string
	Name              string
	Close             float64
	PctChg            float64
	MatchedStrategies []string
	MatchCount        int
	Score             float64 // Layer-4 weighted score

	AiScore   *int
	AiSignal  *string
	AiSummary *string
}

// Result is one pipeline run.
type Result struct {
	TargetDate time.Time
	Picks      []Pick
	LayerStats map[string]int
	Elapsed    time.Duration
	AIEnabled  bool
}

// Scorer is the Layer-5 backend. *ai.Manager satisfies it.
type Scorer interface {
	Enabled() bool
	Analyze(ctx context.Context, candidates []ai.Candidate, target time.Time) (*ai.Result, error)
}

// Options tune one run.
type Options struct {
	TopN            int
	MinTurnoverRate float64
	ExcludeST       bool
	// 策略名 -> 参数覆盖
	StrategyParams map[string]map[string]float64
}

// DefaultOptions mirror the original funnel defaults.
func DefaultOptions() Options {
	return Options{TopN: 30, MinTurnoverRate: 0.001, ExcludeST: true}
}

// Pipeline wires the funnel's dependencies.
type Pipeline struct {
	pool     *pgxpool.Pool
	store    *rawstore.Store
	registry *strategy.Registry
	scorer   Scorer
	logger   *logger.Logger
}

// New creates a pipeline. scorer may be nil to disable Layer 5
// structurally.
func New(pool *pgxpool.Pool, store *rawstore.Store, registry *strategy.Registry, scorer Scorer, log *logger.Logger) *Pipeline {
	return &Pipeline{
		pool:     pool,
		store:    store,
		registry: registry,
		scorer:   scorer,
		logger:   log.WithField("component", "pipeline"),
	}
}

// Execute runs the funnel for one target date over the named
// strategies. Persistence failures are logged and do not corrupt the
// returned result.
func (p *Pipeline) Execute(ctx context.Context, strategyNames []string, target time.Time, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{
		TargetDate: target,
		LayerStats: make(map[string]int),
		AIEnabled:  p.scorer != nil && p.scorer.Enabled(),
	}
	if len(strategyNames) == 0 {
		result.Elapsed = time.Since(start)
		return result, nil
	}
	if opts.TopN <= 0 {
		opts.TopN = 30
	}

	strategies, err := p.resolveStrategies(strategyNames, opts.StrategyParams)
	if err != nil {
		return nil, err
	}

	// Layer 1: SQL 粗筛
	universe, err := p.layer1(ctx, target, opts)
	if err != nil {
		return nil, fmt.Errorf("layer 1 filter: %w", err)
	}
	result.LayerStats["layer1"] = len(universe)
	if len(universe) == 0 {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	snap, err := p.buildSnapshot(ctx, universe, target)
	if err != nil {
		return nil, fmt.Errorf("build market snapshot: %w", err)
	}

	// Layer 2: 技术面策略
	hits := make(map[string][]string)
	snap = p.runCategory(snap, strategies, strategy.CategoryTechnical, target, hits)
	result.LayerStats["layer2"] = snap.Len()

	if snap.Len() > 0 {
		if err := p.enrichFundamentals(ctx, snap, target); err != nil {
			return nil, fmt.Errorf("enrich fundamentals: %w", err)
		}
	}

	// Layer 3: 基本面策略
	snap = p.runCategory(snap, strategies, strategy.CategoryFundamental, target, hits)
	result.LayerStats["layer3"] = snap.Len()

	// Layer 4: 加权排序
	weights, err := p.loadWeights(ctx, strategyNames, target)
	if err != nil {
		p.logger.WithError(err).Warn("Hit-stat weights unavailable, using base weight 1.0")
		weights = map[string]float64{}
	}
	picks := rankPicks(snap, hits, weights, opts.TopN)
	result.LayerStats["layer4"] = len(picks)

	// Layer 5: AI 终审（失败静默降级）
	var usage ai.Usage
	picks, usage = p.layer5(ctx, picks, snap, target)
	result.LayerStats["ai_scored"] = countScored(picks)

	result.Picks = picks
	result.Elapsed = time.Since(start)

	p.persist(ctx, picks, target, usage)

	p.logger.WithDuration(result.Elapsed).WithFields(map[string]interface{}{
		"target_date": target.Format("2006-01-02"),
		"layer1":      result.LayerStats["layer1"],
		"layer2":      result.LayerStats["layer2"],
		"layer3":      result.LayerStats["layer3"],
		"picks":       len(picks),
	}).Info("Selection pipeline completed")

	return result, nil
}

// resolveStrategies instantiates the requested strategies, applying
// per-strategy parameter overrides. Unknown names fail the run.
func (p *Pipeline) resolveStrategies(names []string, params map[string]map[string]float64) ([]strategy.Strategy, error) {
	out := make([]strategy.Strategy, 0, len(names))
	for _, name := range names {
		s, err := p.registry.Get(name)
		if err != nil {
			return nil, err
		}
		if custom, ok := params[name]; ok && len(custom) > 0 {
			s = rebuildWithParams(name, custom, s)
		}
		out = append(out, s)
	}
	return out, nil
}

// rebuildWithParams re-instantiates a built-in strategy with custom
// parameters. Unknown strategies keep their registered instance.
func rebuildWithParams(name string, params map[string]float64, fallback strategy.Strategy) strategy.Strategy {
	switch name {
	case "ma-cross":
		return strategy.NewMACross(params)
	case "macd-golden":
		return strategy.NewMACDGolden(params)
	case "kdj-golden":
		return strategy.NewKDJGolden(params)
	case "rsi-oversold":
		return strategy.NewRSIOversold(params)
	case "boll-breakthrough":
		return strategy.NewBollBreakthrough(params)
	case "volume-breakout":
		return strategy.NewVolumeBreakout(params)
	case "ma-long-arrange":
		return strategy.NewMALongArrange(params)
	case "williams-r":
		return strategy.NewWilliamsR(params)
	case "low-pe-high-roe":
		return strategy.NewLowPEHighROE(params)
	case "high-dividend":
		return strategy.NewHighDividend(params)
	case "growth-stock":
		return strategy.NewGrowthStock(params)
	case "financial-safety":
		return strategy.NewFinancialSafety(params)
	}
	return fallback
}

// runCategory applies one category's strategies, records hits, and
// keeps the union of all masks. A category with no strategies passes
// everything through.
func (p *Pipeline) runCategory(snap *strategy.Snapshot, strategies []strategy.Strategy, category string, target time.Time, hits map[string][]string) *strategy.Snapshot {
	if snap.Len() == 0 {
		return snap
	}

	var active []strategy.Strategy
	for _, s := range strategies {
		if s.Meta().Category == category {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return snap
	}

	combined := make([]bool, snap.Len())
	for _, s := range active {
		name := s.Meta().Name
		mask := s.FilterBatch(snap, target)
		for i, hit := range mask {
			if !hit {
				continue
			}
			combined[i] = true
			code := snap.TsCodes[i]
			if !containsString(hits[code], name) {
				hits[code] = append(hits[code], name)
			}
		}
	}

	filtered := filterSnapshot(snap, combined)
	p.logger.WithFields(map[string]interface{}{
		"category": category,
		"in":       snap.Len(),
		"out":      filtered.Len(),
	}).Debug("Strategy layer finished")
	return filtered
}

func (p *Pipeline) layer5(ctx context.Context, picks []Pick, snap *strategy.Snapshot, target time.Time) ([]Pick, ai.Usage) {
	if p.scorer == nil || !p.scorer.Enabled() || len(picks) == 0 {
		return picks, ai.Usage{}
	}

	candidates := buildCandidates(picks, snap)
	res, err := p.scorer.Analyze(ctx, candidates, target)
	if err != nil {
		p.logger.WithError(err).Warn("AI scoring failed, returning unscored picks")
		return picks, ai.Usage{}
	}

	return mergeScores(picks, res.Items), res.Usage
}

func countScored(picks []Pick) int {
	n := 0
	for i := range picks {
		if picks[i].AiScore != nil {
			n++
		}
	}
	return n
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
