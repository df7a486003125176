package pipeline

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/hzhao/stock-selector/internal/ai"
	"github.com/hzhao/stock-selector/internal/strategy"
)

// Weighting constants for Layer 4.
const (
	minSamples  = 20
	weightFloor = 0.3
	weightCeil  = 3.0
	// Hit-stat horizon used for weighting.
	statPeriod = "5d"
)

// hitStat is one strategy's historical performance row.
type hitStat struct {
	TotalPicks int
	HitRate    float64 // percent
	AvgReturn  float64 // percent
}

// strategyWeight derives the Layer-4 weight from historical
// performance. Thin samples fall back to the base weight.
func strategyWeight(stat *hitStat) float64 {
	if stat == nil || stat.TotalPicks < minSamples {
		return 1.0
	}
	w := 1 + (stat.HitRate-50)*0.02 + clamp(stat.AvgReturn*0.1, -0.3, 0.3)
	return clamp(w, weightFloor, weightCeil)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// loadWeights reads the newest hit-stat row per requested strategy
// (stat_date ≤ target) and converts it to a weight. Strategies with
// no stats weigh 1.0.
func (p *Pipeline) loadWeights(ctx context.Context, strategyNames []string, target time.Time) (map[string]float64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT ON (strategy_name)
			strategy_name, total_picks, hit_rate, avg_return
		FROM strategy_hit_stats
		WHERE strategy_name = ANY($1) AND period = $2 AND stat_date <= $3
		ORDER BY strategy_name, stat_date DESC
	`, strategyNames, statPeriod, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weights := make(map[string]float64, len(strategyNames))
	for rows.Next() {
		var name string
		var stat hitStat
		var hitRate, avgReturn *float64
		if err := rows.Scan(&name, &stat.TotalPicks, &hitRate, &avgReturn); err != nil {
			return nil, err
		}
		if hitRate != nil {
			stat.HitRate = *hitRate
		}
		if avgReturn != nil {
			stat.AvgReturn = *avgReturn
		}
		weights[name] = strategyWeight(&stat)
	}
	return weights, rows.Err()
}

// rankPicks scores the survivors by the summed weights of their
// matched strategies and keeps the top N. Ties break on match count,
// then code for determinism.
func rankPicks(snap *strategy.Snapshot, hits map[string][]string, weights map[string]float64, topN int) []Pick {
	picks := make([]Pick, 0, snap.Len())
	for i := 0; i < snap.Len(); i++ {
		code := snap.TsCodes[i]
		matched := hits[code]

		score := 0.0
		for _, name := range matched {
			w, ok := weights[name]
			if !ok {
				w = 1.0
			}
			score += w
		}

		pick := Pick{
			TsCode:            code,
			Name:              snap.Names[i],
			MatchedStrategies: matched,
			MatchCount:        len(matched),
			Score:             round4(score),
		}
		if v := snap.Close[i]; !math.IsNaN(v) {
			pick.Close = v
		}
		if v := snap.PctChg[i]; !math.IsNaN(v) {
			pick.PctChg = v
		}
		picks = append(picks, pick)
	}

	sort.SliceStable(picks, func(i, j int) bool {
		if picks[i].Score != picks[j].Score {
			return picks[i].Score > picks[j].Score
		}
		if picks[i].MatchCount != picks[j].MatchCount {
			return picks[i].MatchCount > picks[j].MatchCount
		}
		return picks[i].TsCode < picks[j].TsCode
	})

	if len(picks) > topN {
		picks = picks[:topN]
	}
	return picks
}

// buildCandidates packages picks with their snapshot data for the
// Layer-5 prompt.
func buildCandidates(picks []Pick, snap *strategy.Snapshot) []ai.Candidate {
	index := make(map[string]int, snap.Len())
	for i, code := range snap.TsCodes {
		index[code] = i
	}

	out := make([]ai.Candidate, 0, len(picks))
	for _, pick := range picks {
		c := ai.Candidate{
			TsCode:            pick.TsCode,
			Name:              pick.Name,
			Close:             pick.Close,
			PctChg:            pick.PctChg,
			MatchedStrategies: pick.MatchedStrategies,
			Values:            make(map[string]float64),
		}
		if i, ok := index[pick.TsCode]; ok {
			for name, col := range snap.Ind {
				if !math.IsNaN(col[i]) {
					c.Values[name] = col[i]
				}
			}
			for name, v := range map[string]float64{
				"pe_ttm":     snap.PeTTM[i],
				"pb":         snap.Pb[i],
				"roe":        snap.Roe[i],
				"profit_yoy": snap.ProfitYoY[i],
			} {
				if !math.IsNaN(v) {
					c.Values[name] = v
				}
			}
		}
		out = append(out, c)
	}
	return out
}

// mergeScores folds AI verdicts onto picks and resorts scored picks
// first, by score descending. Unscored picks keep their Layer-4
// order behind them.
func mergeScores(picks []Pick, items map[string]ai.AnalysisItem) []Pick {
	for i := range picks {
		item, ok := items[picks[i].TsCode]
		if !ok {
			continue
		}
		score := item.Score
		signal := item.Signal
		summary := item.Reasoning
		picks[i].AiScore = &score
		picks[i].AiSignal = &signal
		picks[i].AiSummary = &summary
	}

	sort.SliceStable(picks, func(i, j int) bool {
		si, sj := picks[i].AiScore, picks[j].AiScore
		switch {
		case si != nil && sj != nil:
			return *si > *sj
		case si != nil:
			return true
		default:
			return false
		}
	})
	return picks
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
