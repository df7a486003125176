package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hzhao/stock-selector/internal/ai"
)

var (
	pickColumns    = []string{"strategy_name", "pick_date", "ts_code", "pick_score", "pick_close"}
	pickKeyColumns = []string{"strategy_name", "pick_date", "ts_code"}

	aiColumns    = []string{"ts_code", "trade_date", "ai_score", "ai_signal", "ai_summary", "prompt_version", "token_usage"}
	aiKeyColumns = []string{"ts_code", "trade_date"}
)

// persist writes the run's strategy_picks and AI results. Failures
// are logged only, the in-memory result stands.
func (p *Pipeline) persist(ctx context.Context, picks []Pick, target time.Time, usage ai.Usage) {
	if len(picks) == 0 {
		return
	}

	var pickRows [][]interface{}
	var aiRows [][]interface{}
	usageJSON, _ := json.Marshal(usage)

	for i := range picks {
		pick := &picks[i]
		for _, name := range pick.MatchedStrategies {
			pickRows = append(pickRows, []interface{}{
				name, target, pick.TsCode, pick.Score, pick.Close,
			})
		}
		if pick.AiScore != nil {
			aiRows = append(aiRows, []interface{}{
				pick.TsCode, target, *pick.AiScore, *pick.AiSignal, *pick.AiSummary,
				ai.PromptVersion, string(usageJSON),
			})
		}
	}

	if len(pickRows) > 0 {
		if _, err := p.store.UpsertRows(ctx, "strategy_picks", pickColumns, pickKeyColumns, pickRows); err != nil {
			p.logger.WithError(err).Error("Failed to persist strategy picks")
		}
	}
	if len(aiRows) > 0 {
		if _, err := p.store.UpsertRows(ctx, "ai_analysis_results", aiColumns, aiKeyColumns, aiRows); err != nil {
			p.logger.WithError(err).Error("Failed to persist AI analysis results")
		}
	}
}
