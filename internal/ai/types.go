// Package ai scores ranked pick candidates through an LLM. Failures
// of any kind are reported as errors and the caller falls back to the
// unscored ranking.
package ai

import "fmt"

// Trade signals the model may emit.
const (
	SignalStrongBuy  = "STRONG_BUY"
	SignalBuy        = "BUY"
	SignalHold       = "HOLD"
	SignalSell       = "SELL"
	SignalStrongSell = "STRONG_SELL"
)

var validSignals = map[string]bool{
	SignalStrongBuy:  true,
	SignalBuy:        true,
	SignalHold:       true,
	SignalSell:       true,
	SignalStrongSell: true,
}

// Candidate is one stock handed to the model, with the display data
// the prompt needs.
type Candidate struct {
	TsCode            string
	Name              string
	Close             float64
	PctChg            float64
	MatchedStrategies []string
	// Indicator and fundamental values by column name; absent keys
	// were NULL.
	Values map[string]float64
}

// AnalysisItem is the model's verdict on one stock.
type AnalysisItem struct {
	TsCode    string `json:"ts_code"`
	Score     int    `json:"score"` // 0..100
	Signal    string `json:"signal"`
	Reasoning string `json:"reasoning"`
}

func (it *AnalysisItem) validate() error {
	if it.TsCode == "" {
		return fmt.Errorf("analysis item missing ts_code")
	}
	if it.Score < 0 || it.Score > 100 {
		return fmt.Errorf("analysis item %s: score %d out of range", it.TsCode, it.Score)
	}
	if !validSignals[it.Signal] {
		return fmt.Errorf("analysis item %s: unknown signal %q", it.TsCode, it.Signal)
	}
	return nil
}

type analysisResponse struct {
	Analysis []AnalysisItem `json:"analysis"`
}

// Usage is the token accounting of one model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a successful analysis run.
type Result struct {
	Items map[string]AnalysisItem // keyed by ts_code
	Usage Usage
}
