package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/httputil"
	"github.com/hzhao/stock-selector/pkg/logger"
	"github.com/hzhao/stock-selector/pkg/redis"
)

// ErrBudgetExceeded marks the daily call budget being spent.
var ErrBudgetExceeded = errors.New("ai: daily call budget exceeded")

// ErrDisabled marks the subsystem having no API key configured.
var ErrDisabled = errors.New("ai: not enabled")

// Manager orchestrates LLM scoring: budget check, prompt build, model
// call, response validation.
type Manager struct {
	cfg     config.AIConfig
	http    *httputil.Client
	counter *redis.Counter
	logger  *logger.Logger
	enabled bool
}

// NewManager creates the AI manager. Without an API key the manager
// reports disabled and every Analyze call returns ErrDisabled.
func NewManager(cfg *config.Config, client *redis.Client, log *logger.Logger) *Manager {
	enabled := cfg.AI.APIKey != ""
	if !enabled {
		log.Warn("AI 分析未启用：AI_API_KEY 未配置")
	}

	httpClient := httputil.NewWithTimeout(cfg, log, cfg.AI.Timeout).
		WithRetry(cfg.AI.MaxRetries, time.Second).
		WithHeader("x-goog-api-key", cfg.AI.APIKey)

	return &Manager{
		cfg:     cfg.AI,
		http:    httpClient,
		counter: redis.NewCounter(client),
		logger:  log.WithField("component", "ai"),
		enabled: enabled,
	}
}

// Enabled reports whether the subsystem can score at all.
func (m *Manager) Enabled() bool { return m.enabled }

// Analyze scores the candidates for one target date. Every call,
// successful or not, consumes one unit of the daily budget.
func (m *Manager) Analyze(ctx context.Context, candidates []Candidate, target time.Time) (*Result, error) {
	if !m.enabled {
		return nil, ErrDisabled
	}
	if len(candidates) == 0 {
		return &Result{Items: map[string]AnalysisItem{}}, nil
	}

	dateKey := target.Format("20060102")
	calls, err := m.counter.Incr(ctx, redis.AIDailyCallsKey(dateKey), redis.TTLAIBudget)
	if err != nil {
		m.logger.WithError(err).Warn("AI 预算计数失败，按未超限处理")
	} else if m.cfg.DailyBudget > 0 && calls > int64(m.cfg.DailyBudget) {
		return nil, fmt.Errorf("%w: %d calls on %s", ErrBudgetExceeded, calls, dateKey)
	}

	prompt := buildPrompt(candidates, target)
	raw, usage, err := m.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed analysisResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	items := make(map[string]AnalysisItem, len(parsed.Analysis))
	for _, item := range parsed.Analysis {
		if err := item.validate(); err != nil {
			return nil, err
		}
		items[item.TsCode] = item
	}

	m.logger.WithFields(map[string]interface{}{
		"candidates":   len(candidates),
		"scored":       len(items),
		"total_tokens": usage.TotalTokens,
	}).Info("AI analysis completed")

	return &Result{Items: items, Usage: usage}, nil
}

// Gemini generateContent request/response shapes, only the fields we
// touch.
type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	MaxOutputTokens  int    `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (m *Manager) generate(ctx context.Context, prompt string) (string, Usage, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(m.cfg.BaseURL, "/"), m.cfg.ModelID)

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenConfig{
			MaxOutputTokens:  m.cfg.MaxTokens,
			ResponseMimeType: "application/json",
		},
	}

	resp, err := m.http.PostJSON(ctx, url, reqBody)
	if err != nil {
		return "", Usage{}, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, fmt.Errorf("model returned status %d: %s",
			resp.StatusCode, firstN(string(body), 200))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Usage{}, fmt.Errorf("decode model response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", Usage{}, fmt.Errorf("model returned no candidates")
	}

	usage := Usage{
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
	}
	return parsed.Candidates[0].Content.Parts[0].Text, usage, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models emit
// even when asked for raw JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
