package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/logger"
	"github.com/hzhao/stock-selector/pkg/redis"
)

var analysisDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func testManager(t *testing.T, baseURL string) *Manager {
	t.Helper()
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "error",
		LogFormat: "json",
		AI: config.AIConfig{
			APIKey:      "test-key",
			BaseURL:     baseURL,
			ModelID:     "gemini-2.0-flash",
			Timeout:     5 * time.Second,
			MaxRetries:  0,
			MaxTokens:   1024,
			DailyBudget: 20,
		},
	}
	client, err := redis.New(cfg)
	require.NoError(t, err)
	return NewManager(cfg, client, logger.New(cfg))
}

func candidates() []Candidate {
	return []Candidate{
		{
			TsCode: "600519.SH", Name: "贵州茅台", Close: 1688.0, PctChg: 1.2,
			MatchedStrategies: []string{"ma-cross", "macd-golden"},
			Values: map[string]float64{
				"ma5": 1680.1, "ma10": 1672.4, "macd_dif": 3.2, "macd_dea": 2.9,
				"macd_hist": 0.6, "pe_ttm": 32.5, "roe": 28.1,
			},
		},
		{
			TsCode: "000001.SZ", Name: "平安银行", Close: 10.5, PctChg: -0.4,
			MatchedStrategies: []string{"high-dividend"},
			Values:            map[string]float64{"pe_ttm": 4.8},
		},
	}
}

func geminiReply(t *testing.T, text string) string {
	t.Helper()
	payload := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"parts": []map[string]string{{"text": text}}}},
		},
		"usageMetadata": map[string]int{
			"promptTokenCount":     120,
			"candidatesTokenCount": 60,
			"totalTokenCount":      180,
		},
	}
	out, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(out)
}

const goodAnalysis = `{"analysis":[
  {"ts_code":"600519.SH","score":85,"signal":"BUY","reasoning":"均线多头，基本面稳健"},
  {"ts_code":"000001.SZ","score":55,"signal":"HOLD","reasoning":"估值低但缺乏催化"}
]}`

func TestAnalyzeSuccess(t *testing.T) {
	var gotPath string
	var gotKey string
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Contents[0].Parts[0].Text

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(geminiReply(t, goodAnalysis)))
	}))
	defer server.Close()

	m := testManager(t, server.URL)
	res, err := m.Analyze(context.Background(), candidates(), analysisDate)
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Contains(t, gotPrompt, "2 只候选股票")
	assert.Contains(t, gotPrompt, "600519.SH 贵州茅台")
	assert.Contains(t, gotPrompt, "命中策略：ma-cross, macd-golden（2个）")
	assert.Contains(t, gotPrompt, "2024-03-15")

	require.Len(t, res.Items, 2)
	assert.Equal(t, 85, res.Items["600519.SH"].Score)
	assert.Equal(t, SignalBuy, res.Items["600519.SH"].Signal)
	assert.Equal(t, 180, res.Usage.TotalTokens)
}

func TestAnalyzeStripsCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply(t, "```json\n"+goodAnalysis+"\n```")))
	}))
	defer server.Close()

	m := testManager(t, server.URL)
	res, err := m.Analyze(context.Background(), candidates(), analysisDate)
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
}

func TestAnalyzeRejectsBadSignal(t *testing.T) {
	bad := `{"analysis":[{"ts_code":"600519.SH","score":85,"signal":"MOON","reasoning":"x"}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply(t, bad)))
	}))
	defer server.Close()

	m := testManager(t, server.URL)
	_, err := m.Analyze(context.Background(), candidates(), analysisDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown signal")
}

func TestAnalyzeRejectsScoreOutOfRange(t *testing.T) {
	bad := `{"analysis":[{"ts_code":"600519.SH","score":250,"signal":"BUY","reasoning":"x"}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply(t, bad)))
	}))
	defer server.Close()

	m := testManager(t, server.URL)
	_, err := m.Analyze(context.Background(), candidates(), analysisDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestAnalyzeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	m := testManager(t, server.URL)
	_, err := m.Analyze(context.Background(), candidates(), analysisDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestAnalyzeDisabledWithoutKey(t *testing.T) {
	cfg := &config.Config{Env: "development", LogLevel: "error", LogFormat: "json"}
	client, err := redis.New(cfg)
	require.NoError(t, err)
	m := NewManager(cfg, client, logger.New(cfg))

	assert.False(t, m.Enabled())
	_, err = m.Analyze(context.Background(), candidates(), analysisDate)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestAnalyzeEmptyCandidates(t *testing.T) {
	m := testManager(t, "http://localhost:0")
	res, err := m.Analyze(context.Background(), nil, analysisDate)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestStripCodeFence(t *testing.T) {
	inputs := []string{
		`{"a":1}`,
		"```json\n{\"a\":1}\n```",
		"```\n{\"a\":1}\n```",
		"  {\"a\":1}  ",
	}
	for _, in := range inputs {
		assert.Equal(t, `{"a":1}`, stripCodeFence(in), "input %q", in)
	}
}

func TestPromptOmitsMissingSections(t *testing.T) {
	c := []Candidate{{
		TsCode: "000001.SZ", Name: "平安银行", Close: 10.5, PctChg: -0.4,
		MatchedStrategies: []string{"high-dividend"},
		Values:            map[string]float64{"pe_ttm": 4.8},
	}}
	prompt := buildPrompt(c, analysisDate)

	assert.Contains(t, prompt, "PE(TTM)=4.80")
	assert.NotContains(t, prompt, "均线：")
	assert.NotContains(t, prompt, "MACD：")
}
