package tushare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/httputil"
	"github.com/hzhao/stock-selector/pkg/logger"
)

// Client is the rate-limited Tushare Pro API client
// ⭐ SSOT: 所有 tushare 调用都经过这里
type Client struct {
	http          *httputil.Client
	baseURL       string
	token         string
	retryCount    int
	retryInterval time.Duration
	limiter       *rate.Limiter
	logger        *logger.Logger
}

// request is the uniform Tushare Pro query envelope.
type request struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields,omitempty"`
}

// response is the uniform Tushare Pro response envelope.
type response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string          `json:"fields"`
		Items  []json.RawMessage `json:"items"`
	} `json:"data"`
}

// Result is a tabular vendor payload: a fields header plus rows of
// loosely typed cells (string, float64 or nil).
type Result struct {
	Fields []string
	Items  [][]interface{}
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

// Maps converts the tabular payload into one map per row.
func (r *Result) Maps() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(r.Items))
	for _, item := range r.Items {
		m := make(map[string]interface{}, len(r.Fields))
		for i, f := range r.Fields {
			if i < len(item) {
				m[f] = item[i]
			}
		}
		out = append(out, m)
	}
	return out
}

// New creates a Tushare client. The token bucket is process-wide: the
// vendor's per-minute quota applies across every endpoint, so all typed
// methods share this one limiter.
func New(cfg *config.Config, log *logger.Logger) *Client {
	qpm := cfg.Tushare.QPMLimit
	if qpm <= 0 {
		qpm = 400
	}

	limiter := rate.NewLimiter(rate.Limit(float64(qpm)/60.0), qpm/10+1)

	// Vendor-level retry lives in this client, so transport retry is off.
	httpClient := httputil.NewWithTimeout(cfg, log, cfg.Tushare.Timeout).
		DisableRetry().
		WithLimiter(limiter)

	return &Client{
		http:          httpClient,
		baseURL:       cfg.Tushare.BaseURL,
		token:         cfg.Tushare.Token,
		retryCount:    cfg.Tushare.RetryCount,
		retryInterval: cfg.Tushare.RetryInterval,
		limiter:       limiter,
		logger:        log.WithField("component", "tushare"),
	}
}

// Query calls a named endpoint with params. It retries transient
// failures with exponential backoff (base × 2^attempt) and wraps the
// final failure in a VendorError.
func (c *Client) Query(ctx context.Context, apiName string, params map[string]string, fields string) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryInterval * time.Duration(1<<(attempt-1))
			c.logger.WithFields(map[string]interface{}{
				"api":     apiName,
				"attempt": attempt,
				"delay":   delay,
			}).Warn("Retrying vendor call")

			select {
			case <-ctx.Done():
				return nil, &VendorError{API: apiName, Msg: "cancelled", Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		result, err := c.queryOnce(ctx, apiName, params, fields)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ve, ok := AsVendorError(err); ok && ve.Code != 0 && !isRetryable(ve.Code, ve.Msg) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, &VendorError{API: apiName, Msg: "cancelled", Err: ctx.Err()}
		}
	}

	if _, ok := AsVendorError(lastErr); ok {
		return nil, lastErr
	}
	return nil, &VendorError{API: apiName, Msg: "retries exhausted", Err: lastErr}
}

func (c *Client) queryOnce(ctx context.Context, apiName string, params map[string]string, fields string) (*Result, error) {
	req := request{
		APIName: apiName,
		Token:   c.token,
		Params:  params,
		Fields:  fields,
	}

	resp, err := c.http.PostJSON(ctx, c.baseURL, req)
	if err != nil {
		return nil, fmt.Errorf("vendor transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("vendor http status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vendor body read: %w", err)
	}

	var envelope response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("vendor payload decode: %w", err)
	}

	if envelope.Code != 0 {
		return nil, &VendorError{API: apiName, Code: envelope.Code, Msg: envelope.Msg}
	}

	items := make([][]interface{}, 0, len(envelope.Data.Items))
	for _, raw := range envelope.Data.Items {
		var row []interface{}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("vendor row decode: %w", err)
		}
		items = append(items, row)
	}

	return &Result{Fields: envelope.Data.Fields, Items: items}, nil
}

// HealthCheck issues a minimal calendar query to verify token and
// connectivity.
func (c *Client) HealthCheck(ctx context.Context) error {
	today := time.Now().Format("20060102")
	_, err := c.Query(ctx, "trade_cal", map[string]string{
		"exchange":   "SSE",
		"start_date": today,
		"end_date":   today,
	}, "cal_date,is_open")
	return err
}

// Cell helpers

// CellString renders a payload cell as string, "" for nil.
func CellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
