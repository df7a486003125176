package httputil_test

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/httputil"
	"github.com/hzhao/stock-selector/pkg/logger"
)

// Example shows the vendor-client wiring: a rate-limited client with
// retry that POSTs a columnar query.
func Example() {
	cfg := &config.Config{
		Env:      "production",
		LogLevel: "info",
		Database: config.DatabaseConfig{URL: "dummy"},
	}
	log := logger.New(cfg)

	// 400 次/分钟的令牌桶, 与 tushare 客户端一致
	limiter := rate.NewLimiter(rate.Limit(400.0/60.0), 1)

	client := httputil.NewWithTimeout(cfg, log, 30*time.Second).
		WithRetry(3, time.Second).
		WithLimiter(limiter)

	body := map[string]interface{}{
		"api_name": "daily",
		"params":   map[string]string{"trade_date": "20240614"},
	}

	resp, err := client.PostJSON(context.Background(), "https://api.example.com/query", body)
	if err != nil {
		fmt.Printf("query failed: %v\n", err)
		return
	}
	defer resp.Body.Close()
}
