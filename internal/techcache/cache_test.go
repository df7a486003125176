package techcache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzhao/stock-selector/internal/indicator"
	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/logger"
	"github.com/hzhao/stock-selector/pkg/redis"
)

func disabledCache(t *testing.T) *TechCache {
	t.Helper()
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "error",
		LogFormat: "json",

		CacheTechTTL:          25 * time.Hour,
		CacheRefreshBatchSize: 500,
	}
	client, err := redis.New(cfg)
	require.NoError(t, err)
	return New(nil, client, cfg, logger.New(cfg))
}

func TestLatestQueryShape(t *testing.T) {
	q := latestQuery()

	assert.True(t, strings.HasPrefix(q, "SELECT DISTINCT ON (ts_code) "))
	assert.Contains(t, q, "ts_code, trade_date, ma5")
	assert.Contains(t, q, "donchian_lower")
	assert.Contains(t, q, "FROM technical_daily")
}

type fakeRow struct {
	values []any
}

func (r *fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch v := r.values[i].(type) {
		case string:
			*d.(*string) = v
		case time.Time:
			*d.(*time.Time) = v
		case float64:
			f := v
			*d.(**float64) = &f
		case nil:
			if p, ok := d.(**float64); ok {
				*p = nil
			}
		}
	}
	return nil
}

func TestScanLatest(t *testing.T) {
	cols := indicator.Columns()
	values := make([]any, len(cols))
	values[0] = "600519.SH"
	values[1] = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for i := 2; i < len(values); i++ {
		values[i] = float64(i)
	}
	// ma250 and cci14 are NULL for this entity.
	ma250 := indexOf(t, cols, "ma250")
	cci14 := indexOf(t, cols, "cci14")
	values[ma250] = nil
	values[cci14] = nil

	latest, err := scanLatest(&fakeRow{values: values})
	require.NoError(t, err)

	assert.Equal(t, "600519.SH", latest.TsCode)
	assert.Equal(t, "20240315", latest.TradeDate)
	assert.Len(t, latest.Values, len(cols)-4)

	_, hasMa250 := latest.Values["ma250"]
	assert.False(t, hasMa250)
	_, hasCci := latest.Values["cci14"]
	assert.False(t, hasCci)

	assert.Equal(t, float64(indexOf(t, cols, "ma5")), latest.Values["ma5"])
	assert.Equal(t, float64(indexOf(t, cols, "obv")), latest.Values["obv"])
}

func indexOf(t *testing.T, cols []string, name string) int {
	t.Helper()
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	t.Fatalf("column %s not found", name)
	return -1
}

func TestNewWiresSharedCacheHelper(t *testing.T) {
	tc := disabledCache(t)
	require.NotNil(t, tc.cache)

	// The single-key path rides the shared helper; with Redis disabled
	// it reports a clean miss rather than erroring.
	var dest Latest
	hit, err := tc.cache.Get(context.Background(), redis.TechLatestKey("600519.SH"), &dest)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRefreshAllDisabledRedis(t *testing.T) {
	tc := disabledCache(t)

	n, err := tc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWarmupDisabledRedis(t *testing.T) {
	tc := disabledCache(t)
	require.NoError(t, tc.Warmup(context.Background()))
}

func TestPopulateDisabledRedisIsNoop(t *testing.T) {
	tc := disabledCache(t)
	tc.populate(context.Background(), []*Latest{{TsCode: "600519.SH"}})
}
