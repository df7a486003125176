// Package techcache keeps the latest technical-indicator row per
// entity in Redis so the selection pipeline and consumers read hot
// data without touching technical_daily.
//
// ⭐ SSOT: tech:{ts_code}:latest 的读写只经过这里。
package techcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hzhao/stock-selector/internal/indicator"
	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/logger"
	"github.com/hzhao/stock-selector/pkg/redis"
)

// Latest is the cached snapshot of one entity's newest indicator row.
// Null columns are absent from Values.
type Latest struct {
	TsCode    string             `json:"ts_code"`
	TradeDate string             `json:"trade_date"` // YYYYMMDD
	Values    map[string]float64 `json:"values"`
}

// TechCache reads through Redis to technical_daily. Single-key traffic
// goes through the shared cache helper; batch paths pipeline against
// the raw client.
type TechCache struct {
	pool         *pgxpool.Pool
	client       *redis.Client
	cache        *redis.Cache
	ttl          time.Duration
	refreshBatch int
	logger       *logger.Logger
}

// New creates a tech cache. With Redis disabled every read goes to
// the database and refreshes are no-ops.
func New(pool *pgxpool.Pool, client *redis.Client, cfg *config.Config, log *logger.Logger) *TechCache {
	batch := cfg.CacheRefreshBatchSize
	if batch <= 0 {
		batch = 500
	}
	return &TechCache{
		pool:         pool,
		client:       client,
		cache:        redis.NewCache(client, ""),
		ttl:          cfg.CacheTechTTL,
		refreshBatch: batch,
		logger:       log.WithField("component", "techcache"),
	}
}

// GetLatest returns the newest indicator row for one entity, serving
// from cache when possible. A missing entity yields (nil, nil). Cache
// failures degrade to database reads.
func (t *TechCache) GetLatest(ctx context.Context, tsCode string) (*Latest, error) {
	var cached Latest
	hit, err := t.cache.Get(ctx, redis.TechLatestKey(tsCode), &cached)
	if err != nil {
		t.logger.WithError(err).WithField("ts_code", tsCode).Warn("Cache read failed, falling back to database")
	} else if hit {
		return &cached, nil
	}

	latest, err := t.queryLatest(ctx, tsCode)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		if err := t.cache.Set(ctx, redis.TechLatestKey(tsCode), latest, t.ttl); err != nil {
			t.logger.WithError(err).WithField("ts_code", tsCode).Warn("Cache populate failed")
		}
	}
	return latest, nil
}

// GetBatch resolves many entities at once. Cache hits come from one
// pipelined read, misses from a single database query. The result map
// only contains entities that have indicator rows.
func (t *TechCache) GetBatch(ctx context.Context, tsCodes []string) (map[string]*Latest, error) {
	result := make(map[string]*Latest, len(tsCodes))
	missing := tsCodes

	if t.client.Enabled() && len(tsCodes) > 0 {
		keys := make([]string, len(tsCodes))
		for i, code := range tsCodes {
			keys[i] = redis.TechLatestKey(code)
		}
		values, err := t.client.Redis().MGet(ctx, keys...).Result()
		if err != nil {
			t.logger.WithError(err).Warn("Cache batch read failed, falling back to database")
		} else {
			missing = missing[:0:0]
			for i, v := range values {
				raw, ok := v.(string)
				if !ok {
					missing = append(missing, tsCodes[i])
					continue
				}
				var latest Latest
				if err := json.Unmarshal([]byte(raw), &latest); err != nil {
					missing = append(missing, tsCodes[i])
					continue
				}
				result[latest.TsCode] = &latest
			}
		}
	}

	if len(missing) > 0 {
		fetched, err := t.queryLatestBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, latest := range fetched {
			result[latest.TsCode] = latest
		}
		t.populate(ctx, fetched)
	}

	return result, nil
}

// RefreshAll rebuilds the whole cache from technical_daily. Returns
// the number of entities written.
func (t *TechCache) RefreshAll(ctx context.Context) (int, error) {
	if !t.client.Enabled() {
		return 0, nil
	}

	rows, err := t.pool.Query(ctx, latestQuery()+` ORDER BY ts_code, trade_date DESC`)
	if err != nil {
		return 0, fmt.Errorf("query latest technicals: %w", err)
	}
	defer rows.Close()

	written := 0
	pipe := t.client.Redis().Pipeline()
	for rows.Next() {
		latest, err := scanLatest(rows)
		if err != nil {
			return written, err
		}
		payload, err := json.Marshal(latest)
		if err != nil {
			return written, err
		}
		pipe.Set(ctx, redis.TechLatestKey(latest.TsCode), payload, t.ttl)
		written++

		if written%t.refreshBatch == 0 {
			if _, err := pipe.Exec(ctx); err != nil {
				return written, fmt.Errorf("flush cache batch: %w", err)
			}
			pipe = t.client.Redis().Pipeline()
		}
	}
	if err := rows.Err(); err != nil {
		return written, err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return written, fmt.Errorf("flush cache batch: %w", err)
	}

	t.logger.WithField("entities", written).Info("Tech cache refreshed")
	return written, nil
}

// Warmup refreshes the cache after a restart unless it is already
// populated. "Populated" means at least 100 latest keys exist.
func (t *TechCache) Warmup(ctx context.Context) error {
	if !t.client.Enabled() {
		return nil
	}

	var (
		cursor uint64
		found  int
	)
	for {
		keys, next, err := t.client.Redis().Scan(ctx, cursor, "tech:*:latest", 200).Result()
		if err != nil {
			t.logger.WithError(err).Warn("Cache scan failed, refreshing anyway")
			break
		}
		found += len(keys)
		if found >= 100 {
			t.logger.WithField("keys", found).Info("Tech cache already warm")
			return nil
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	_, err := t.RefreshAll(ctx)
	return err
}

// populate writes snapshots back to Redis. Failures are logged, the
// cache is an optimization only.
func (t *TechCache) populate(ctx context.Context, snapshots []*Latest) {
	if !t.client.Enabled() || len(snapshots) == 0 {
		return
	}
	pipe := t.client.Redis().Pipeline()
	for _, latest := range snapshots {
		payload, err := json.Marshal(latest)
		if err != nil {
			continue
		}
		pipe.Set(ctx, redis.TechLatestKey(latest.TsCode), payload, t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.WithError(err).Warn("Cache populate failed")
	}
}

func (t *TechCache) queryLatest(ctx context.Context, tsCode string) (*Latest, error) {
	rows, err := t.pool.Query(ctx,
		latestQuery()+` WHERE ts_code = $1 ORDER BY ts_code, trade_date DESC`, tsCode)
	if err != nil {
		return nil, fmt.Errorf("query latest technical: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanLatest(rows)
}

func (t *TechCache) queryLatestBatch(ctx context.Context, tsCodes []string) ([]*Latest, error) {
	rows, err := t.pool.Query(ctx,
		latestQuery()+` WHERE ts_code = ANY($1) ORDER BY ts_code, trade_date DESC`, tsCodes)
	if err != nil {
		return nil, fmt.Errorf("query latest technicals: %w", err)
	}
	defer rows.Close()

	var out []*Latest
	for rows.Next() {
		latest, err := scanLatest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, latest)
	}
	return out, rows.Err()
}

// scanner is the subset of pgx.Rows used by scanLatest.
type scanner interface {
	Scan(dest ...any) error
}

func latestQuery() string {
	return `SELECT DISTINCT ON (ts_code) ` + strings.Join(indicator.Columns(), ", ") +
		` FROM technical_daily`
}

func scanLatest(row scanner) (*Latest, error) {
	cols := indicator.Columns()

	var (
		tsCode    string
		tradeDate time.Time
	)
	floats := make([]*float64, len(cols)-2)
	dest := make([]any, 0, len(cols))
	dest = append(dest, &tsCode, &tradeDate)
	for i := range floats {
		dest = append(dest, &floats[i])
	}

	if err := row.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan technical row: %w", err)
	}

	latest := &Latest{
		TsCode:    tsCode,
		TradeDate: tradeDate.Format("20060102"),
		Values:    make(map[string]float64, len(floats)),
	}
	for i, v := range floats {
		if v != nil {
			latest.Values[cols[i+2]] = *v
		}
	}
	return latest, nil
}
