package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hzhao/stock-selector/pkg/logger"
)

// Entity sync statuses.
const (
	StatusIdle      = "idle"
	StatusSyncing   = "syncing"
	StatusComputing = "computing"
	StatusFailed    = "failed"
	StatusDelisted  = "delisted"
)

// SentinelDate marks "never synced".
var SentinelDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Record is one stock_sync_progress row.
type Record struct {
	TsCode        string
	DataDate      time.Time
	IndicatorDate time.Time
	Status        string
	RetryCount    int
	ErrorMessage  *string
	UpdatedAt     time.Time
}

// Pending is an entity whose indicators lag its data.
type Pending struct {
	TsCode        string
	IndicatorDate time.Time
}

// Summary aggregates sync completion for one target date.
type Summary struct {
	Total          int
	DataDone       int
	IndicatorDone  int
	Failed         int
	CompletionRate float64
}

// execer is satisfied by *pgxpool.Pool and pgx.Tx, so single-row
// updates can join a caller-owned transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Tracker owns the stock_sync_progress table
// ⭐ SSOT: 同步进度的读写只经过这里
type Tracker struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewTracker creates a progress tracker.
func NewTracker(pool *pgxpool.Pool, log *logger.Logger) *Tracker {
	return &Tracker{
		pool:   pool,
		logger: log.WithField("component", "progress"),
	}
}

// InitProgress creates a progress row for every listed entity that
// lacks one. Idempotent.
func (t *Tracker) InitProgress(ctx context.Context) (int, error) {
	query := `
		INSERT INTO stock_sync_progress (ts_code, data_date, indicator_date, status, retry_count, updated_at)
		SELECT ts_code, '1900-01-01', '1900-01-01', 'idle', 0, NOW()
		FROM stocks
		WHERE list_status = 'L'
		ON CONFLICT (ts_code) DO NOTHING
	`

	tag, err := t.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("init progress: %w", err)
	}
	created := int(tag.RowsAffected())
	if created > 0 {
		t.logger.WithField("created", created).Info("Progress rows initialized")
	}
	return created, nil
}

// ResetStale returns any syncing/computing row to idle. Called once at
// startup to recover from a crash.
func (t *Tracker) ResetStale(ctx context.Context) (int, error) {
	query := `
		UPDATE stock_sync_progress
		SET status = 'idle', updated_at = NOW()
		WHERE status IN ('syncing', 'computing')
	`

	tag, err := t.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset stale status: %w", err)
	}
	reset := int(tag.RowsAffected())
	if reset > 0 {
		t.logger.WithField("reset", reset).Warn("Stale progress statuses reset")
	}
	return reset, nil
}

// SyncDelisted reconciles progress statuses with the stocks list:
// delisted entities are flagged, relisted ones are released back to
// idle.
func (t *Tracker) SyncDelisted(ctx context.Context) error {
	forward := `
		UPDATE stock_sync_progress p
		SET status = 'delisted', updated_at = NOW()
		FROM stocks s
		WHERE p.ts_code = s.ts_code
		  AND s.list_status = 'D'
		  AND p.status <> 'delisted'
	`
	reverse := `
		UPDATE stock_sync_progress p
		SET status = 'idle', updated_at = NOW()
		FROM stocks s
		WHERE p.ts_code = s.ts_code
		  AND s.list_status <> 'D'
		  AND p.status = 'delisted'
	`

	if _, err := t.pool.Exec(ctx, forward); err != nil {
		return fmt.Errorf("sync delisted forward: %w", err)
	}
	if _, err := t.pool.Exec(ctx, reverse); err != nil {
		return fmt.Errorf("sync delisted reverse: %w", err)
	}
	return nil
}

// Get reads one progress row.
func (t *Tracker) Get(ctx context.Context, tsCode string) (*Record, error) {
	query := `
		SELECT ts_code, data_date, indicator_date, status, retry_count, error_message, updated_at
		FROM stock_sync_progress
		WHERE ts_code = $1
	`

	var r Record
	err := t.pool.QueryRow(ctx, query, tsCode).Scan(
		&r.TsCode, &r.DataDate, &r.IndicatorDate, &r.Status, &r.RetryCount, &r.ErrorMessage, &r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get progress %s: %w", tsCode, err)
	}
	return &r, nil
}

// StocksNeedingSync lists entities whose data lags the target date.
// Delisted and failed entities are excluded.
func (t *Tracker) StocksNeedingSync(ctx context.Context, target time.Time) ([]string, error) {
	query := `
		SELECT ts_code
		FROM stock_sync_progress
		WHERE status NOT IN ('delisted', 'failed')
		  AND data_date < $1
		ORDER BY ts_code
	`

	rows, err := t.pool.Query(ctx, query, target)
	if err != nil {
		return nil, fmt.Errorf("stocks needing sync: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// StocksNeedingIndicators lists entities whose data covers the target
// date but whose indicators lag it.
func (t *Tracker) StocksNeedingIndicators(ctx context.Context, target time.Time) ([]Pending, error) {
	query := `
		SELECT ts_code, indicator_date
		FROM stock_sync_progress
		WHERE status NOT IN ('delisted', 'failed')
		  AND data_date >= $1
		  AND indicator_date < $1
		ORDER BY ts_code
	`

	rows, err := t.pool.Query(ctx, query, target)
	if err != nil {
		return nil, fmt.Errorf("stocks needing indicators: %w", err)
	}
	defer rows.Close()

	var pending []Pending
	for rows.Next() {
		var p Pending
		if err := rows.Scan(&p.TsCode, &p.IndicatorDate); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// UpdateDataProgress advances data_date for one entity.
func (t *Tracker) UpdateDataProgress(ctx context.Context, tsCode string, date time.Time) error {
	return t.updateDataProgress(ctx, t.pool, tsCode, date)
}

// UpdateDataProgressTx is UpdateDataProgress inside a caller-owned
// transaction, pairing the advance with the rows that justify it.
func (t *Tracker) UpdateDataProgressTx(ctx context.Context, tx execer, tsCode string, date time.Time) error {
	return t.updateDataProgress(ctx, tx, tsCode, date)
}

func (t *Tracker) updateDataProgress(ctx context.Context, db execer, tsCode string, date time.Time) error {
	query := `
		UPDATE stock_sync_progress
		SET data_date = $2, updated_at = NOW()
		WHERE ts_code = $1 AND data_date < $2
	`
	if _, err := db.Exec(ctx, query, tsCode, date); err != nil {
		return fmt.Errorf("update data progress %s: %w", tsCode, err)
	}
	return nil
}

// UpdateIndicatorProgress advances indicator_date for one entity.
func (t *Tracker) UpdateIndicatorProgress(ctx context.Context, tsCode string, date time.Time) error {
	query := `
		UPDATE stock_sync_progress
		SET indicator_date = $2, updated_at = NOW()
		WHERE ts_code = $1 AND indicator_date < $2
	`
	if _, err := t.pool.Exec(ctx, query, tsCode, date); err != nil {
		return fmt.Errorf("update indicator progress %s: %w", tsCode, err)
	}
	return nil
}

// UpdateStatus sets the entity status. A failed status stores the
// first 500 chars of the error and bumps retry_count.
func (t *Tracker) UpdateStatus(ctx context.Context, tsCode, status, errMsg string) error {
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}

	var query string
	var args []any
	if status == StatusFailed {
		query = `
			UPDATE stock_sync_progress
			SET status = $2, error_message = $3, retry_count = retry_count + 1, updated_at = NOW()
			WHERE ts_code = $1
		`
		args = []any{tsCode, status, errMsg}
	} else {
		query = `
			UPDATE stock_sync_progress
			SET status = $2, error_message = NULL, updated_at = NOW()
			WHERE ts_code = $1
		`
		args = []any{tsCode, status}
	}

	if _, err := t.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update status %s=%s: %w", tsCode, status, err)
	}
	return nil
}

// SyncSummary aggregates completion for a target date, excluding
// delisted entities. CompletionRate is data coverage over total.
func (t *Tracker) SyncSummary(ctx context.Context, target time.Time) (*Summary, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE data_date >= $1) AS data_done,
			COUNT(*) FILTER (WHERE indicator_date >= $1) AS indicator_done,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM stock_sync_progress
		WHERE status <> 'delisted'
	`

	var s Summary
	err := t.pool.QueryRow(ctx, query, target).Scan(&s.Total, &s.DataDone, &s.IndicatorDone, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("sync summary: %w", err)
	}
	if s.Total > 0 {
		s.CompletionRate = float64(s.DataDone) / float64(s.Total)
	}
	return &s, nil
}

// FailedStocks lists failed entities still under the retry cap.
func (t *Tracker) FailedStocks(ctx context.Context, maxRetries int) ([]string, error) {
	query := `
		SELECT ts_code
		FROM stock_sync_progress
		WHERE status = 'failed' AND retry_count < $1
		ORDER BY ts_code
	`

	rows, err := t.pool.Query(ctx, query, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed stocks: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
