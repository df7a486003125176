package progress

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/database"
	"github.com/hzhao/stock-selector/pkg/logger"
)

func TestSentinelDate(t *testing.T) {
	assert.Equal(t, 1900, SentinelDate.Year())
	assert.True(t, SentinelDate.Before(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestStatusConstants(t *testing.T) {
	// These values are stored in the database, changing one is a
	// migration.
	assert.Equal(t, "idle", StatusIdle)
	assert.Equal(t, "syncing", StatusSyncing)
	assert.Equal(t, "computing", StatusComputing)
	assert.Equal(t, "failed", StatusFailed)
	assert.Equal(t, "delisted", StatusDelisted)
}

// integrationTracker connects to the database named by DATABASE_URL,
// skipping otherwise. The suite assumes migrated but empty tables.
func integrationTracker(t *testing.T) *Tracker {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	log := logger.New(cfg)
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewTracker(db.Pool, log)
}

func TestTrackerLifecycle(t *testing.T) {
	tracker := integrationTracker(t)
	ctx := context.Background()

	_, err := tracker.InitProgress(ctx)
	require.NoError(t, err)

	codes, err := tracker.StocksNeedingSync(ctx, time.Now())
	require.NoError(t, err)

	if len(codes) == 0 {
		t.Skip("no listed stocks in test database")
	}

	code := codes[0]
	target := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.UpdateStatus(ctx, code, StatusSyncing, ""))
	require.NoError(t, tracker.UpdateDataProgress(ctx, code, target))
	require.NoError(t, tracker.UpdateIndicatorProgress(ctx, code, target))
	require.NoError(t, tracker.UpdateStatus(ctx, code, StatusIdle, ""))

	rec, err := tracker.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, rec.Status)
	assert.True(t, rec.DataDate.Equal(target))
	assert.True(t, rec.IndicatorDate.Equal(target))
	assert.Nil(t, rec.ErrorMessage)

	// Progress dates never move backwards.
	earlier := target.AddDate(0, 0, -10)
	require.NoError(t, tracker.UpdateDataProgress(ctx, code, earlier))
	rec, err = tracker.Get(ctx, code)
	require.NoError(t, err)
	assert.True(t, rec.DataDate.Equal(target))
}

func TestTrackerFailureBookkeeping(t *testing.T) {
	tracker := integrationTracker(t)
	ctx := context.Background()

	_, err := tracker.InitProgress(ctx)
	require.NoError(t, err)

	codes, err := tracker.StocksNeedingSync(ctx, time.Now())
	require.NoError(t, err)
	if len(codes) == 0 {
		t.Skip("no listed stocks in test database")
	}
	code := codes[0]

	before, err := tracker.Get(ctx, code)
	require.NoError(t, err)

	require.NoError(t, tracker.UpdateStatus(ctx, code, StatusFailed, "timeout waiting for vendor"))

	rec, err := tracker.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, before.RetryCount+1, rec.RetryCount)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, "timeout waiting for vendor", *rec.ErrorMessage)

	failed, err := tracker.FailedStocks(ctx, rec.RetryCount+1)
	require.NoError(t, err)
	assert.Contains(t, failed, code)

	// Clearing the status resets the message but keeps the count.
	require.NoError(t, tracker.UpdateStatus(ctx, code, StatusIdle, ""))
	rec, err = tracker.Get(ctx, code)
	require.NoError(t, err)
	assert.Nil(t, rec.ErrorMessage)
	assert.Equal(t, before.RetryCount+1, rec.RetryCount)
}

func TestTrackerSummary(t *testing.T) {
	tracker := integrationTracker(t)
	ctx := context.Background()

	_, err := tracker.InitProgress(ctx)
	require.NoError(t, err)

	summary, err := tracker.SyncSummary(ctx, time.Now())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, summary.Total, summary.DataDone)
	assert.GreaterOrEqual(t, summary.Total, summary.IndicatorDone)
	if summary.Total > 0 {
		assert.InDelta(t, float64(summary.DataDone)/float64(summary.Total), summary.CompletionRate, 1e-9)
	} else {
		assert.Zero(t, summary.CompletionRate)
	}
}
