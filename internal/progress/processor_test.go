package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/logger"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeTracker struct {
	mu       sync.Mutex
	records  map[string]*Record
	statuses []string
	getErr   error
}

func newFakeTracker(records ...*Record) *fakeTracker {
	m := make(map[string]*Record)
	for _, r := range records {
		m[r.TsCode] = r
	}
	return &fakeTracker{records: m}
}

func (f *fakeTracker) Get(_ context.Context, tsCode string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.records[tsCode]
	if !ok {
		return nil, errors.New("no progress record")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeTracker) UpdateStatus(_ context.Context, tsCode, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	if r, ok := f.records[tsCode]; ok {
		r.Status = status
		if status == StatusFailed {
			r.RetryCount++
			msg := errMsg
			r.ErrorMessage = &msg
		}
	}
	return nil
}

type syncCall struct {
	tsCode     string
	start, end time.Time
}

// fakeSyncer advances the tracker's data_date the way the real syncer
// does inside its transaction.
type fakeSyncer struct {
	mu      sync.Mutex
	tracker *fakeTracker
	calls   []syncCall
	rows    int
	err     error
	failOn  int // 1-based call index to fail on, 0 = never
}

func (f *fakeSyncer) SyncStockRange(_ context.Context, tsCode string, start, end time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{tsCode, start, end})
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return 0, f.err
	}
	if f.rows > 0 {
		f.tracker.mu.Lock()
		if r, ok := f.tracker.records[tsCode]; ok && r.DataDate.Before(end) {
			r.DataDate = end
		}
		f.tracker.mu.Unlock()
	}
	return f.rows, nil
}

type fakeComputer struct {
	mu    sync.Mutex
	calls []syncCall
	err   error
}

func (f *fakeComputer) ComputeRange(_ context.Context, tsCode string, start, end time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{tsCode, start, end})
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func testProcessor(t *testing.T, tracker *fakeTracker, syncer StockSyncer, computer IndicatorComputer, windowDays int) *Processor {
	t.Helper()
	log := logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
	return newProcessor(tracker, syncer, computer, windowDays, date(2018, 1, 1), log)
}

func TestProcessSingleFreshEntity(t *testing.T) {
	tracker := newFakeTracker(&Record{
		TsCode:        "600519.SH",
		DataDate:      SentinelDate,
		IndicatorDate: SentinelDate,
		Status:        StatusIdle,
	})
	syncer := &fakeSyncer{tracker: tracker, rows: 250}
	computer := &fakeComputer{}
	p := testProcessor(t, tracker, syncer, computer, 365)

	target := date(2019, 6, 30)
	require.NoError(t, p.ProcessSingle(context.Background(), "600519.SH", target))

	// 2018-01-01..2019-06-30 is 546 days: two sync windows.
	require.Len(t, syncer.calls, 2)
	assert.Equal(t, date(2018, 1, 1), syncer.calls[0].start)
	assert.Equal(t, date(2018, 12, 31), syncer.calls[0].end)
	assert.Equal(t, date(2019, 1, 1), syncer.calls[1].start)
	assert.Equal(t, target, syncer.calls[1].end)

	// Indicators start from history start too, clamped to data_date.
	require.Len(t, computer.calls, 2)
	assert.Equal(t, date(2018, 1, 1), computer.calls[0].start)
	assert.Equal(t, target, computer.calls[1].end)

	assert.Equal(t, []string{StatusSyncing, StatusComputing, StatusIdle}, tracker.statuses)
}

func TestProcessSingleAlreadyCurrent(t *testing.T) {
	target := date(2024, 3, 15)
	tracker := newFakeTracker(&Record{
		TsCode:        "000001.SZ",
		DataDate:      target,
		IndicatorDate: target,
		Status:        StatusIdle,
	})
	syncer := &fakeSyncer{tracker: tracker, rows: 1}
	computer := &fakeComputer{}
	p := testProcessor(t, tracker, syncer, computer, 365)

	require.NoError(t, p.ProcessSingle(context.Background(), "000001.SZ", target))

	assert.Empty(t, syncer.calls)
	assert.Empty(t, computer.calls)
	// Current entities still settle on idle.
	assert.Equal(t, []string{StatusIdle}, tracker.statuses)
}

func TestProcessSingleIndicatorsClampedToDataDate(t *testing.T) {
	// Data is synced through 2024-03-10 but the sync phase finds no new
	// rows, so indicators must stop at data_date even though the target
	// is later.
	tracker := newFakeTracker(&Record{
		TsCode:        "600036.SH",
		DataDate:      date(2024, 3, 10),
		IndicatorDate: date(2024, 3, 5),
		Status:        StatusIdle,
	})
	syncer := &fakeSyncer{tracker: tracker, rows: 0}
	computer := &fakeComputer{}
	p := testProcessor(t, tracker, syncer, computer, 365)

	require.NoError(t, p.ProcessSingle(context.Background(), "600036.SH", date(2024, 3, 15)))

	require.Len(t, computer.calls, 1)
	assert.Equal(t, date(2024, 3, 6), computer.calls[0].start)
	assert.Equal(t, date(2024, 3, 10), computer.calls[0].end)
}

func TestProcessSingleSyncFailureMarksFailed(t *testing.T) {
	tracker := newFakeTracker(&Record{
		TsCode:        "000858.SZ",
		DataDate:      date(2024, 3, 1),
		IndicatorDate: date(2024, 3, 1),
		Status:        StatusIdle,
	})
	syncer := &fakeSyncer{tracker: tracker, rows: 10, failOn: 1, err: errors.New("vendor unavailable")}
	computer := &fakeComputer{}
	p := testProcessor(t, tracker, syncer, computer, 365)

	err := p.ProcessSingle(context.Background(), "000858.SZ", date(2024, 3, 15))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vendor unavailable")

	rec := tracker.records["000858.SZ"]
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 1, rec.RetryCount)
	require.NotNil(t, rec.ErrorMessage)
	assert.Empty(t, computer.calls)
}

func TestProcessSingleIndicatorFailureMarksFailed(t *testing.T) {
	tracker := newFakeTracker(&Record{
		TsCode:        "601318.SH",
		DataDate:      date(2024, 3, 15),
		IndicatorDate: date(2024, 3, 1),
		Status:        StatusIdle,
	})
	syncer := &fakeSyncer{tracker: tracker, rows: 1}
	computer := &fakeComputer{err: errors.New("write failed")}
	p := testProcessor(t, tracker, syncer, computer, 365)

	err := p.ProcessSingle(context.Background(), "601318.SH", date(2024, 3, 15))
	require.Error(t, err)
	assert.Equal(t, StatusFailed, tracker.records["601318.SH"].Status)
}

func TestProcessBatchCounts(t *testing.T) {
	records := []*Record{
		{TsCode: "600519.SH", DataDate: date(2024, 3, 14), IndicatorDate: date(2024, 3, 14)},
		{TsCode: "000001.SZ", DataDate: date(2024, 3, 14), IndicatorDate: date(2024, 3, 14)},
		{TsCode: "600036.SH", DataDate: date(2024, 3, 14), IndicatorDate: date(2024, 3, 14)},
	}
	tracker := newFakeTracker(records...)
	syncer := &fakeSyncer{tracker: tracker, rows: 1, failOn: 2, err: errors.New("boom")}
	computer := &fakeComputer{}
	p := testProcessor(t, tracker, syncer, computer, 365)

	res := p.ProcessBatch(context.Background(), []string{"600519.SH", "000001.SZ", "600036.SH"},
		date(2024, 3, 15), 1, 0)

	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.TimedOut)
}

func TestProcessBatchTimeoutStopsAdmission(t *testing.T) {
	var records []*Record
	codes := []string{"600519.SH", "000001.SZ", "600036.SH", "000858.SZ"}
	for _, code := range codes {
		records = append(records, &Record{
			TsCode: code, DataDate: date(2024, 3, 14), IndicatorDate: date(2024, 3, 14),
		})
	}
	tracker := newFakeTracker(records...)
	syncer := &slowSyncer{inner: &fakeSyncer{tracker: tracker, rows: 1}, delay: 50 * time.Millisecond}
	computer := &fakeComputer{}
	p := testProcessor(t, tracker, syncer, computer, 365)

	res := p.ProcessBatch(context.Background(), codes, date(2024, 3, 15), 1, 20*time.Millisecond)

	assert.True(t, res.TimedOut)
	// The first entity was in flight when the deadline hit; it still
	// finished and reported.
	assert.GreaterOrEqual(t, res.Success, 1)
	assert.Less(t, res.Success+res.Failed, len(codes))
}

type slowSyncer struct {
	inner *fakeSyncer
	delay time.Duration
}

func (s *slowSyncer) SyncStockRange(ctx context.Context, tsCode string, start, end time.Time) (int, error) {
	time.Sleep(s.delay)
	return s.inner.SyncStockRange(ctx, tsCode, start, end)
}

func TestProcessSingleGetError(t *testing.T) {
	tracker := newFakeTracker()
	tracker.getErr = errors.New("connection refused")
	p := testProcessor(t, tracker, &fakeSyncer{tracker: tracker}, &fakeComputer{}, 365)

	err := p.ProcessSingle(context.Background(), "600519.SH", date(2024, 3, 15))
	require.Error(t, err)
}

func TestNextDate(t *testing.T) {
	p := testProcessor(t, newFakeTracker(), &fakeSyncer{}, &fakeComputer{}, 365)

	assert.Equal(t, date(2018, 1, 1), p.nextDate(SentinelDate))
	assert.Equal(t, date(2024, 3, 16), p.nextDate(date(2024, 3, 15)))
}
