package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hzhao/stock-selector/pkg/redis"
)

// Per-date run states. Stored in Redis with a 7-day TTL so a restarted
// process sees where a date's run left off.
type RunStateValue string

const (
	StatePending   RunStateValue = "pending"
	StateProbing   RunStateValue = "probing"
	StateSyncing   RunStateValue = "syncing"
	StateCompleted RunStateValue = "completed"
	StateFailed    RunStateValue = "failed"
)

// RunState persists the per-date state machine
// ⭐ SSOT: sync_status:{D} 的读写只经过这里
type RunState struct {
	client  *redis.Client
	counter *redis.Counter
}

// NewRunState creates a run-state manager.
func NewRunState(client *redis.Client) *RunState {
	return &RunState{
		client:  client,
		counter: redis.NewCounter(client),
	}
}

func dateKey(d time.Time) string {
	return d.Format("2006-01-02")
}

// Get returns the state for a date. Unknown dates, and every date when
// Redis is disabled, are pending.
func (r *RunState) Get(ctx context.Context, d time.Time) (RunStateValue, error) {
	if !r.client.Enabled() {
		return StatePending, nil
	}

	val, err := r.client.Redis().Get(ctx, redis.SyncStatusKey(dateKey(d))).Result()
	if redis.IsNil(err) {
		return StatePending, nil
	}
	if err != nil {
		return StatePending, fmt.Errorf("get run state: %w", err)
	}
	return RunStateValue(val), nil
}

// Set stores the state for a date.
func (r *RunState) Set(ctx context.Context, d time.Time, state RunStateValue) error {
	if !r.client.Enabled() {
		return nil
	}

	err := r.client.Redis().Set(ctx, redis.SyncStatusKey(dateKey(d)), string(state), redis.TTLSyncState).Err()
	if err != nil {
		return fmt.Errorf("set run state: %w", err)
	}
	return nil
}

// IsCompleted reports whether the date's run already finished.
func (r *RunState) IsCompleted(ctx context.Context, d time.Time) (bool, error) {
	state, err := r.Get(ctx, d)
	if err != nil {
		return false, err
	}
	return state == StateCompleted, nil
}

// InFlight reports whether a run for the date is underway.
func (r *RunState) InFlight(ctx context.Context, d time.Time) (bool, error) {
	state, err := r.Get(ctx, d)
	if err != nil {
		return false, err
	}
	return state == StateProbing || state == StateSyncing, nil
}

// IncrProbeCount bumps the date's probe counter and returns it.
func (r *RunState) IncrProbeCount(ctx context.Context, d time.Time) (int64, error) {
	return r.counter.Incr(ctx, redis.ProbeCountKey(dateKey(d)), redis.TTLSyncState)
}

// SaveProbeJob remembers the dynamic probe job registered for a date.
func (r *RunState) SaveProbeJob(ctx context.Context, d time.Time, jobName string) error {
	if !r.client.Enabled() {
		return nil
	}

	err := r.client.Redis().Set(ctx, redis.ProbeJobIDKey(dateKey(d)), jobName, redis.TTLSyncState).Err()
	if err != nil {
		return fmt.Errorf("save probe job: %w", err)
	}
	return nil
}

// ProbeJob returns the probe job name for a date, "" when none.
func (r *RunState) ProbeJob(ctx context.Context, d time.Time) (string, error) {
	if !r.client.Enabled() {
		return "", nil
	}

	val, err := r.client.Redis().Get(ctx, redis.ProbeJobIDKey(dateKey(d))).Result()
	if redis.IsNil(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get probe job: %w", err)
	}
	return val, nil
}
