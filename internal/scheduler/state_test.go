package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/hzhao/stock-selector/pkg/redis"
)

// disabledState builds a RunState over a disabled Redis client, the
// single-process degradation mode.
func disabledState(t *testing.T) *RunState {
	t.Helper()
	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return NewRunState(client)
}

func TestRunStateDisabledDefaultsToPending(t *testing.T) {
	r := disabledState(t)
	d := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	state, err := r.Get(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)

	done, err := r.IsCompleted(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, done)

	busy, err := r.InFlight(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestRunStateDisabledWritesAreNoOps(t *testing.T) {
	r := disabledState(t)
	d := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.Set(context.Background(), d, StateSyncing))
	require.NoError(t, r.SaveProbeJob(context.Background(), d, "probe_and_sync_2024-03-15"))

	// Without Redis the state never sticks: each process runs alone.
	state, err := r.Get(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)

	job, err := r.ProbeJob(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, job)

	n, err := r.IncrProbeCount(context.Background(), d)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDateKeyFormat(t *testing.T) {
	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-05", dateKey(d))
}
