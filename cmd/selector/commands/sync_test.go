package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateFlag_Explicit(t *testing.T) {
	d, err := parseDateFlag("2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), d)
}

func TestParseDateFlag_EmptyDefaultsToToday(t *testing.T) {
	d, err := parseDateFlag("")
	require.NoError(t, err)

	now := time.Now()
	assert.Equal(t, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), d)
	assert.Equal(t, time.UTC, d.Location())
}

func TestParseDateFlag_Invalid(t *testing.T) {
	_, err := parseDateFlag("20260828")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}
