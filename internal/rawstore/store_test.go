package rawstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpsertSQL(t *testing.T) {
	columns := []string{"ts_code", "trade_date", "close"}
	keys := []string{"ts_code", "trade_date"}
	rows := [][]interface{}{
		{"600519.SH", "20240614", 1720.5},
		{"000001.SZ", "20240614", 10.33},
	}

	sql, args, err := buildUpsertSQL("raw_daily", columns, keys, rows)
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO raw_daily (ts_code, trade_date, close)")
	assert.Contains(t, sql, "($1, $2, $3), ($4, $5, $6)")
	assert.Contains(t, sql, "ON CONFLICT (ts_code, trade_date) DO UPDATE SET close = EXCLUDED.close")
	assert.NotContains(t, sql, "ts_code = EXCLUDED.ts_code", "key columns must not be updated")

	require.Len(t, args, 6)
	assert.Equal(t, "600519.SH", args[0])
	assert.Equal(t, 10.33, args[5])
}

func TestBuildUpsertSQL_AllKeyColumns(t *testing.T) {
	columns := []string{"ts_code", "trade_date"}
	keys := []string{"ts_code", "trade_date"}
	rows := [][]interface{}{{"600519.SH", "20240614"}}

	sql, _, err := buildUpsertSQL("raw_daily", columns, keys, rows)
	require.NoError(t, err)
	assert.Contains(t, sql, "DO NOTHING")
}

func TestBuildUpsertSQL_RowWidthMismatch(t *testing.T) {
	columns := []string{"ts_code", "trade_date"}
	rows := [][]interface{}{{"600519.SH"}}

	_, _, err := buildUpsertSQL("raw_daily", columns, []string{"ts_code"}, rows)
	require.Error(t, err)
}

func TestParamBudgetPerStatement(t *testing.T) {
	// With 11 columns a statement must hold at most 32000/11 rows.
	columns := make([]string, 11)
	for i := range columns {
		columns[i] = "c" + string(rune('a'+i))
	}

	batchSize := maxParamsPerStatement / len(columns)
	assert.Equal(t, 2909, batchSize)

	rows := make([][]interface{}, batchSize)
	for i := range rows {
		rows[i] = make([]interface{}, len(columns))
	}

	sql, args, err := buildUpsertSQL("raw_wide", columns, columns[:1], rows)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(args), maxParamsPerStatement)
	assert.Equal(t, batchSize*len(columns), strings.Count(sql, "$"))
}
