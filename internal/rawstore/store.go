package rawstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hzhao/stock-selector/pkg/logger"
)

// Postgres caps a statement at 65535 bind parameters; we stay well
// under it so other drivers behave too.
const maxParamsPerStatement = 32000

// Store writes vendor-shaped rows into raw_* tables
// ⭐ SSOT: raw 表的写入只经过这里
type Store struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// New creates a raw store.
func New(pool *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: log.WithField("component", "rawstore"),
	}
}

// UpsertRows batch-inserts rows into table. On natural-key conflict all
// non-key columns are overwritten; fetched_at keeps its insert-time
// default. The whole call commits or rolls back as one transaction.
// Returns the number of rows written.
func (s *Store) UpsertRows(ctx context.Context, table string, columns, keyColumns []string, rows [][]interface{}) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("rawstore: no columns for table %s", table)
	}

	batchSize := maxParamsPerStatement / len(columns)
	if batchSize < 1 {
		batchSize = 1
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("rawstore begin: %w", err)
	}
	defer tx.Rollback(ctx)

	written := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		sql, args, err := buildUpsertSQL(table, columns, keyColumns, chunk)
		if err != nil {
			return written, err
		}

		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return written, fmt.Errorf("rawstore upsert %s: %w", table, err)
		}
		written += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("rawstore commit %s: %w", table, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"table": table,
		"rows":  written,
	}).Debug("Raw rows upserted")

	return written, nil
}

// UpsertInTx is UpsertRows inside a caller-owned transaction, for
// callers that pair raw writes with progress updates.
func (s *Store) UpsertInTx(ctx context.Context, tx pgx.Tx, table string, columns, keyColumns []string, rows [][]interface{}) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batchSize := maxParamsPerStatement / len(columns)
	if batchSize < 1 {
		batchSize = 1
	}

	written := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		sql, args, err := buildUpsertSQL(table, columns, keyColumns, rows[start:end])
		if err != nil {
			return written, err
		}

		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return written, fmt.Errorf("rawstore upsert %s: %w", table, err)
		}
		written += int(tag.RowsAffected())
	}

	return written, nil
}

// buildUpsertSQL renders one multi-row INSERT … ON CONFLICT statement.
func buildUpsertSQL(table string, columns, keyColumns []string, rows [][]interface{}) (string, []interface{}, error) {
	keySet := make(map[string]bool, len(keyColumns))
	for _, k := range keyColumns {
		keySet[k] = true
	}

	var updates []string
	for _, col := range columns {
		if !keySet[col] {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	args := make([]interface{}, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("rawstore: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+j+1)
		}
		sb.WriteString(")")
		args = append(args, row...)
	}

	if len(updates) == 0 {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO NOTHING", strings.Join(keyColumns, ", "))
	} else {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s",
			strings.Join(keyColumns, ", "), strings.Join(updates, ", "))
	}

	return sb.String(), args, nil
}
