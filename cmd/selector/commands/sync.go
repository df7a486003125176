package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	syncDate  string
	syncCode  string
	syncStart string
	syncEnd   string
	syncChain bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "手动同步行情数据",
	Long: `手动触发数据同步。

默认同步指定交易日的原始行情并执行 ETL:
  selector sync --date 2026-08-28

--chain 执行完整盘后链路 (日历 → 行情 → 指标 → 缓存 → 选股):
  selector sync --date 2026-08-28 --chain

--code 按股票补历史区间行情:
  selector sync --code 600519.SH --start 2024-01-01 --end 2024-12-31`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncDate, "date", "", "目标交易日 (YYYY-MM-DD, 默认今天)")
	syncCmd.Flags().StringVar(&syncCode, "code", "", "单只股票代码 (如 600519.SH)")
	syncCmd.Flags().StringVar(&syncStart, "start", "", "区间起始日 (YYYY-MM-DD, 配合 --code)")
	syncCmd.Flags().StringVar(&syncEnd, "end", "", "区间结束日 (YYYY-MM-DD, 配合 --code)")
	syncCmd.Flags().BoolVar(&syncChain, "chain", false, "执行完整盘后链路")
	rootCmd.AddCommand(syncCmd)
}

// parseDateFlag parses a YYYY-MM-DD flag, defaulting to today when empty.
func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return d, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	if syncCode != "" {
		if syncStart == "" || syncEnd == "" {
			return fmt.Errorf("--code requires both --start and --end")
		}
		start, err := parseDateFlag(syncStart)
		if err != nil {
			return err
		}
		end, err := parseDateFlag(syncEnd)
		if err != nil {
			return err
		}
		n, err := a.mgr.SyncStockRange(ctx, syncCode, start, end)
		if err != nil {
			return fmt.Errorf("sync %s: %w", syncCode, err)
		}
		fmt.Printf("✅ %s: %d bars synced (%s ~ %s)\n", syncCode, n, syncStart, syncEnd)
		return nil
	}

	target, err := parseDateFlag(syncDate)
	if err != nil {
		return err
	}

	if syncChain {
		orch, err := newSchedulerless(a)
		if err != nil {
			return err
		}
		if err := orch.RunChain(ctx, target); err != nil {
			return fmt.Errorf("post-market chain: %w", err)
		}
		fmt.Printf("✅ Post-market chain finished for %s\n", target.Format("2006-01-02"))
		return nil
	}

	if _, err := a.mgr.SyncRawDaily(ctx, target); err != nil {
		return fmt.Errorf("sync raw daily: %w", err)
	}
	if _, err := a.mgr.ETLDaily(ctx, target); err != nil {
		return fmt.Errorf("etl daily: %w", err)
	}
	fmt.Printf("✅ Daily data synced for %s\n", target.Format("2006-01-02"))
	return nil
}
