package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hzhao/stock-selector/internal/scheduler"
)

var statusDate string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看同步进度与当日状态",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDate, "date", "", "目标交易日 (YYYY-MM-DD, 默认今天)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	target, err := parseDateFlag(statusDate)
	if err != nil {
		return err
	}
	dateStr := target.Format("2006-01-02")

	fmt.Printf("📋 Status for %s\n", dateStr)
	fmt.Println("====================")

	isTrade, err := a.mgr.IsTradeDay(ctx, target)
	if err != nil {
		return fmt.Errorf("query trade calendar: %w", err)
	}
	fmt.Printf("交易日:   %v\n", isTrade)

	state := scheduler.NewRunState(a.rdb)
	runState, err := state.Get(ctx, target)
	if err != nil {
		a.log.WithError(err).Warn("Run state unavailable")
		runState = scheduler.StatePending
	}
	fmt.Printf("当日状态: %s\n", runState)

	summary, err := a.tracker.SyncSummary(ctx, target)
	if err != nil {
		return fmt.Errorf("query sync summary: %w", err)
	}
	fmt.Println()
	fmt.Printf("股票总数:   %d\n", summary.Total)
	fmt.Printf("行情完成:   %d\n", summary.DataDone)
	fmt.Printf("指标完成:   %d\n", summary.IndicatorDone)
	fmt.Printf("失败:       %d\n", summary.Failed)
	fmt.Printf("完成率:     %.1f%%\n", summary.CompletionRate*100)

	failed, err := a.tracker.FailedStocks(ctx, a.cfg.Sync.MaxRetries)
	if err != nil {
		return fmt.Errorf("query failed stocks: %w", err)
	}
	if len(failed) > 0 {
		fmt.Println()
		fmt.Printf("⚠️ 可重试的失败股票 (%d):\n", len(failed))
		for _, code := range failed {
			fmt.Printf("  - %s\n", code)
		}
	}
	return nil
}
