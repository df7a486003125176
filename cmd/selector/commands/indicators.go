package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hzhao/stock-selector/internal/indicator"
	"github.com/hzhao/stock-selector/internal/progress"
)

var (
	indDate string
	indFull bool
	indCode string
)

var indicatorsCmd = &cobra.Command{
	Use:   "indicators",
	Short: "计算技术指标",
	Long: `计算并入库技术指标。

默认按进度表增量计算 (只补每只股票缺的日期):
  selector indicators --date 2026-08-28

--full 对指定股票从历史起点全量重算:
  selector indicators --code 600519.SH --full`,
	RunE: runIndicators,
}

func init() {
	indicatorsCmd.Flags().StringVar(&indDate, "date", "", "计算截止日 (YYYY-MM-DD, 默认今天)")
	indicatorsCmd.Flags().BoolVar(&indFull, "full", false, "从历史起点全量重算")
	indicatorsCmd.Flags().StringVar(&indCode, "code", "", "限定单只股票代码")
	rootCmd.AddCommand(indicatorsCmd)
}

func runIndicators(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	end, err := parseDateFlag(indDate)
	if err != nil {
		return err
	}

	if indFull {
		if indCode == "" {
			return fmt.Errorf("--full requires --code; full-universe recompute goes through the scheduler")
		}
		historyStart, err := time.Parse("2006-01-02", a.cfg.Sync.HistoryStart)
		if err != nil {
			return fmt.Errorf("parse history start: %w", err)
		}
		success, failed := a.engine.ComputeAll(ctx, []string{indCode}, historyStart, end)
		fmt.Printf("✅ Indicators recomputed: %d ok, %d failed\n", success, failed)
		return nil
	}

	pending, err := a.tracker.StocksNeedingIndicators(ctx, end)
	if err != nil {
		return fmt.Errorf("query pending stocks: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println("✅ Indicators already up to date")
		return nil
	}

	targets := make([]indicator.Target, 0, len(pending))
	for _, p := range pending {
		if indCode != "" && p.TsCode != indCode {
			continue
		}
		from := p.IndicatorDate.AddDate(0, 0, 1)
		if !p.IndicatorDate.After(progress.SentinelDate) {
			start, err := time.Parse("2006-01-02", a.cfg.Sync.HistoryStart)
			if err != nil {
				return fmt.Errorf("parse history start: %w", err)
			}
			from = start
		}
		targets = append(targets, indicator.Target{TsCode: p.TsCode, From: from})
	}

	success, failed := a.engine.ComputeIncremental(ctx, targets, end)
	fmt.Printf("✅ Indicators computed: %d ok, %d failed (of %d pending)\n", success, failed, len(targets))
	return nil
}
