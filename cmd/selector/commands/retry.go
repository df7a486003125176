package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var retryDate string

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "重试失败的股票",
	Long: `把仍在重试预算内的失败股票重置为待同步，并立即按批补数。
补数完成后若当日完成率达标，重跑选股漏斗。`,
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().StringVar(&retryDate, "date", "", "目标交易日 (YYYY-MM-DD, 默认今天)")
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := parseDateFlag(retryDate)
	if err != nil {
		return err
	}

	orch, err := newSchedulerless(a)
	if err != nil {
		return err
	}
	if err := orch.RetryFailed(context.Background(), target); err != nil {
		return fmt.Errorf("retry failed stocks: %w", err)
	}
	fmt.Printf("✅ Retry pass finished for %s\n", target.Format("2006-01-02"))
	return nil
}
