package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "selector",
	Short: "A 股每日选股系统",
	Long: `A 股盘后数据管线与选股系统

每日盘后自动完成：数据嗅探 → 行情入库 → ETL → 技术指标 →
缓存刷新 → 五层选股漏斗。

Usage:
  go run ./cmd/selector [command]

Examples:
  go run ./cmd/selector start
  go run ./cmd/selector sync --date 2024-03-15
  go run ./cmd/selector pipeline --top 30
  go run ./cmd/selector status`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}
