package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hzhao/stock-selector/internal/pipeline"
	"github.com/hzhao/stock-selector/internal/strategyconfig"
)

var (
	pipeDate       string
	pipeTopN       int
	pipeStrategies []string
	pipeIncludeST  bool
	pipeConfig     string
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "运行五层选股漏斗",
	Long: `运行五层选股漏斗并打印选股结果。

  Layer 1  基础过滤 (停牌/ST/换手率)
  Layer 2  技术面策略筛选
  Layer 3  基本面策略筛选
  Layer 4  加权评分排序
  Layer 5  AI 精选 (可选)

示例:
  selector pipeline --date 2026-08-28 --top 50
  selector pipeline --strategy macd-golden --strategy rsi-oversold
  selector pipeline --config configs/aggressive.yaml`,
	RunE: runPipeline,
}

func init() {
	pipelineCmd.Flags().StringVar(&pipeDate, "date", "", "目标交易日 (YYYY-MM-DD, 默认今天)")
	pipelineCmd.Flags().IntVar(&pipeTopN, "top", 0, "输出股票数量上限 (默认 30)")
	pipelineCmd.Flags().StringArrayVar(&pipeStrategies, "strategy", nil, "指定策略名 (可重复, 默认全部)")
	pipelineCmd.Flags().BoolVar(&pipeIncludeST, "include-st", false, "不过滤 ST 股票")
	pipelineCmd.Flags().StringVar(&pipeConfig, "config", "", "YAML 选股参数文件 (覆盖默认参数)")
	rootCmd.AddCommand(pipelineCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := parseDateFlag(pipeDate)
	if err != nil {
		return err
	}

	names := pipeStrategies
	opts := pipeline.DefaultOptions()

	if pipeConfig != "" {
		sc, err := strategyconfig.Load(pipeConfig)
		if err != nil {
			return err
		}
		hash, err := strategyconfig.Hash(sc)
		if err != nil {
			return fmt.Errorf("hash strategy config: %w", err)
		}
		a.log.WithFields(map[string]interface{}{
			"config": sc.Meta.Name,
			"hash":   hash[:12],
		}).Info("Strategy config loaded")

		if len(names) == 0 {
			names = sc.EnabledNames()
		}
		opts.StrategyParams = sc.ParamOverrides()
		if sc.Pipeline.TopN > 0 {
			opts.TopN = sc.Pipeline.TopN
		}
		if sc.Pipeline.MinTurnoverRate > 0 {
			opts.MinTurnoverRate = sc.Pipeline.MinTurnoverRate
		}
		if sc.Pipeline.ExcludeST != nil {
			opts.ExcludeST = *sc.Pipeline.ExcludeST
		}
	}

	if len(names) == 0 {
		names = a.registry.Names()
	}
	if pipeTopN > 0 {
		opts.TopN = pipeTopN
	}
	if pipeIncludeST {
		opts.ExcludeST = false
	}

	result, err := a.pipe.Execute(context.Background(), names, target, opts)
	if err != nil {
		return fmt.Errorf("pipeline execute: %w", err)
	}

	printPipelineResult(result)
	return nil
}

func printPipelineResult(r *pipeline.Result) {
	fmt.Printf("📊 选股结果 %s (耗时 %s, AI %v)\n", r.TargetDate.Format("2006-01-02"), r.Elapsed.Round(time.Millisecond), r.AIEnabled)
	for layer, count := range r.LayerStats {
		fmt.Printf("  %-12s %d\n", layer, count)
	}
	if len(r.Picks) == 0 {
		fmt.Println("  (无符合条件的股票)")
		return
	}
	fmt.Println()
	for i, p := range r.Picks {
		line := fmt.Sprintf("%2d. %-10s %-8s 收盘 %8.2f  涨跌 %+6.2f%%  评分 %6.2f  策略 %s",
			i+1, p.TsCode, p.Name, p.Close, p.PctChg, p.Score, strings.Join(p.MatchedStrategies, ","))
		if p.AiScore != nil {
			line += fmt.Sprintf("  AI %d", *p.AiScore)
		}
		if p.AiSignal != nil {
			line += fmt.Sprintf(" %s", *p.AiSignal)
		}
		fmt.Println(line)
	}
}
