package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hzhao/stock-selector/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "启动调度守护进程",
	Long: `启动盘后数据调度器，按计划执行:
  - 盘后自动更新 (数据嗅探 → 同步 → 指标 → 缓存 → 选股)
  - 失败股票重试
  - 周末股票列表刷新

收到 SIGINT/SIGTERM 后优雅停机。`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	fmt.Println("📈 Stock Selector Scheduler")
	fmt.Println("===========================")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := scheduler.New(a.log)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	state := scheduler.NewRunState(a.rdb)
	orch, err := scheduler.NewOrchestrator(sched, a.mgr, a.proc, a.engine, a.cache, a.pipe, a.registry, state, a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	if err := orch.RegisterJobs(); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	// Crash recovery runs before the first tick so stale locks and
	// half-finished batches never block the evening chain.
	if err := orch.StartupRecovery(context.Background()); err != nil {
		a.log.WithError(err).Warn("Startup recovery incomplete")
	}

	sched.Start()
	a.log.WithField("jobs", sched.JobNames()).Info("Scheduler started")
	fmt.Println("✅ Scheduler running. Press Ctrl+C to stop.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\n🛑 Shutting down...")
	sched.Stop(a.cfg.Scheduler.ShutdownGrace)
	a.log.Info("Scheduler stopped")
	return nil
}
