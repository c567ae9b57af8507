package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"zgrid/internal/runner"
	"zgrid/internal/worker"
)

var workerCount int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker pool against the coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		n := workerCount
		if n == 0 {
			n = cfg.Worker.MaxWorkers
		}

		exec := &worker.LocalExecutor{LogDir: cfg.Worker.LogDir}
		if cfg.Worker.RunnerURL != "" {
			exec.Runner = runner.New(cfg.Worker.RunnerURL)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool := worker.NewPool(n, coordinatorClient(cfg), exec, cfg.PollInterval())
		pool.Start(ctx)
		slog.Info("worker pool started", "workers", n, "coordinator", cfg.Worker.CoordinatorURL)

		<-ctx.Done()
		slog.Info("shutdown signal received, stopping workers...")
		pool.Stop()
		return nil
	},
}

func init() {
	workerCmd.Flags().IntVarP(&workerCount, "workers", "n", 0, "number of workers (default from config)")
	rootCmd.AddCommand(workerCmd)
}
