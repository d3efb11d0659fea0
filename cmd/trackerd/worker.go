package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michalhajok/trackerB-sub000/internal/queue"
)

func newWorkerCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume import tasks from Redis and run the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requirePostgres("worker"); err != nil {
				return err
			}

			if concurrency <= 0 {
				concurrency = a.cfg.Upload.MaxConcurrent
			}
			pipeline := a.pipeline()
			worker := queue.NewWorker(a.redisOpt(), pipeline, queue.WorkerConfig{
				Concurrency: concurrency,
				Queue:       a.cfg.Redis.Queue,
				Logger:      a.log,
			})
			if err := worker.Start(); err != nil {
				return err
			}
			a.startWatchdog(ctx, pipeline)
			a.log.Info("worker started", "queue", a.cfg.Redis.Queue, "concurrency", concurrency)

			<-ctx.Done()
			a.log.Info("shutting down worker...")
			worker.Shutdown()
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel imports (default UPLOAD_MAX_CONCURRENT)")
	return cmd
}
