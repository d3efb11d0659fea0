package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/michalhajok/trackerB-sub000/internal/core"
	"github.com/michalhajok/trackerB-sub000/internal/queue"
	"github.com/michalhajok/trackerB-sub000/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			pipeline := a.pipeline()

			var (
				dispatcher core.Dispatcher
				shutdown   func(context.Context) error
				slots      func() core.LimiterStatus
			)
			if strings.EqualFold(a.cfg.Store.Dispatch, "queue") {
				qd := queue.NewDispatcher(a.redisOpt(), a.cfg.Redis.Queue, a.cfg.Upload.Timeout)
				dispatcher = qd
				shutdown = func(context.Context) error { return qd.Close() }
			} else {
				limiter := core.NewImportLimiter(a.cfg.Upload.MaxConcurrent, a.cfg.Upload.MaxWaitTime)
				ld := core.NewLocalDispatcher(pipeline, limiter, a.log)
				dispatcher = ld
				shutdown = ld.Shutdown
				slots = ld.LimiterStatus

				// Jobs accepted by a process that died before running them.
				if n, err := ld.Resume(ctx, a.store, time.Now()); err != nil {
					a.log.Error("resume pending imports", "error", err)
				} else if n > 0 {
					a.log.Info("resumed pending imports", "count", n)
				}

				// Queue mode leaves the watchdog to the workers.
				a.startWatchdog(ctx, pipeline)
			}

			service := core.NewService(a.store, dispatcher, core.ServiceConfig{
				MaxFileSize: a.cfg.Upload.MaxFileSize,
				Logger:      a.log,
			})
			server := web.NewServer(service, a.cfg, a.health)
			if slots != nil {
				server.ReportImports(slots)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				a.log.Error("server shutdown", "error", err)
			}
			if err := shutdown(shutdownCtx); err != nil {
				a.log.Warn("imports did not finish in time", "error", err)
			}
			a.log.Info("server stopped")
			return nil
		},
	}
}
