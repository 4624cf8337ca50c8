package main

import (
	"context"
	"time"

	"sharedspese/internal/cli"
	applog "sharedspese/internal/log"
	"sharedspese/internal/services"
	"sharedspese/internal/trace"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentGenerator)
	logger.Info("Starting month-worker")

	b := cli.OpenBackend(context.Background(), cfg, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.Reconciler.Stop(stopCtx); err != nil {
			logger.Warn("Failed to stop reconcile processor", "error", err)
		}
		if err := b.Close(); err != nil {
			logger.Warn("Failed to close backend", "error", err)
		}
	})

	b.Caches.StartCleanup(ctx, cfg.UserCacheTTL)

	if err := b.Reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile processor", "error", err)
	}

	logger.Info("Month generator configured",
		"interval", cfg.MonthSweepInterval,
		"session_timeout", cfg.SweepSessionTimeout,
		"concurrency", cfg.SweepConcurrency)

	sweep := func(now time.Time) {
		var report services.SweepReport
		err := trace.Run(ctx, "sweep", applog.OpSweep, func(ctx context.Context) error {
			var err error
			report, err = b.Generator.Sweep(ctx, now)
			return err
		})
		if err != nil {
			logger.Error("Month sweep failed", "error", err)
			return
		}
		advanced := 0
		for _, n := range report.Advanced {
			advanced += n
		}
		logger.Info("Month sweep complete",
			"sessions", report.Sessions,
			"months_appended", advanced,
			"failures", len(report.Failures),
			"next_check", now.Add(cfg.MonthSweepInterval).Format(time.DateTime))
	}

	// Run initial sweep on startup
	logger.Info("Running initial month sweep...")
	sweep(time.Now().UTC())

	go func() {
		ticker := time.NewTicker(cfg.MonthSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				sweep(now.UTC())
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
