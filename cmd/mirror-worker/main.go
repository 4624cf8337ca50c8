package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"sharedspese/internal/cli"
	applog "sharedspese/internal/log"
	"sharedspese/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentWorker)
	logger.Info("Starting mirror-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for mirror-worker")
		os.Exit(1)
	}

	b := cli.OpenBackend(context.Background(), cfg, logger)
	if b.AMQP == nil {
		logger.Error("AMQP broker unreachable, cannot consume mirror sync messages")
		b.Close()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := b.Close(); err != nil {
			logger.Warn("Failed to close backend", "error", err)
		}
	})

	b.Caches.StartCleanup(ctx, cfg.UserCacheTTL)
	w := worker.NewMirrorWorker(b.Store, b.Sync, cfg.ReconcileBatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// On startup, mirror any allocation missed while the worker was down
		logger.Info("Performing startup sync check...")
		if err := w.StartupSyncCheck(gctx); err != nil {
			logger.Error("Failed startup sync check", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return b.AMQP.ConsumeMirrorSync(gctx, w.HandleMirrorSync)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
	}

	cli.WaitForShutdown(ctx, done)
}
