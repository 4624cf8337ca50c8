// Command ledgerctl runs one-off maintenance operations against the
// shared expense ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sharedspese/internal/cli"
	applog "sharedspese/internal/log"
	"sharedspese/internal/storage"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  sweep                       advance every permanent session
  ensure-months -session ID   materialise the next twelve months of a session
  rebalance -session ID       reset every month of a session to an equal split
  sync-allocation -id ID      mirror one allocation into its personal expense
  reconcile                   mirror allocations that have no personal expense
  schema-version              print the SQLite schema version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, logger := cli.Bootstrap(applog.ComponentCLI)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if os.Args[1] == "schema-version" {
		version, dirty, err := storage.SchemaVersion(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to read schema version", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return
	}

	b := cli.OpenBackend(ctx, cfg, logger)
	defer b.Close()

	err := run(ctx, b, os.Args[1:], os.Stdout)
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		b.Close()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", "command", os.Args[1], "error", err)
		b.Close()
		os.Exit(1)
	}
}
