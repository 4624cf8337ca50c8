package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"sharedspese/internal/backend"
)

var errUsage = errors.New("usage")

// run dispatches one subcommand and prints its outcome to out.
func run(ctx context.Context, b *backend.Backend, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	now := time.Now().UTC()

	switch cmd {
	case "sweep":
		report, err := b.Generator.Sweep(ctx, now)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		ids := make([]string, 0, len(report.Advanced))
		for id := range report.Advanced {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "%s\t+%d\n", id, report.Advanced[id])
		}
		for _, f := range report.Failures {
			fmt.Fprintf(out, "%s\tFAILED: %v\n", f.SessionID, f.Err)
		}
		fmt.Fprintf(out, "sessions=%d failures=%d\n", report.Sessions, len(report.Failures))
		return nil

	case "ensure-months":
		id, err := sessionFlag(cmd, rest)
		if err != nil {
			return err
		}
		created, err := b.Generator.EnsureNextTwelveMonths(ctx, id, now)
		if err != nil {
			return err
		}
		for _, ym := range created {
			fmt.Fprintln(out, ym.String())
		}
		fmt.Fprintf(out, "created=%d\n", len(created))
		return nil

	case "rebalance":
		id, err := sessionFlag(cmd, rest)
		if err != nil {
			return err
		}
		res, err := b.Generator.RebalanceAllMonths(ctx, id, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "months=%d allocations=%d sync_failures=%d\n",
			len(res.Touched), len(res.Allocations), len(res.Sync.Failures))
		return nil

	case "sync-allocation":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.String("id", "", "allocation id")
		if err := fs.Parse(rest); err != nil || *id == "" {
			return errUsage
		}
		res, err := b.Sync.SyncAllocationToPersonalExpense(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", res.AllocationID, res.Outcome, res.PersonalExpenseID)
		return nil

	case "reconcile":
		report, err := b.Reconciler.ProcessOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "synced=%d in_flight=%d failures=%d\n",
			len(report.Synced), len(report.InFlight), len(report.Failures))
		return nil

	default:
		return errUsage
	}
}

func sessionFlag(cmd string, args []string) (string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("session", "", "session id")
	if err := fs.Parse(args); err != nil || *id == "" {
		return "", errUsage
	}
	return *id, nil
}
