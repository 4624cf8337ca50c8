package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sharedspese/internal/amqp"
	"sharedspese/internal/core"
	applog "sharedspese/internal/log"
	"sharedspese/internal/services"
	"sharedspese/internal/storage"
	"sharedspese/internal/trace"
)

// ErrSyncInFlight is returned when the allocation is being synced by
// someone else; the message is retried later.
var ErrSyncInFlight = errors.New("allocation sync in flight")

// AllocationSyncer mirrors allocations into personal expense lists.
type AllocationSyncer interface {
	SyncAllocationToPersonalExpense(ctx context.Context, allocationID string) (*services.SyncResult, error)
	SyncBatch(ctx context.Context, allocations []core.Allocation) services.SyncReport
}

// MirrorWorker re-runs allocation syncs handed over through AMQP
type MirrorWorker struct {
	allocations storage.AllocationStore
	syncer      AllocationSyncer
	batchSize   int
}

func NewMirrorWorker(allocations storage.AllocationStore, syncer AllocationSyncer, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		allocations: allocations,
		syncer:      syncer,
		batchSize:   batchSize,
	}
}

// HandleMirrorSync processes a single mirror sync message from AMQP.
// Allocations that no longer exist were replaced by a later regeneration
// and are acknowledged without work.
func (w *MirrorWorker) HandleMirrorSync(ctx context.Context, msg *amqp.MirrorSyncMessage) error {
	return trace.Run(ctx, "msg", applog.OpSync, func(ctx context.Context) error {
		return w.handle(ctx, msg)
	}, "allocation_id", msg.AllocationID)
}

func (w *MirrorWorker) handle(ctx context.Context, msg *amqp.MirrorSyncMessage) error {
	slog.InfoContext(ctx, "Processing mirror sync message",
		"allocation_id", msg.AllocationID,
		"attempt", msg.Attempt,
		"reason", msg.Reason)

	res, err := w.syncer.SyncAllocationToPersonalExpense(ctx, msg.AllocationID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Dropping mirror sync for missing data",
				"allocation_id", msg.AllocationID,
				"error", err)
			return nil
		}
		return fmt.Errorf("sync allocation: %w", err)
	}
	if res.Outcome == services.SyncInFlight {
		return ErrSyncInFlight
	}

	slog.InfoContext(ctx, "Successfully synced allocation",
		"allocation_id", msg.AllocationID,
		"mirror_id", res.PersonalExpenseID,
		"outcome", string(res.Outcome))
	return nil
}

// StartupSyncCheck mirrors allocations left without a mirror while the
// worker was down.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.allocations.ListUnmirroredAllocations(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list unmirrored allocations for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No unmirrored allocations found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found unmirrored allocations on startup, processing...",
		"count", len(pending))

	report := w.syncer.SyncBatch(ctx, pending)

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", len(report.Synced),
		"in_flight", len(report.InFlight),
		"errors", len(report.Failures))

	return nil
}
