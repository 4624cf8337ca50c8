package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sharedspese/internal/storage"
)

// ReconcileProcessorConfig holds configuration for the reconcile processor
type ReconcileProcessorConfig struct {
	// Interval is how often to look for allocations without a mirror (default: 5m)
	Interval time.Duration

	// BatchSize is the max number of allocations synced per pass (default: 50)
	BatchSize int
}

// DefaultReconcileProcessorConfig returns sensible defaults
func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		Interval:  5 * time.Minute,
		BatchSize: 50,
	}
}

// ReconcileProcessor periodically mirrors allocations that have no
// personal expense yet, catching syncs whose retry message was lost.
type ReconcileProcessor struct {
	store  storage.AllocationStore
	sync   *SyncOrchestrator
	config ReconcileProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReconcileProcessor creates a new reconcile processor
func NewReconcileProcessor(store storage.AllocationStore, sync *SyncOrchestrator, config ReconcileProcessorConfig) *ReconcileProcessor {
	return &ReconcileProcessor{
		store:  store,
		sync:   sync,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Reconcile processor started",
		"interval", p.config.Interval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Reconcile processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Reconcile immediately on startup
	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *ReconcileProcessor) processBatch(ctx context.Context) {
	if _, err := p.ProcessOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Reconcile pass failed", "error", err)
	}
}

// ProcessOnce syncs one batch of unmirrored allocations.
func (p *ReconcileProcessor) ProcessOnce(ctx context.Context) (SyncReport, error) {
	if p.store == nil || p.sync == nil {
		return SyncReport{}, fmt.Errorf("processor not properly initialized")
	}

	allocs, err := p.store.ListUnmirroredAllocations(ctx, p.config.BatchSize)
	if err != nil {
		return SyncReport{}, fmt.Errorf("list unmirrored allocations: %w", err)
	}
	if len(allocs) == 0 {
		return SyncReport{}, nil
	}

	slog.DebugContext(ctx, "Reconciling unmirrored allocations", "count", len(allocs))

	report := p.sync.SyncBatch(ctx, allocs)

	slog.InfoContext(ctx, "Reconcile pass completed",
		"candidates", len(allocs),
		"synced", len(report.Synced),
		"in_flight", len(report.InFlight),
		"failed", len(report.Failures))
	return report, nil
}
