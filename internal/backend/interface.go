package backend

import (
	"context"
	"errors"

	"sharedspese/internal/amqp"
	"sharedspese/internal/cache"
	"sharedspese/internal/core"
	"sharedspese/internal/lease"
	"sharedspese/internal/services"
	"sharedspese/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Backend is the wired engine: persistence, sync collaborators and the
// services built on top of them.
type Backend struct {
	Store storage.Store
	Guard lease.Guard
	// AMQP is nil when no broker is configured or it was unreachable.
	AMQP   *amqp.Client
	Users  *cache.LRUCache[core.User]
	Caches *cache.Manager

	Sync       *services.SyncOrchestrator
	Ledger     *services.Ledger
	Calendar   *services.CalendarService
	Generator  *services.MonthGenerator
	Reconciler *services.ReconcileProcessor

	cleanups []CleanupFunc
}

func (b *Backend) addCleanup(fn CleanupFunc) {
	b.cleanups = append(b.cleanups, fn)
}

// Close releases resources in reverse order of acquisition.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanups = nil
	return errors.Join(errs...)
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}
