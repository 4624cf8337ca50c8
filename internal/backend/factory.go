package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sharedspese/internal/amqp"
	"sharedspese/internal/cache"
	"sharedspese/internal/core"
	"sharedspese/internal/lease"
	"sharedspese/internal/services"
	"sharedspese/internal/storage"
	"sharedspese/internal/storage/memory"
)

const (
	defaultUserCacheSize = 1000
	defaultUserCacheTTL  = 5 * time.Minute
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend. On error every resource
// acquired so far is released.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{}
	if err := f.build(ctx, b, config); err != nil {
		if cerr := b.Close(); cerr != nil {
			f.logger.Warn("Failed to release partial backend", "error", cerr)
		}
		return nil, err
	}
	return b, nil
}

func (f *DefaultFactory) build(ctx context.Context, b *Backend, config Config) error {
	store, err := f.createStore(config)
	if err != nil {
		return err
	}
	b.Store = store
	if closer, ok := store.(interface{ Close() error }); ok {
		b.addCleanup(closer.Close)
	}

	guard, err := f.createGuard(ctx, config)
	if err != nil {
		return err
	}
	b.Guard = guard
	if r, ok := guard.(*lease.Redis); ok {
		b.addCleanup(r.Close)
	}

	// AMQP is optional: without it failed syncs wait for the reconciler.
	var publisher services.MirrorPublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without retry transport", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			b.AMQP = client
			b.addCleanup(client.Close)
			publisher = client
		}
	}

	size, ttl := config.UserCacheSize, config.UserCacheTTL
	if size <= 0 {
		size = defaultUserCacheSize
	}
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	b.Users = cache.NewLRUCache[core.User](size, ttl)
	b.Caches = cache.NewManager()
	b.Caches.Register("users", b.Users)
	b.addCleanup(func() error {
		b.Caches.Stop()
		return nil
	})

	reconcile := config.Reconcile
	def := services.DefaultReconcileProcessorConfig()
	if reconcile.Interval <= 0 {
		reconcile.Interval = def.Interval
	}
	if reconcile.BatchSize <= 0 {
		reconcile.BatchSize = def.BatchSize
	}

	b.Sync = services.NewSyncOrchestrator(store, guard, b.Users, publisher)
	b.Ledger = services.NewLedger(store, b.Sync)
	b.Calendar = services.NewCalendarService(b.Ledger)
	b.Generator = services.NewMonthGenerator(b.Ledger, config.Generator)
	b.Reconciler = services.NewReconcileProcessor(store, b.Sync, reconcile)

	f.logger.Info("Initialized backend",
		"store", config.Type.String(),
		"lease", string(guardType(config)),
		"amqp_enabled", b.AMQP != nil)
	return nil
}

func (f *DefaultFactory) createStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		f.logger.Info("Initialized memory store", "data_directory", dataDir)
		return memory.NewFromFiles(dataDir), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func guardType(config Config) LeaseType {
	if config.Lease == "" {
		return LocalLease
	}
	return config.Lease
}

func (f *DefaultFactory) createGuard(ctx context.Context, config Config) (lease.Guard, error) {
	if guardType(config) == LocalLease {
		return lease.NewLocal(), nil
	}

	r, err := lease.NewRedis(config.RedisURL, config.KeyPrefix, config.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis lease: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		r.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return r, nil
}
