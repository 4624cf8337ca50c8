package backend

import (
	"fmt"
	"time"

	"sharedspese/internal/config"
	"sharedspese/internal/services"
)

// BackendType represents the type of store backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// LeaseType selects the in-flight guard implementation.
type LeaseType string

const (
	LocalLease LeaseType = "local"
	RedisLease LeaseType = "redis"
)

func (lt LeaseType) IsValid() bool {
	return lt == LocalLease || lt == RedisLease
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory backend specific
	DataDirectory string

	// Optional AMQP retry transport
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	Lease     LeaseType
	RedisURL  string
	LeaseTTL  time.Duration
	KeyPrefix string

	UserCacheSize int
	UserCacheTTL  time.Duration

	Generator services.GeneratorConfig
	Reconcile services.ReconcileProcessorConfig
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DataDirectory: appConfig.DataDir,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		Lease:     LeaseType(appConfig.LeaseBackend),
		RedisURL:  appConfig.RedisURL,
		LeaseTTL:  appConfig.SyncLeaseTTL,
		KeyPrefix: "sharedspese:",

		UserCacheSize: appConfig.UserCacheSize,
		UserCacheTTL:  appConfig.UserCacheTTL,

		Generator: services.GeneratorConfig{
			SessionTimeout: appConfig.SweepSessionTimeout,
			Concurrency:    appConfig.SweepConcurrency,
		},
		Reconcile: services.ReconcileProcessorConfig{
			Interval:  appConfig.ReconcileInterval,
			BatchSize: appConfig.ReconcileBatchSize,
		},
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case MemoryBackend:
		// DataDirectory defaults to "data" when empty
	}

	lease := c.Lease
	if lease == "" {
		lease = LocalLease
	}
	if !lease.IsValid() {
		return fmt.Errorf("invalid lease backend: %s", c.Lease)
	}
	if lease == RedisLease && c.RedisURL == "" {
		return fmt.Errorf("redis URL is required for redis lease backend")
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
