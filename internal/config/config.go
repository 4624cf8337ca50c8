package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Storage
	DataBackend  string `env:"DATA_BACKEND" envDefault:"sqlite"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/sharedspese.db"`
	DataDir      string `env:"DATA_DIR" envDefault:"./data"`

	// AMQP mirror retry transport; empty URL disables it
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"sharedspese"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"mirror_sync"`

	// In-flight guard for allocation syncs
	LeaseBackend string        `env:"LEASE_BACKEND" envDefault:"local"`
	RedisURL     string        `env:"REDIS_URL"`
	SyncLeaseTTL time.Duration `env:"SYNC_LEASE_TTL" envDefault:"30s"`

	// Month generator
	MonthSweepInterval  time.Duration `env:"MONTH_SWEEP_INTERVAL" envDefault:"24h"`
	SweepSessionTimeout time.Duration `env:"SWEEP_SESSION_TIMEOUT" envDefault:"30s"`
	SweepConcurrency    int           `env:"SWEEP_CONCURRENCY" envDefault:"4"`

	// Reconcile processor
	ReconcileInterval  time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`
	ReconcileBatchSize int           `env:"RECONCILE_BATCH_SIZE" envDefault:"50"`

	// User lookup cache
	UserCacheSize int           `env:"USER_CACHE_SIZE" envDefault:"1000"`
	UserCacheTTL  time.Duration `env:"USER_CACHE_TTL" envDefault:"5m"`

	DefaultCurrency string `env:"DEFAULT_CURRENCY" envDefault:"EUR"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.LeaseBackend {
	case "local":
	case "redis":
		if c.RedisURL == "" {
			errors = append(errors, "REDIS_URL is required when using the redis lease backend")
		} else if parsedURL, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if parsedURL.Scheme != "redis" && parsedURL.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", parsedURL.Scheme))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid lease backend '%s': must be one of [local redis]", c.LeaseBackend))
	}

	if c.SyncLeaseTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync lease TTL %v: must be at least 1 second", c.SyncLeaseTTL))
	}

	if c.MonthSweepInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid month sweep interval %v: must be at least 1 minute", c.MonthSweepInterval))
	}
	if c.SweepSessionTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sweep session timeout %v: must be at least 1 second", c.SweepSessionTimeout))
	}
	if c.SweepConcurrency < 1 || c.SweepConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid sweep concurrency %d: must be between 1 and 64", c.SweepConcurrency))
	}

	if c.ReconcileInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at least 1 second", c.ReconcileInterval))
	} else if c.ReconcileInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at most 24 hours", c.ReconcileInterval))
	}
	if c.ReconcileBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid reconcile batch size %d: must be at least 1", c.ReconcileBatchSize))
	} else if c.ReconcileBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid reconcile batch size %d: must be at most 1000", c.ReconcileBatchSize))
	}

	if c.UserCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid user cache size %d: must be at least 1", c.UserCacheSize))
	}

	if len(c.DefaultCurrency) != 3 || strings.ToUpper(c.DefaultCurrency) != c.DefaultCurrency {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': must be a 3-letter ISO code", c.DefaultCurrency))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
