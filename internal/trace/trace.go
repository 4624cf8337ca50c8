// Package trace tags background operations with an id that follows them
// through the logs.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ContextKey type for context keys
type ContextKey string

const (
	// OperationIDKey is the context key for the operation ID
	OperationIDKey ContextKey = "operation_id"
)

// Metrics tracks operation counts and latency
type Metrics struct {
	TotalOperations     int64
	FailedOperations    int64
	AverageResponseTime int64 // in microseconds, of the last operation
}

var metrics Metrics

// NewOperationID creates a unique id for tracing, e.g. "msg_1f2e...".
func NewOperationID(prefix string) string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// WithOperationID returns a context carrying id.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, OperationIDKey, id)
}

// OperationID extracts the operation ID from context
func OperationID(ctx context.Context) string {
	if id, ok := ctx.Value(OperationIDKey).(string); ok {
		return id
	}
	return ""
}

// Run executes fn under a fresh operation id and logs its start and
// completion. Failed operations are logged at warn level.
func Run(ctx context.Context, prefix, name string, fn func(ctx context.Context) error, attrs ...any) error {
	start := time.Now()
	id := NewOperationID(prefix)
	ctx = WithOperationID(ctx, id)

	base := append([]any{"operation_id", id, "operation", name}, attrs...)
	slog.DebugContext(ctx, "Operation started", base...)

	atomic.AddInt64(&metrics.TotalOperations, 1)
	err := fn(ctx)

	duration := time.Since(start)
	atomic.StoreInt64(&metrics.AverageResponseTime, duration.Microseconds())

	level := slog.LevelInfo
	done := append(base,
		"duration_ms", duration.Milliseconds(),
		"success", err == nil)
	if err != nil {
		atomic.AddInt64(&metrics.FailedOperations, 1)
		level = slog.LevelWarn
		done = append(done, "error", err)
	}
	slog.Log(ctx, level, "Operation completed", done...)
	return err
}

// GetMetrics returns current metrics
func GetMetrics() Metrics {
	return Metrics{
		TotalOperations:     atomic.LoadInt64(&metrics.TotalOperations),
		FailedOperations:    atomic.LoadInt64(&metrics.FailedOperations),
		AverageResponseTime: atomic.LoadInt64(&metrics.AverageResponseTime),
	}
}
