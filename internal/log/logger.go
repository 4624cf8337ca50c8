package log

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger tagged with the component that owns it.
type Logger struct {
	*slog.Logger
}

type Config struct {
	Level slog.Level
	// Handler replaces the stdout text handler, mostly in tests.
	Handler slog.Handler
}

// DefaultConfig logs at info level to stdout.
func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo}
}

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level})
	}
	return &Logger{Logger: slog.New(handler)}
}

// WithComponent returns a child logger whose records carry component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(FieldComponent, component)}
}

// SetDefault routes the package-level slog functions through logger.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
