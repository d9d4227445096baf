package state

import (
	"context"
	"log/slog"
	"time"
)

// LogEvent describes a store diagnostics event: a recovered panic, a skipped
// middleware, a persistence failure.
type LogEvent struct {
	Op       string
	Store    string
	Detail   string
	Duration time.Duration
	Err      error
}

// Logger records store diagnostics. The default configuration drops
// everything.
type Logger interface {
	Log(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// Log implements Logger.
func (f LoggerFunc) Log(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) Log(LogEvent) {}

// WithLogger attaches a diagnostics logger to the store.
func WithLogger(logger Logger) Option {
	return func(cfg *storeConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// NewSlogLogger bridges store diagnostics onto a slog.Logger. Events carrying
// an error log at Error level, the rest at Debug.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogLogger{logger: logger}
}

type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) Log(event LogEvent) {
	attrs := []slog.Attr{slog.String("op", event.Op)}
	if event.Store != "" {
		attrs = append(attrs, slog.String("store", event.Store))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	level := slog.LevelDebug
	message := "state event"
	if event.Err != nil {
		level = slog.LevelError
		message = "state error"
		attrs = append(attrs, slog.String("error", event.Err.Error()))
	}
	l.logger.LogAttrs(context.Background(), level, message, attrs...)
}
