// Package logging configures vodstream's structured logger, following
// the shape of jmylchreest-tvarr's internal/observability package: a
// slog.Logger built from a LoggingConfig, a package-level level var for
// runtime changes, and context helpers for attaching per-request
// fields. The field-name redaction that package layers on top (via
// github.com/m-mizutani/masq) is dropped here — see DESIGN.md — since
// nothing in this server's domain (track ids, byte ranges, resource
// paths) is a credential worth scrubbing from logs.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tetsuo/vodstream/internal/config"
)

type contextKey string

const loggerKey contextKey = "logger"

// GlobalLevel is the shared log level, changeable at runtime via
// SetLevel without rebuilding the handler.
var GlobalLevel = &slog.LevelVar{}

// New builds the default logger, writing to os.Stderr (so stdout stays
// free for cmd/vodstream's probe/dump/fragment subcommands to write
// their output to).
func New(cfg config.LoggingConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger writing to w, for tests or alternate
// output destinations.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	GlobalLevel.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:     GlobalLevel,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the global log level at runtime.
func SetLevel(level string) {
	GlobalLevel.Set(parseLevel(level))
}

// WithComponent adds a component name identifying the log's source
// package ("server", "hls", "remux", ...).
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithTrack adds a track id to the logger, for per-track request logs.
func WithTrack(logger *slog.Logger, trackID uint32) *slog.Logger {
	return logger.With(slog.Uint64("track_id", uint64(trackID)))
}

// WithError adds an error to the logger's attributes, a no-op if err is nil.
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}

// ContextWithLogger attaches logger to ctx.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger attached to ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// TimedOperation logs an operation's start and, when the returned func
// is deferred, its completion and duration.
func TimedOperation(ctx context.Context, logger *slog.Logger, operation string) func() {
	start := time.Now()
	logger.InfoContext(ctx, "operation started", slog.String("operation", operation))
	return func() {
		logger.InfoContext(ctx, "operation completed",
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
