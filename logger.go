package histore

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
)

// Logger wraps slog.Logger with store-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000),
		})),
	}
}

// WithStore adds a store name field to the logger.
func (l *Logger) WithStore(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("store", name),
	}
}

// WithKey adds a record key field to the logger.
func (l *Logger) WithKey(key model.Key) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key.String()),
	}
}

// WithVersion adds a version field to the logger.
func (l *Logger) WithVersion(v model.Version) *Logger {
	return &Logger{
		Logger: l.Logger.With("version", uint64(v)),
	}
}

// LogWrite logs a write batch.
func (l *Logger) LogWrite(ctx context.Context, v model.Version, ops, failed int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "write failed",
			"version", uint64(v),
			"ops", ops,
			"error", err,
		)
	case failed > 0:
		l.WarnContext(ctx, "write completed with failures",
			"version", uint64(v),
			"ops", ops,
			"failed", failed,
		)
	default:
		l.DebugContext(ctx, "write completed",
			"version", uint64(v),
			"ops", ops,
		)
	}
}

// LogScan logs a scan or count.
func (l *Logger) LogScan(ctx context.Context, scanned, matched int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "scan failed",
			"scanned", scanned,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "scan completed",
			"scanned", scanned,
			"matched", matched,
		)
	}
}

// LogUniqueConflict logs a rejected unique claim.
func (l *Logger) LogUniqueConflict(ctx context.Context, index string, r ref.Reference, key, heldBy model.Key) {
	l.DebugContext(ctx, "unique conflict",
		"index", index,
		"ref", r.String(),
		"key", key.String(),
		"held_by", heldBy.String(),
	)
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, name string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"name", name,
			"bytes", bytes,
		)
	}
}

// LogRecovery logs state recovery from a backend, snapshot or WAL.
func (l *Logger) LogRecovery(ctx context.Context, source string, entries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "recovery failed",
			"source", source,
			"entries", entries,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "recovery completed",
			"source", source,
			"entries", entries,
		)
	}
}
