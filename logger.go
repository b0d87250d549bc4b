package meshjoin

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with meshjoin-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRank adds a rank field to the logger.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogBoxIndex logs a box index build.
func (l *Logger) LogBoxIndex(ctx context.Context, nBoxes int, fit float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "box index build failed",
			"boxes", nBoxes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "box index built",
			"boxes", nBoxes,
			"fit", fit,
		)
	}
}

// LogMerge logs a vertex merge resolution.
func (l *Logger) LogMerge(ctx context.Context, nElts, localRounds, globalRounds int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "merge resolution failed",
			"elements", nElts,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "merge resolved",
			"elements", nElts,
			"local_rounds", localRounds,
			"global_rounds", globalRounds,
		)
	}
}

// LogResolve logs a distributed equivalence resolution.
func (l *Logger) LogResolve(ctx context.Context, nKeys, rounds int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "equivalence resolution failed",
			"keys", nKeys,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "equivalences resolved",
			"keys", nKeys,
			"rounds", rounds,
		)
	}
}
