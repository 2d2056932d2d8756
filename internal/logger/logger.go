// Package logger configures the application slog handlers and provides
// request-scoped loggers carried in the request context.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

type contextKey int

const (
	requestLoggerKey contextKey = iota
	logAttrsKey
)

// ParseLogLevel converts a LOG_LEVEL string to a slog.Level (defaults to info).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// InitLogger creates the application logger and installs it as the slog default.
//
// dev/test environments get a human-readable tint handler; everything else
// logs JSON for ingestion by the log pipeline.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	var handler slog.Handler

	if environment == "dev" || environment == "test" {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// attrCollector accumulates attributes attached to a request over its lifetime
// so the final request log line can include them.
type attrCollector struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// ContextWithRequestLogger returns a context carrying a request-scoped logger
// plus an attribute collector for ContextWithLogAttrs.
func ContextWithRequestLogger(ctx context.Context, l *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, requestLoggerKey, l)
	return context.WithValue(ctx, logAttrsKey, &attrCollector{})
}

// ContextRequestLogger returns the request-scoped logger, or the default
// logger when the context does not carry one (e.g. background jobs).
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// ContextWithLogAttrs appends attributes to the request's attribute collector.
// The attributes are included in the final request log line.
func ContextWithLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	c, ok := ctx.Value(logAttrsKey).(*attrCollector)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs = append(c.attrs, attrs...)
}

// ContextLogAttrs returns the attributes accumulated for the request.
func ContextLogAttrs(ctx context.Context) []slog.Attr {
	c, ok := ctx.Value(logAttrsKey).(*attrCollector)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]slog.Attr, len(c.attrs))
	copy(out, c.attrs)
	return out
}
