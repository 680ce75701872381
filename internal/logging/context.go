package logging

import (
	"context"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	chartIDKey ctxKey = iota
	containerIDKey
	requestIDKey
)

// WithChartID returns a context with the chart ID set.
func WithChartID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, chartIDKey, id)
}

// WithContainerID returns a context with the container ID set.
func WithContainerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, containerIDKey, id)
}

// WithRequestID returns a context with the request ID set.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ChartID extracts the chart ID from the context, or "" if absent.
func ChartID(ctx context.Context) string {
	v, _ := ctx.Value(chartIDKey).(string)
	return v
}

// ContainerID extracts the container ID from the context, or "" if absent.
func ContainerID(ctx context.Context) string {
	v, _ := ctx.Value(containerIDKey).(string)
	return v
}

// RequestID extracts the request ID from the context, or "" if absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := ChartID(ctx); v != "" {
		r.AddAttrs(slog.String("chart_id", v))
	}
	if v := ContainerID(ctx); v != "" {
		r.AddAttrs(slog.String("container_id", v))
	}
	if v := RequestID(ctx); v != "" {
		r.AddAttrs(slog.String("request_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps a config level name to an slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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
