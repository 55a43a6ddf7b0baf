// Package logging carries per-attempt log attributes in the context and provides the slog
// handler that adds them, together with the OpenTelemetry trace ids, to every record.
package logging

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type attrsKey struct{}

// WithAttrs returns a context whose log records carry attrs in addition to the attributes
// already attached to ctx
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing := FromContext(ctx)
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// WithConnection attaches the connection id to the log context
func WithConnection(ctx context.Context, connectionID string) context.Context {
	return WithAttrs(ctx, slog.String("connection_id", connectionID))
}

// WithAttempt attaches the job and attempt being executed to the log context
func WithAttempt(ctx context.Context, jobID int64, attempt int) context.Context {
	return WithAttrs(ctx, slog.Int64("job_id", jobID), slog.Int("attempt", attempt))
}

// FromContext returns the attributes attached to ctx
func FromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}

// Handler wraps an slog.Handler to inject the context attributes and the OpenTelemetry
// trace_id and span_id into every record logged with a context
type Handler struct {
	slog.Handler
}

// NewHandler wraps base
func NewHandler(base slog.Handler) *Handler {
	return &Handler{Handler: base}
}

// Handle adds the context attributes to r
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(FromContext(ctx)...)
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs keeps the wrapper around the derived handler
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup keeps the wrapper around the derived handler
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel maps a level name to a slog level. The bool is false for unknown names, in
// which case the info level is returned.
func ParseLevel(value string) (slog.Level, bool) {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
