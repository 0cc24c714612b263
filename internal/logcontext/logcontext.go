package logcontext

import (
	"context"
	"log/slog"
)

type ctxKey string

const slogFields ctxKey = "slog_fields"

// AppendCtx returns a context carrying the given attrs in addition to any
// attrs already present, so handlers can attach them to every record logged
// within that scope.
func AppendCtx(parent context.Context, attrs ...slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if existing, ok := parent.Value(slogFields).([]slog.Attr); ok {
		combined := make([]slog.Attr, 0, len(existing)+len(attrs))
		combined = append(combined, existing...)
		combined = append(combined, attrs...)
		return context.WithValue(parent, slogFields, combined)
	}

	return context.WithValue(parent, slogFields, attrs)
}

// Attrs extracts the attrs previously appended to ctx, if any.
func Attrs(ctx context.Context) []slog.Attr {
	if attrs, ok := ctx.Value(slogFields).([]slog.Attr); ok {
		return attrs
	}
	return nil
}
