package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext retrieves the logger from context, or the default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, zerolog.Logger) {
	traceID := GenerateTraceID()
	l := FromContext(ctx).With().Str("trace_id", traceID).Logger()
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return l.WithContext(ctx), l
}

// TraceID returns the trace ID stored by WithTraceContext
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// PositionContext adds the fields identifying a position
func PositionContext(l zerolog.Logger, symbol, side string, entryPrice, quantity float64) zerolog.Logger {
	return l.With().
		Str("symbol", symbol).
		Str("side", side).
		Float64("entry_price", entryPrice).
		Float64("quantity", quantity).
		Logger()
}

// APIContext adds the fields of a served request
func APIContext(l zerolog.Logger, method, path string, statusCode int) zerolog.Logger {
	return l.With().
		Str("method", method).
		Str("path", path).
		Int("status_code", statusCode).
		Logger()
}
