package logging

import (
	"context"
)

type contextKey struct{}

// WithLogger attaches a logger to ctx. The websocket handler uses this to
// carry the per-connection logger into the router.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger attached to ctx, or fallback when none is.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return fallback
}
