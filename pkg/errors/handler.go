package errors

import (
	"context"
	"log/slog"

	"github.com/wendychen0731/chat-app/internal/logging"
)

// Handler handles errors in a consistent way.
type Handler interface {
	// Handle processes an error
	Handle(ctx context.Context, err error)

	// HandleWithLogger processes an error with a specific logger
	HandleWithLogger(ctx context.Context, err error, logger *slog.Logger)
}

// DefaultHandler logs errors at a severity derived from their kind. Dropped
// events are routine, so validation and protocol errors stay below warn.
type DefaultHandler struct {
	logger *logging.Logger
}

// NewDefaultHandler creates a new default error handler.
func NewDefaultHandler(logger *logging.Logger) *DefaultHandler {
	return &DefaultHandler{
		logger: logger,
	}
}

// Handle implements the Handler interface. When ctx carries a logger, for
// example the per-connection one, the error is logged through it.
func (h *DefaultHandler) Handle(ctx context.Context, err error) {
	h.HandleWithLogger(ctx, err, logging.FromContext(ctx, h.logger).Logger)
}

// HandleWithLogger implements the Handler interface.
func (h *DefaultHandler) HandleWithLogger(ctx context.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	e, ok := err.(*Error)
	if !ok {
		logger.ErrorContext(ctx, "unhandled error", slog.String("error", err.Error()))
		return
	}

	attrs := []any{
		slog.String("error_code", e.Code),
		slog.String("error_kind", kindToString(e.Kind)),
		slog.Time("timestamp", e.Timestamp),
	}

	if e.Details != "" {
		attrs = append(attrs, slog.String("details", e.Details))
	}

	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}

	switch e.Kind {
	case KindPersistence, KindTransport:
		logger.ErrorContext(ctx, e.Message, attrs...)
	case KindProtocol:
		logger.WarnContext(ctx, e.Message, attrs...)
	default:
		logger.InfoContext(ctx, e.Message, attrs...)
	}
}

// kindToString converts Kind to string.
func kindToString(k Kind) string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProtocol:
		return "protocol"
	case KindPersistence:
		return "persistence"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}
