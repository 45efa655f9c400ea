package errors

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wendychen0731/chat-app/internal/logging"
)

func bufferLogger(buf *bytes.Buffer) *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(buf, nil))}
}

func TestHandlePrefersContextLogger(t *testing.T) {
	var fallback, scoped bytes.Buffer
	h := NewDefaultHandler(bufferLogger(&fallback))

	connLogger := &logging.Logger{Logger: bufferLogger(&scoped).With("conn_id", "c1")}
	ctx := logging.WithLogger(context.Background(), connLogger)

	h.Handle(ctx, ErrEmptyBody)
	require.Contains(t, scoped.String(), "conn_id=c1")
	require.Contains(t, scoped.String(), "empty_body")
	require.Empty(t, fallback.String())
}

func TestHandleFallsBackWithoutContextLogger(t *testing.T) {
	var fallback bytes.Buffer
	h := NewDefaultHandler(bufferLogger(&fallback))

	h.Handle(context.Background(), ErrEmptyBody)
	require.Contains(t, fallback.String(), "empty_body")
	require.Contains(t, fallback.String(), "error_kind=validation")
}

func TestHandleSeverityByKind(t *testing.T) {
	var buf bytes.Buffer
	h := NewDefaultHandler(bufferLogger(&buf))
	ctx := context.Background()

	h.Handle(ctx, New(KindTransport, "send_failed", "delivery failed"))
	require.Contains(t, buf.String(), "level=ERROR")

	buf.Reset()
	h.Handle(ctx, New(KindProtocol, "unknown_kind", "dropping frame"))
	require.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	h.Handle(ctx, ErrEmptyBody)
	require.Contains(t, buf.String(), "level=INFO")
}
