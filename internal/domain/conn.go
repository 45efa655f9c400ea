package domain

import "context"

// Conn is one live transport endpoint. Send enqueues a frame for delivery and
// never blocks on peer I/O; Close is idempotent.
type Conn interface {
	ID() string

	Send(ctx context.Context, message []byte) error

	Close() error
}
