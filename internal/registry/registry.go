// Package registry owns live connections and the connection-to-identity
// binding relation. It is the single writer of presence state: every binding
// mutation recomputes the snapshot and hands it to the presence tracker
// before the lock is released to the next mutation.
package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/wendychen0731/chat-app/internal/domain"
	"github.com/wendychen0731/chat-app/internal/logging"
	"github.com/wendychen0731/chat-app/internal/presence"
	cerrors "github.com/wendychen0731/chat-app/pkg/errors"
)

// Registry tracks connections and bindings.
//
// Invariants: a connection binds to at most one identity; an identity binds
// to at most one live connection. Rebinding an identity evicts the previous
// connection's binding silently (last join wins); the evicted connection
// stays registered but its sends are no longer routed under that identity.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]domain.Conn // conn ID -> connection, bound or not
	byName  map[string]string      // identity -> conn ID
	byConn  map[string]string      // conn ID -> identity
	order   []string               // identities in bind order
	tracker *presence.Tracker
	logger  *logging.Logger
}

func New(tracker *presence.Tracker, logger *logging.Logger) *Registry {
	return &Registry{
		conns:   make(map[string]domain.Conn),
		byName:  make(map[string]string),
		byConn:  make(map[string]string),
		tracker: tracker,
		logger:  logger,
	}
}

// Register adds an unbound connection.
func (r *Registry) Register(conn domain.Conn) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("connection registered",
		"conn_id", conn.ID(),
		"total_conns", total,
	)
}

// Bind associates conn with identity. An empty identity (after trimming) is
// rejected. Exactly one presence snapshot is pushed per successful call.
func (r *Registry) Bind(conn domain.Conn, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return cerrors.ErrEmptyIdentity
	}

	r.mu.Lock()
	if _, ok := r.conns[conn.ID()]; !ok {
		// bind implies register; a late Register would be a no-op anyway
		r.conns[conn.ID()] = conn
	}

	// Evict whoever held this identity before. No notification is sent to
	// the evicted connection.
	if old, ok := r.byName[identity]; ok && old != conn.ID() {
		delete(r.byConn, old)
		r.removeFromOrder(identity)
		r.logger.Info("identity rebound, previous binding evicted",
			"identity", identity,
			"evicted_conn_id", old,
			"conn_id", conn.ID(),
		)
	}

	// A connection holds at most one identity; release the previous one.
	if prev, ok := r.byConn[conn.ID()]; ok && prev != identity {
		delete(r.byName, prev)
		r.removeFromOrder(prev)
	}

	r.byName[identity] = conn.ID()
	r.byConn[conn.ID()] = identity
	if !r.inOrder(identity) {
		r.order = append(r.order, identity)
	}

	// Pushed under the lock so each connection receives snapshots in
	// mutation order. Sends are buffered enqueues, no socket I/O here.
	snapshot, targets := r.snapshotLocked()
	r.tracker.Changed(snapshot, targets)
	r.mu.Unlock()

	r.logger.Info("identity bound", "identity", identity, "conn_id", conn.ID())
	return nil
}

// Unbind removes conn's binding if present. Unbinding an already-unbound
// connection is a no-op and pushes nothing.
func (r *Registry) Unbind(connID string) {
	r.mu.Lock()
	identity, bound := r.byConn[connID]
	if !bound {
		r.mu.Unlock()
		return
	}
	r.unbindLocked(connID, identity)
	snapshot, targets := r.snapshotLocked()
	r.tracker.Changed(snapshot, targets)
	r.mu.Unlock()

	r.logger.Info("identity unbound", "identity", identity, "conn_id", connID)
}

// Drop removes the connection entirely: its binding, then the connection
// itself. It reports the identity that was bound, if any, so the caller can
// announce the leave. Idempotent.
func (r *Registry) Drop(connID string) (identity string, bound bool) {
	r.mu.Lock()
	if _, known := r.conns[connID]; !known {
		r.mu.Unlock()
		return "", false
	}
	delete(r.conns, connID)

	identity, bound = r.byConn[connID]
	if !bound {
		r.mu.Unlock()
		return "", false
	}
	r.unbindLocked(connID, identity)
	snapshot, targets := r.snapshotLocked()
	r.tracker.Changed(snapshot, targets)
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("connection dropped",
		"identity", identity,
		"conn_id", connID,
		"total_conns", total,
	)
	return identity, true
}

// Resolve returns the live connection bound to identity.
func (r *Registry) Resolve(identity string) (domain.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	connID, ok := r.byName[identity]
	if !ok {
		return nil, false
	}
	conn, ok := r.conns[connID]
	return conn, ok
}

// IdentityOf returns the identity bound to connID.
func (r *Registry) IdentityOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byConn[connID]
	return identity, ok
}

// Snapshot returns the bound identities in bind order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Broadcast enqueues payload on every live connection, bound or not, except
// the excluded conn IDs. A failing connection is force-closed; its read pump
// then drives the normal leave path. Failures never abort delivery to the
// remaining connections.
func (r *Registry) Broadcast(ctx context.Context, payload []byte, exclude ...string) {
	r.mu.Lock()
	targets := make([]domain.Conn, 0, len(r.conns))
	for id, conn := range r.conns {
		if lo.Contains(exclude, id) {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.Unlock()

	for _, conn := range targets {
		if err := conn.Send(ctx, payload); err != nil {
			r.logger.Warn("broadcast send failed, forcing close",
				"conn_id", conn.ID(),
				"error", err,
			)
			conn.Close()
		}
	}
}

// unbindLocked removes the binding maps entry and the bind-order slot.
func (r *Registry) unbindLocked(connID, identity string) {
	delete(r.byConn, connID)
	delete(r.byName, identity)
	r.removeFromOrder(identity)
}

// snapshotLocked copies the bind-ordered identity list and the fan-out target
// set while the lock is held, so the pushed snapshot always matches the
// mutation that produced it.
func (r *Registry) snapshotLocked() ([]string, []domain.Conn) {
	snapshot := make([]string, len(r.order))
	copy(snapshot, r.order)
	targets := make([]domain.Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		targets = append(targets, conn)
	}
	return snapshot, targets
}

func (r *Registry) inOrder(identity string) bool {
	for _, name := range r.order {
		if name == identity {
			return true
		}
	}
	return false
}

func (r *Registry) removeFromOrder(identity string) {
	for i, name := range r.order {
		if name == identity {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
