// Package router classifies inbound events, validates them, persists what
// must outlive the connection, and fans deliveries out through the registry.
//
// Failure policy: validation and protocol failures drop the event silently
// (logged, no error surfaced to the sender); a persistence failure is logged
// and live delivery still proceeds, since losing real-time chat because an
// archival write failed is strictly worse than a missed history row.
package router

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wendychen0731/chat-app/internal/domain"
	"github.com/wendychen0731/chat-app/internal/history"
	"github.com/wendychen0731/chat-app/internal/logging"
	"github.com/wendychen0731/chat-app/internal/registry"
	cerrors "github.com/wendychen0731/chat-app/pkg/errors"
)

type Router struct {
	reg    *registry.Registry
	store  history.Store
	limit  int
	errs   cerrors.Handler
	logger *logging.Logger
}

func New(reg *registry.Registry, store history.Store, replayLimit int, logger *logging.Logger) *Router {
	if replayLimit <= 0 {
		replayLimit = history.DefaultReplayLimit
	}
	return &Router{
		reg:    reg,
		store:  store,
		limit:  replayLimit,
		errs:   cerrors.NewDefaultHandler(logger),
		logger: logger,
	}
}

// Dispatch routes one raw inbound frame from conn. Every event kind is an
// explicit branch; an unrecognized kind is deliberately dropped here rather
// than falling through anywhere else.
func (r *Router) Dispatch(ctx context.Context, conn domain.Conn, raw []byte) {
	var ev domain.ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		r.errs.Handle(ctx, cerrors.Wrap(err, cerrors.KindProtocol, "malformed_payload", "dropping unparseable frame"))
		return
	}

	switch ev.Type {
	case domain.EventJoin:
		r.handleJoin(ctx, conn, ev)
	case domain.EventMessage:
		r.handlePublic(ctx, conn, ev)
	case domain.EventPrivate:
		r.handlePrivate(ctx, conn, ev)
	case domain.EventHistory, domain.EventUserList, domain.EventLeave:
		// server-to-client kinds are not accepted inbound
		r.errs.Handle(ctx, cerrors.New(cerrors.KindProtocol, "server_only_kind", "dropping server-only event kind").WithDetails(string(ev.Type)))
	default:
		r.errs.Handle(ctx, cerrors.New(cerrors.KindProtocol, "unknown_kind", "dropping unrecognized event kind").WithDetails(string(ev.Type)))
	}
}

// Disconnect runs the leave path for a closed or failed transport. Safe to
// invoke more than once per connection; only the first call that finds a
// binding announces the leave.
func (r *Router) Disconnect(ctx context.Context, conn domain.Conn) {
	identity, bound := r.reg.Drop(conn.ID())
	if !bound {
		return
	}

	payload, err := json.Marshal(domain.SystemEvent{
		Type:      domain.EventLeave,
		Username:  identity,
		CreatedAt: time.Now().Format(domain.TimeFormat),
	})
	if err != nil {
		r.logger.Error("failed to marshal leave event", "error", err)
		return
	}
	r.reg.Broadcast(ctx, payload)
}

// handleJoin binds the identity, replays public history and the presence
// snapshot to the requester, then announces the join to everyone else.
func (r *Router) handleJoin(ctx context.Context, conn domain.Conn, ev domain.ClientEvent) {
	username := strings.TrimSpace(ev.Username)
	if err := r.reg.Bind(conn, username); err != nil {
		// the presence snapshot the joiner needs rides on Bind's push
		r.errs.Handle(ctx, err)
		return
	}

	r.sendHistory(ctx, conn, history.Public)

	payload, err := json.Marshal(domain.SystemEvent{
		Type:      domain.EventJoin,
		Username:  username,
		CreatedAt: time.Now().Format(domain.TimeFormat),
	})
	if err != nil {
		r.logger.Error("failed to marshal join event", "error", err)
		return
	}
	r.reg.Broadcast(ctx, payload, conn.ID())
}

// handlePublic persists and broadcasts a public message. The sender is
// included in the broadcast: the self-echo is the authoritative signal that
// the message landed.
func (r *Router) handlePublic(ctx context.Context, conn domain.Conn, ev domain.ClientEvent) {
	sender, bound := r.reg.IdentityOf(conn.ID())
	if !bound {
		r.errs.Handle(ctx, cerrors.ErrSenderUnbound)
		return
	}

	body := strings.TrimSpace(ev.Message)
	if body == "" {
		r.errs.Handle(ctx, cerrors.ErrEmptyBody)
		return
	}

	now := time.Now()
	r.persist(ctx, history.Public, history.Entry{
		ID:        uuid.New(),
		Sender:    sender,
		Body:      body,
		CreatedAt: now,
	})

	payload, err := json.Marshal(domain.PublicMessageEvent{
		Type:      domain.EventMessage,
		Username:  sender,
		Message:   body,
		CreatedAt: now.Format(domain.TimeFormat),
	})
	if err != nil {
		r.logger.Error("failed to marshal public message", "error", err)
		return
	}
	r.reg.Broadcast(ctx, payload)
}

// handlePrivate persists a pairwise message regardless of the recipient's
// presence, echoes it to the sender, and delivers it to the recipient only
// if they are online. An offline recipient is a normal outcome, not an error.
func (r *Router) handlePrivate(ctx context.Context, conn domain.Conn, ev domain.ClientEvent) {
	sender, bound := r.reg.IdentityOf(conn.ID())
	if !bound {
		r.errs.Handle(ctx, cerrors.ErrSenderUnbound)
		return
	}

	recipient := strings.TrimSpace(ev.To)
	if recipient == "" {
		r.errs.Handle(ctx, cerrors.ErrEmptyRecipient)
		return
	}
	body := strings.TrimSpace(ev.Message)
	if body == "" {
		r.errs.Handle(ctx, cerrors.ErrEmptyBody)
		return
	}

	now := time.Now()
	r.persist(ctx, history.Pair(sender, recipient), history.Entry{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
		CreatedAt: now,
	})

	payload, err := json.Marshal(domain.PrivateMessageEvent{
		Type:      domain.EventPrivate,
		From:      sender,
		To:        recipient,
		Message:   body,
		CreatedAt: now.Format(domain.TimeFormat),
	})
	if err != nil {
		r.logger.Error("failed to marshal private message", "error", err)
		return
	}

	if err := conn.Send(ctx, payload); err != nil {
		r.errs.Handle(ctx, cerrors.Wrap(err, cerrors.KindTransport, "echo_failed", "sender echo failed"))
		conn.Close()
	}
	if peer, online := r.reg.Resolve(recipient); online {
		if err := peer.Send(ctx, payload); err != nil {
			r.errs.Handle(ctx, cerrors.Wrap(err, cerrors.KindTransport, "delivery_failed", "recipient delivery failed"))
			peer.Close()
		}
	}
}

// sendHistory replays the recent tail of a scope to one connection.
func (r *Router) sendHistory(ctx context.Context, conn domain.Conn, scope history.Scope) {
	entries, err := r.store.Query(scope, r.limit)
	if err != nil {
		r.errs.Handle(ctx, cerrors.Wrap(err, cerrors.KindPersistence, "history_query", "history replay skipped"))
		entries = nil
	}

	messages := make([]domain.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, domain.HistoryEntry{
			Username:  entry.Sender,
			Message:   entry.Body,
			CreatedAt: entry.CreatedAt.Format(domain.TimeFormat),
		})
	}

	payload, err := json.Marshal(domain.HistoryEvent{
		Type:     domain.EventHistory,
		Messages: messages,
	})
	if err != nil {
		r.logger.Error("failed to marshal history event", "error", err)
		return
	}
	if err := conn.Send(ctx, payload); err != nil {
		r.errs.Handle(ctx, cerrors.Wrap(err, cerrors.KindTransport, "history_send", "history replay send failed"))
		conn.Close()
	}
}

// persist appends to the history store; a failure is logged and swallowed so
// the in-memory broadcast still proceeds.
func (r *Router) persist(ctx context.Context, scope history.Scope, entry history.Entry) {
	if err := r.store.Append(scope, entry); err != nil {
		r.errs.Handle(ctx, cerrors.Wrap(err, cerrors.KindPersistence, "history_append", "message not archived"))
	}
}
