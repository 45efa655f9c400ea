// Package session is the client side of the chat protocol: local identity,
// the active room, per-room unread counters, and the transport lifecycle
// with its visibility-driven reconnect.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/wendychen0731/chat-app/internal/domain"
	"github.com/wendychen0731/chat-app/internal/logging"
)

// State is the session lifecycle position.
type State int

const (
	// StateUnauthenticated means no identity has been confirmed yet.
	StateUnauthenticated State = iota
	// StateConnecting means the transport handshake is outstanding.
	StateConnecting
	// StateOpen means the transport is live and a join has been sent.
	StateOpen
	// StateClosed means the transport is gone. Only a hidden-to-visible
	// transition leaves this state, unless the session was torn down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PublicRoom is the room key of the shared room.
const PublicRoom = ""

// ErrNotOpen is returned when a send is attempted outside StateOpen.
// Messages are rejected, never queued.
var ErrNotOpen = errors.New("session is not open")

// ErrEmptyIdentity is returned by Confirm for a blank identity.
var ErrEmptyIdentity = errors.New("identity is empty after trimming")

// View receives state replacements and appends. Methods are invoked from the
// session's transport goroutine and must not call back into the Session.
type View interface {
	// SetMessages replaces the full message list, oldest first.
	SetMessages(messages []domain.ServerEvent)
	// AppendMessage appends one message to the active room's view.
	AppendMessage(message domain.ServerEvent)
	// SetUsers replaces the full presence list, bind order.
	SetUsers(users []string)
}

// Transport is one live connection to the server.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// DialFunc opens a fresh transport. Inbound frames arrive through onEvent;
// onClose fires when the transport dies and may fire more than once; the
// session dedupes by generation.
type DialFunc func(ctx context.Context, onEvent func(raw []byte), onClose func(err error)) (Transport, error)

// HistoryFetcher pulls a room's recent history over the read endpoint. Empty
// peer selects the public scope.
type HistoryFetcher interface {
	Fetch(ctx context.Context, user, peer string) ([]domain.HistoryEntry, error)
}

// ProfileStore persists the chosen identity across sessions.
type ProfileStore interface {
	Load() (string, error)
	Save(identity string) error
}

type Session struct {
	mu        sync.Mutex
	state     State
	identity  string
	saved     string
	room      string
	unread    map[string]int
	visible   bool
	teardown  bool
	gen       int
	transport Transport

	dial    DialFunc
	fetcher HistoryFetcher
	profile ProfileStore
	view    View
	logger  *logging.Logger
}

func New(dial DialFunc, fetcher HistoryFetcher, profile ProfileStore, view View, logger *logging.Logger) *Session {
	s := &Session{
		state:   StateUnauthenticated,
		room:    PublicRoom,
		unread:  map[string]int{PublicRoom: 0},
		visible: true,
		dial:    dial,
		fetcher: fetcher,
		profile: profile,
		view:    view,
		logger:  logger,
	}

	if profile != nil {
		if name, err := profile.Load(); err == nil {
			s.saved = strings.TrimSpace(name)
		} else {
			logger.Warn("failed to load saved identity", "error", err)
		}
	}

	return s
}

// SavedIdentity returns the identity remembered from a previous session, if
// any, for the confirmation step to prefill.
func (s *Session) SavedIdentity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Confirm validates and adopts an identity, persists it, and starts the
// first connection.
func (s *Session) Confirm(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ErrEmptyIdentity
	}

	s.mu.Lock()
	if s.state != StateUnauthenticated {
		s.mu.Unlock()
		return errors.New("identity already confirmed")
	}
	s.identity = identity
	s.saved = identity
	s.mu.Unlock()

	if s.profile != nil {
		if err := s.profile.Save(identity); err != nil {
			s.logger.Warn("failed to persist identity", "error", err)
		}
	}

	return s.connect(ctx)
}

// connect dials a fresh transport and, on success, enters Open and sends
// exactly one join. The generation counter ties inbound and close callbacks
// to the transport instance that produced them.
func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.mu.Unlock()

	transport, err := s.dial(ctx,
		func(raw []byte) { s.handleInbound(gen, raw) },
		func(err error) { s.transportClosed(gen, err) },
	)

	s.mu.Lock()
	if err != nil {
		s.state = StateClosed
		s.mu.Unlock()
		s.logger.Error("dial failed", "error", err)
		return err
	}
	// The close callback may have fired before we re-acquired the lock, or
	// Close may have superseded this attempt. Either way the transport must
	// not be promoted to Open.
	if s.teardown || gen != s.gen || s.state != StateConnecting {
		s.mu.Unlock()
		transport.Close()
		return errors.New("transport closed during connect")
	}
	s.transport = transport
	s.state = StateOpen
	identity := s.identity
	s.mu.Unlock()

	s.logger.Info("session open", "identity", identity)

	payload, err := json.Marshal(domain.ClientEvent{Type: domain.EventJoin, Username: identity})
	if err != nil {
		return err
	}
	return transport.Send(ctx, payload)
}

// SendPublic sends a public-room message. Rejected outside StateOpen.
func (s *Session) SendPublic(ctx context.Context, text string) error {
	return s.send(ctx, domain.ClientEvent{Type: domain.EventMessage, Message: text})
}

// SendPrivate sends a pairwise message to peer. Rejected outside StateOpen.
func (s *Session) SendPrivate(ctx context.Context, peer, text string) error {
	return s.send(ctx, domain.ClientEvent{Type: domain.EventPrivate, To: peer, Message: text})
}

func (s *Session) send(ctx context.Context, ev domain.ClientEvent) error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return ErrNotOpen
	}
	transport := s.transport
	s.mu.Unlock()

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return transport.Send(ctx, payload)
}

// SwitchRoom makes room the active view, clears its unread counter, and
// re-fetches its history scope.
func (s *Session) SwitchRoom(ctx context.Context, room string) {
	s.mu.Lock()
	s.room = room
	s.unread[room] = 0
	s.mu.Unlock()

	s.refreshHistory(ctx, room)
}

// VisibilitySignal reports a visibility change. The hidden-to-visible edge
// while Closed is the only reconnect trigger: it re-fetches the current
// room's history and re-establishes a fresh transport. Repeated visible
// signals while already Open are no-ops.
func (s *Session) VisibilitySignal(ctx context.Context, visible bool) {
	s.mu.Lock()
	if visible == s.visible {
		s.mu.Unlock()
		return
	}
	s.visible = visible
	resume := visible && s.state == StateClosed && !s.teardown
	room := s.room
	s.mu.Unlock()

	if !resume {
		return
	}

	s.logger.Info("visible again, resuming session")
	s.refreshHistory(ctx, room)
	if err := s.connect(ctx); err != nil {
		s.logger.Error("resume failed", "error", err)
	}
}

// Close tears the session down for good. Further visibility signals do not
// reconnect.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.teardown {
		s.mu.Unlock()
		return nil
	}
	s.teardown = true
	s.state = StateClosed
	s.gen++ // orphan any in-flight callbacks
	transport := s.transport
	s.transport = nil
	s.mu.Unlock()

	if transport != nil {
		return transport.Close()
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the active room key.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Unread returns a copy of the per-room unread counters.
func (s *Session) Unread() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.unread))
	for room, n := range s.unread {
		out[room] = n
	}
	return out
}

// handleInbound dispatches one server event: replace the message list,
// replace the presence list, append to the active room, or bump a non-active
// room's unread counter.
func (s *Session) handleInbound(gen int, raw []byte) {
	var ev domain.ServerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.logger.Warn("dropping unparseable server frame", "error", err)
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.state != StateOpen {
		s.mu.Unlock()
		return // stale transport
	}

	var apply func()
	switch ev.Type {
	case domain.EventHistory:
		messages := historyToEvents(ev.Messages)
		apply = func() { s.view.SetMessages(messages) }
	case domain.EventUserList:
		users := ev.Users
		apply = func() { s.view.SetUsers(users) }
	case domain.EventJoin, domain.EventLeave:
		apply = func() { s.view.AppendMessage(ev) }
	case domain.EventMessage:
		if s.room == PublicRoom {
			apply = func() { s.view.AppendMessage(ev) }
		} else {
			s.unread[PublicRoom]++
		}
	case domain.EventPrivate:
		peer := ev.From
		if ev.From == s.identity {
			peer = ev.To
		}
		if peer == s.room {
			apply = func() { s.view.AppendMessage(ev) }
		} else {
			s.unread[peer]++
		}
	default:
		// unknown server kinds are ignored
	}
	s.mu.Unlock()

	if apply != nil {
		apply()
	}
}

// transportClosed records the loss of a transport. Duplicate signals for the
// same instance, and signals from an orphaned instance, are no-ops.
func (s *Session) transportClosed(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || (s.state != StateOpen && s.state != StateConnecting) {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.transport = nil
	s.mu.Unlock()

	s.logger.Info("transport closed", "error", err)
}

func (s *Session) refreshHistory(ctx context.Context, room string) {
	if s.fetcher == nil {
		return
	}

	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()

	user, peer := "", ""
	if room != PublicRoom {
		user, peer = identity, room
	}

	rows, err := s.fetcher.Fetch(ctx, user, peer)
	if err != nil {
		s.logger.Warn("history fetch failed", "room", room, "error", err)
		return
	}
	s.view.SetMessages(historyToEvents(rows))
}

func historyToEvents(rows []domain.HistoryEntry) []domain.ServerEvent {
	events := make([]domain.ServerEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.ServerEvent{
			Type:      domain.EventMessage,
			Username:  row.Username,
			Message:   row.Message,
			CreatedAt: row.CreatedAt,
		})
	}
	return events
}
