package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wendychen0731/chat-app/internal/domain"
	"github.com/wendychen0731/chat-app/internal/logging"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (t *fakeTransport) Send(_ context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, append([]byte{}, payload...))
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) sentEvents(c *testing.T) []domain.ClientEvent {
	c.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	events := make([]domain.ClientEvent, 0, len(t.sent))
	for _, raw := range t.sent {
		var ev domain.ClientEvent
		require.NoError(c, json.Unmarshal(raw, &ev))
		events = append(events, ev)
	}
	return events
}

// fakeDialer hands each connect attempt a fresh transport and captures the
// callbacks so tests can inject server frames and close signals.
type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	err     error
	last    *fakeTransport
	onEvent func(raw []byte)
	onClose func(err error)
}

func (d *fakeDialer) dial(_ context.Context, onEvent func(raw []byte), onClose func(err error)) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	d.last = &fakeTransport{}
	d.onEvent = onEvent
	d.onClose = onClose
	return d.last, nil
}

func (d *fakeDialer) serverSends(t *testing.T, ev any) {
	t.Helper()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	d.mu.Lock()
	onEvent := d.onEvent
	d.mu.Unlock()
	onEvent(raw)
}

func (d *fakeDialer) serverCloses(err error) {
	d.mu.Lock()
	onClose := d.onClose
	d.mu.Unlock()
	onClose(err)
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls [][2]string
	rows  []domain.HistoryEntry
}

func (f *fakeFetcher) Fetch(_ context.Context, user, peer string) ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{user, peer})
	return f.rows, nil
}

type memoryProfile struct {
	identity string
}

func (p *memoryProfile) Load() (string, error)      { return p.identity, nil }
func (p *memoryProfile) Save(identity string) error { p.identity = identity; return nil }

type recordingView struct {
	mu       sync.Mutex
	messages []domain.ServerEvent
	appended []domain.ServerEvent
	users    []string
}

func (v *recordingView) SetMessages(messages []domain.ServerEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = messages
}

func (v *recordingView) AppendMessage(message domain.ServerEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.appended = append(v.appended, message)
}

func (v *recordingView) SetUsers(users []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.users = users
}

type harness struct {
	session *Session
	dialer  *fakeDialer
	fetcher *fakeFetcher
	view    *recordingView
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dialer := &fakeDialer{}
	fetcher := &fakeFetcher{}
	view := &recordingView{}
	return &harness{
		session: New(dialer.dial, fetcher, &memoryProfile{}, view, logging.Discard()),
		dialer:  dialer,
		fetcher: fetcher,
		view:    view,
	}
}

func (h *harness) open(t *testing.T, identity string) {
	t.Helper()
	require.NoError(t, h.session.Confirm(context.Background(), identity))
	require.Equal(t, StateOpen, h.session.State())
}

func TestConfirmOpensAndSendsSingleJoin(t *testing.T) {
	h := newHarness(t)
	h.open(t, "  amy  ")

	events := h.dialer.last.sentEvents(t)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventJoin, events[0].Type)
	require.Equal(t, "amy", events[0].Username, "identity is trimmed before use")
}

func TestConfirmRejectsBlankIdentity(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.session.Confirm(context.Background(), "   "), ErrEmptyIdentity)
	require.Equal(t, StateUnauthenticated, h.session.State())
	require.Zero(t, h.dialer.dials)
}

func TestConfirmPersistsIdentity(t *testing.T) {
	profile := &memoryProfile{identity: "old-name"}
	dialer := &fakeDialer{}
	s := New(dialer.dial, nil, profile, &recordingView{}, logging.Discard())

	require.Equal(t, "old-name", s.SavedIdentity())
	require.NoError(t, s.Confirm(context.Background(), "amy"))
	require.Equal(t, "amy", profile.identity)
}

func TestSendRejectedOutsideOpen(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.session.SendPublic(context.Background(), "hi"), ErrNotOpen)

	h.open(t, "amy")
	h.dialer.serverCloses(errors.New("connection reset"))
	require.Equal(t, StateClosed, h.session.State())
	require.ErrorIs(t, h.session.SendPrivate(context.Background(), "bo", "hi"), ErrNotOpen)
}

func TestHistoryAndUserListReplaceViewState(t *testing.T) {
	h := newHarness(t)
	h.open(t, "amy")

	h.dialer.serverSends(t, domain.HistoryEvent{
		Type: domain.EventHistory,
		Messages: []domain.HistoryEntry{
			{Username: "bo", Message: "first", CreatedAt: "2026-09-01 10:00:00"},
			{Username: "amy", Message: "second", CreatedAt: "2026-09-01 10:00:01"},
		},
	})
	h.dialer.serverSends(t, domain.UserListEvent{Type: domain.EventUserList, Users: []string{"bo", "amy"}})

	require.Len(t, h.view.messages, 2)
	require.Equal(t, "first", h.view.messages[0].Message)
	require.Equal(t, []string{"bo", "amy"}, h.view.users)
}

func TestPublicMessageRoutingByActiveRoom(t *testing.T) {
	h := newHarness(t)
	h.open(t, "amy")

	h.dialer.serverSends(t, domain.PublicMessageEvent{Type: domain.EventMessage, Username: "bo", Message: "seen"})
	require.Len(t, h.view.appended, 1)

	h.session.SwitchRoom(context.Background(), "bo")
	h.dialer.serverSends(t, domain.PublicMessageEvent{Type: domain.EventMessage, Username: "bo", Message: "missed"})

	require.Len(t, h.view.appended, 1, "message for an inactive room is not appended")
	require.Equal(t, 1, h.session.Unread()[PublicRoom])
}

func TestPrivateMessageRoutingAndUnread(t *testing.T) {
	h := newHarness(t)
	h.open(t, "amy")

	// inactive peer room: counted, not shown
	h.dialer.serverSends(t, domain.PrivateMessageEvent{Type: domain.EventPrivate, From: "bo", To: "amy", Message: "psst"})
	require.Empty(t, h.view.appended)
	require.Equal(t, 1, h.session.Unread()["bo"])

	// switching in clears the counter
	h.session.SwitchRoom(context.Background(), "bo")
	require.Zero(t, h.session.Unread()["bo"])

	// active peer room: shown, echoes keyed by the other participant
	h.dialer.serverSends(t, domain.PrivateMessageEvent{Type: domain.EventPrivate, From: "amy", To: "bo", Message: "echo"})
	require.Len(t, h.view.appended, 1)
	require.Zero(t, h.session.Unread()["bo"])
}

func TestSwitchRoomFetchesScopedHistory(t *testing.T) {
	h := newHarness(t)
	h.fetcher.rows = []domain.HistoryEntry{{Username: "bo", Message: "archived"}}
	h.open(t, "amy")

	h.session.SwitchRoom(context.Background(), "bo")
	require.Equal(t, [2]string{"amy", "bo"}, h.fetcher.calls[len(h.fetcher.calls)-1])
	require.Len(t, h.view.messages, 1)
	require.Equal(t, "archived", h.view.messages[0].Message)

	h.session.SwitchRoom(context.Background(), PublicRoom)
	require.Equal(t, [2]string{"", ""}, h.fetcher.calls[len(h.fetcher.calls)-1])
}

func TestVisibilityEdgeReconnects(t *testing.T) {
	h := newHarness(t)
	h.open(t, "amy")
	require.Equal(t, 1, h.dialer.dials)

	h.dialer.serverCloses(errors.New("gone"))
	require.Equal(t, StateClosed, h.session.State())

	// still visible: no edge, no reconnect
	h.session.VisibilitySignal(context.Background(), true)
	require.Equal(t, 1, h.dialer.dials)

	h.session.VisibilitySignal(context.Background(), false)
	require.Equal(t, 1, h.dialer.dials, "going hidden never reconnects")

	h.session.VisibilitySignal(context.Background(), true)
	require.Equal(t, 2, h.dialer.dials)
	require.Equal(t, StateOpen, h.session.State())

	// the fresh transport re-joined
	events := h.dialer.last.sentEvents(t)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventJoin, events[0].Type)
}

func TestVisibilityEdgeWhileOpenIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.open(t, "amy")

	h.session.VisibilitySignal(context.Background(), false)
	h.session.VisibilitySignal(context.Background(), true)

	require.Equal(t, 1, h.dialer.dials)
	require.Equal(t, StateOpen, h.session.State())
}

func TestStaleTransportCallbacksIgnored(t *testing.T) {
	h := newHarness(t)
	h.open(t, "amy")
	staleEvent := h.dialer.onEvent
	staleClose := h.dialer.onClose

	h.dialer.serverCloses(errors.New("gone"))
	h.session.VisibilitySignal(context.Background(), false)
	h.session.VisibilitySignal(context.Background(), true)
	require.Equal(t, StateOpen, h.session.State())

	// a frame from the replaced transport is dropped
	raw, err := json.Marshal(domain.PublicMessageEvent{Type: domain.EventMessage, Username: "bo", Message: "late"})
	require.NoError(t, err)
	staleEvent(raw)
	require.Empty(t, h.view.appended)

	// a late close from the replaced transport does not tear down the new one
	staleClose(errors.New("late"))
	require.Equal(t, StateOpen, h.session.State())
}

func TestConnectAbortsWhenTransportDiesDuringDial(t *testing.T) {
	view := &recordingView{}
	dead := &fakeTransport{}
	dials := 0
	dial := func(_ context.Context, _ func([]byte), onClose func(error)) (Transport, error) {
		dials++
		if dials == 1 {
			// peer resets before dial even returns
			onClose(errors.New("connection reset"))
			return dead, nil
		}
		return &fakeTransport{}, nil
	}
	s := New(dial, nil, &memoryProfile{}, view, logging.Discard())

	require.Error(t, s.Confirm(context.Background(), "amy"))
	require.Equal(t, StateClosed, s.State(), "session must not be Open on a transport whose close already fired")
	require.True(t, dead.closed)
	require.Empty(t, dead.sent, "no join is sent on a dead transport")

	// the session is not wedged: the visibility edge still resumes
	s.VisibilitySignal(context.Background(), false)
	s.VisibilitySignal(context.Background(), true)
	require.Equal(t, StateOpen, s.State())
	require.Equal(t, 2, dials)
}

func TestDuplicateCloseSignalsAreIdempotent(t *testing.T) {
	h := newHarness(t)
	h.open(t, "amy")

	h.dialer.serverCloses(errors.New("first"))
	h.dialer.serverCloses(errors.New("second"))
	require.Equal(t, StateClosed, h.session.State())
}

func TestCloseIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.open(t, "amy")

	require.NoError(t, h.session.Close())
	require.True(t, h.dialer.last.closed)
	require.Equal(t, StateClosed, h.session.State())
	require.NoError(t, h.session.Close())

	h.session.VisibilitySignal(context.Background(), false)
	h.session.VisibilitySignal(context.Background(), true)
	require.Equal(t, 1, h.dialer.dials, "a torn-down session never reconnects")
	require.ErrorIs(t, h.session.SendPublic(context.Background(), "hi"), ErrNotOpen)
}
