package domain

// EventType discriminates wire events.
type EventType string

const (
	// EventJoin is sent by a client to bind an identity; the server emits it
	// as a system event when someone joins.
	EventJoin EventType = "join"
	// EventMessage carries a public-room message in both directions.
	EventMessage EventType = "message"
	// EventPrivate carries a pairwise message in both directions.
	EventPrivate EventType = "private"
	// EventHistory is a full replacement of a room's recent messages.
	EventHistory EventType = "history"
	// EventUserList is a full replacement of the bound-identity list.
	EventUserList EventType = "user_list"
	// EventLeave is emitted by the server when a bound identity disconnects.
	EventLeave EventType = "leave"
)

// TimeFormat is the created_at wire format.
const TimeFormat = "2006-01-02 15:04:05"

// ClientEvent is the inbound envelope. Only join, message and private are
// recognized from clients; everything else is dropped by the router.
type ClientEvent struct {
	Type     EventType `json:"type"`
	Username string    `json:"username,omitempty"`
	To       string    `json:"to,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// HistoryEntry is one replayed message. Private entries carry the sender in
// Username as well, matching the history endpoint's column aliasing.
type HistoryEntry struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// HistoryEvent replaces the receiver's message list, oldest first.
type HistoryEvent struct {
	Type     EventType      `json:"type"`
	Messages []HistoryEntry `json:"messages"`
}

// UserListEvent replaces the receiver's presence list. Always a full
// snapshot, never a delta.
type UserListEvent struct {
	Type  EventType `json:"type"`
	Users []string  `json:"users"`
}

// PublicMessageEvent is a routed public message with the server timestamp.
type PublicMessageEvent struct {
	Type      EventType `json:"type"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt string    `json:"created_at"`
}

// PrivateMessageEvent is a routed pairwise message with the server timestamp.
type PrivateMessageEvent struct {
	Type      EventType `json:"type"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Message   string    `json:"message"`
	CreatedAt string    `json:"created_at"`
}

// SystemEvent announces a join or leave.
type SystemEvent struct {
	Type      EventType `json:"type"`
	Username  string    `json:"username"`
	CreatedAt string    `json:"created_at"`
}

// ServerEvent is the union a client decodes inbound frames into.
type ServerEvent struct {
	Type      EventType      `json:"type"`
	Username  string         `json:"username,omitempty"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Message   string         `json:"message,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	Users     []string       `json:"users,omitempty"`
	Messages  []HistoryEntry `json:"messages,omitempty"`
}
