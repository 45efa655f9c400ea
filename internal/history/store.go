// Package history persists chat transcripts and replays the recent tail of a
// scope. A scope is either the shared public room or an unordered pair of
// identities.
package history

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// DefaultReplayLimit caps how many entries a query returns.
const DefaultReplayLimit = 50

// Scope is a history partition key. Build values with Public or Pair; the
// string form is stable and safe to embed in storage keys.
type Scope string

// Public is the shared room's scope.
const Public Scope = "public"

// Pair returns the scope for the unordered pair (a, b). Both orderings map to
// the same scope. Identity characters are escaped so they cannot collide with
// the key separators.
func Pair(a, b string) Scope {
	if b < a {
		a, b = b, a
	}
	return Scope("dm:" + url.QueryEscape(a) + ":" + url.QueryEscape(b))
}

// Entry is one persisted message. Recipient is empty for public entries.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the history provider. Append persists one entry under a scope;
// Query returns at most limit entries, oldest first. Implementations must
// return the newest entries when the scope holds more than limit.
type Store interface {
	Append(scope Scope, entry Entry) error
	Query(scope Scope, limit int) ([]Entry, error)
}
