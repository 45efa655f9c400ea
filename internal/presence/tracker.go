// Package presence pushes the bound-identity list to connected clients.
// Every binding mutation produces exactly one push, and each push carries the
// full snapshot rather than a delta, so a client that joined mid-update never
// sees a torn list.
package presence

import (
	"context"
	"encoding/json"

	"github.com/wendychen0731/chat-app/internal/domain"
	"github.com/wendychen0731/chat-app/internal/logging"
)

type Tracker struct {
	logger *logging.Logger
}

func NewTracker(logger *logging.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Changed ships the snapshot to every target. A failed send closes that
// connection and moves on; delivery to the rest is never aborted.
func (t *Tracker) Changed(users []string, targets []domain.Conn) {
	payload, err := json.Marshal(domain.UserListEvent{
		Type:  domain.EventUserList,
		Users: users,
	})
	if err != nil {
		t.logger.Error("failed to marshal user list", "error", err)
		return
	}

	for _, conn := range targets {
		if err := conn.Send(context.Background(), payload); err != nil {
			t.logger.Warn("presence push failed, forcing close",
				"conn_id", conn.ID(),
				"error", err,
			)
			conn.Close()
		}
	}

	t.logger.Debug("presence snapshot pushed", "users", len(users), "targets", len(targets))
}
