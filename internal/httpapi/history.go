// Package httpapi exposes the transcript read endpoint used by clients to
// fetch a room's recent history outside the websocket session.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/wendychen0731/chat-app/internal/domain"
	"github.com/wendychen0731/chat-app/internal/history"
	"github.com/wendychen0731/chat-app/internal/logging"
)

// HistoryHandler serves GET with optional user+peer query parameters. Both
// present selects the pairwise scope; anything else selects the public
// scope. Responses are oldest first, capped at the replay limit. Cross-origin
// access is unrestricted; OPTIONS preflight short-circuits with no body.
type HistoryHandler struct {
	store  history.Store
	limit  int
	logger *logging.Logger
}

func NewHistoryHandler(store history.Store, replayLimit int, logger *logging.Logger) *HistoryHandler {
	if replayLimit <= 0 {
		replayLimit = history.DefaultReplayLimit
	}
	return &HistoryHandler{
		store:  store,
		limit:  replayLimit,
		logger: logger,
	}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		return
	case http.MethodGet:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	user := r.URL.Query().Get("user")
	peer := r.URL.Query().Get("peer")

	scope := history.Public
	if user != "" && peer != "" {
		scope = history.Pair(user, peer)
	}

	entries, err := h.store.Query(scope, h.limit)
	if err != nil {
		h.logger.Error("history query failed", "scope", string(scope), "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	rows := make([]domain.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, domain.HistoryEntry{
			Username:  entry.Sender,
			Message:   entry.Body,
			CreatedAt: entry.CreatedAt.Format(domain.TimeFormat),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		h.logger.Error("failed to encode history response", "error", err)
	}
}
