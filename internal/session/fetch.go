package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wendychen0731/chat-app/internal/domain"
)

// HTTPHistory fetches history over the transcript read endpoint.
type HTTPHistory struct {
	client *resty.Client
	url    string
}

func NewHTTPHistory(url string) *HTTPHistory {
	return &HTTPHistory{
		client: resty.New().SetTimeout(10 * time.Second),
		url:    url,
	}
}

// Fetch returns the recent entries of a scope, oldest first. Both user and
// peer non-empty selects the pairwise scope; otherwise the public one.
func (h *HTTPHistory) Fetch(ctx context.Context, user, peer string) ([]domain.HistoryEntry, error) {
	req := h.client.R().SetContext(ctx)
	if user != "" && peer != "" {
		req.SetQueryParams(map[string]string{"user": user, "peer": peer})
	}

	resp, err := req.Get(h.url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("history endpoint returned %s", resp.Status())
	}

	var rows []domain.HistoryEntry
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
