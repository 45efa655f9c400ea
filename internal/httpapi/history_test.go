package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wendychen0731/chat-app/internal/domain"
	"github.com/wendychen0731/chat-app/internal/history"
	"github.com/wendychen0731/chat-app/internal/logging"
)

func seededHandler(t *testing.T) *HistoryHandler {
	t.Helper()
	store := history.NewMemoryStore()
	now := time.Now()
	require.NoError(t, store.Append(history.Public, history.Entry{
		ID: uuid.New(), Sender: "amy", Body: "hello room", CreatedAt: now,
	}))
	require.NoError(t, store.Append(history.Pair("amy", "bo"), history.Entry{
		ID: uuid.New(), Sender: "bo", Recipient: "amy", Body: "hey you", CreatedAt: now,
	}))
	return NewHistoryHandler(store, 50, logging.Discard())
}

func doRequest(h *HistoryHandler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeRows(t *testing.T, rec *httptest.ResponseRecorder) []domain.HistoryEntry {
	t.Helper()
	var rows []domain.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	return rows
}

func TestHistoryDefaultsToPublicScope(t *testing.T) {
	h := seededHandler(t)

	rec := doRequest(h, http.MethodGet, "/history")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rows := decodeRows(t, rec)
	require.Len(t, rows, 1)
	require.Equal(t, "hello room", rows[0].Message)
	require.Equal(t, "amy", rows[0].Username)
}

func TestHistoryPairScopeEitherDirection(t *testing.T) {
	h := seededHandler(t)

	for _, target := range []string{
		"/history?user=amy&peer=bo",
		"/history?user=bo&peer=amy",
	} {
		rec := doRequest(h, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code)
		rows := decodeRows(t, rec)
		require.Len(t, rows, 1, target)
		require.Equal(t, "hey you", rows[0].Message)
	}
}

func TestHistoryHalfSpecifiedPairFallsBackToPublic(t *testing.T) {
	h := seededHandler(t)

	rec := doRequest(h, http.MethodGet, "/history?user=amy")
	rows := decodeRows(t, rec)
	require.Len(t, rows, 1)
	require.Equal(t, "hello room", rows[0].Message)
}

func TestHistoryEmptyScopeReturnsEmptyArray(t *testing.T) {
	h := NewHistoryHandler(history.NewMemoryStore(), 50, logging.Discard())

	rec := doRequest(h, http.MethodGet, "/history")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestHistoryPreflight(t *testing.T) {
	h := seededHandler(t)

	rec := doRequest(h, http.MethodOptions, "/history")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestHistoryRejectsOtherMethods(t *testing.T) {
	h := seededHandler(t)

	rec := doRequest(h, http.MethodPost, "/history")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
