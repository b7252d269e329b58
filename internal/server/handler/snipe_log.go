package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// StreamReader reads a durable stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// SnipeLogHandler pages through the durable record of snipe attempts.
type SnipeLogHandler struct {
	streams StreamReader
	logger  *slog.Logger
}

// NewSnipeLogHandler creates a SnipeLogHandler.
func NewSnipeLogHandler(streams StreamReader, logger *slog.Logger) *SnipeLogHandler {
	return &SnipeLogHandler{streams: streams, logger: logHandler(logger, "snipe_log")}
}

type snipeLogEntry struct {
	ID     string          `json:"id"`
	Record json.RawMessage `json:"record"`
}

type snipeLogResponse struct {
	Entries []snipeLogEntry `json:"entries"`
	// Next is the cursor to pass as ?after= for the following page.
	Next string `json:"next"`
}

// ListSnipes returns snipe records after the given stream ID.
// GET /api/snipes?after=0&count=50
func (h *SnipeLogHandler) ListSnipes(w http.ResponseWriter, r *http.Request) {
	if h.streams == nil {
		writeError(w, http.StatusServiceUnavailable, "snipe log requires redis")
		return
	}
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := 50
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "count must be between 1 and 500")
			return
		}
		count = n
	}

	msgs, err := h.streams.StreamRead(r.Context(), domain.StreamSnipes, after, count)
	if err != nil {
		writeServiceError(w, r, h.logger, "list snipes", err)
		return
	}
	resp := snipeLogResponse{Entries: make([]snipeLogEntry, 0, len(msgs)), Next: after}
	for _, m := range msgs {
		rec := json.RawMessage(m.Payload)
		if !json.Valid(rec) {
			rec, _ = json.Marshal(string(m.Payload))
		}
		resp.Entries = append(resp.Entries, snipeLogEntry{ID: m.ID, Record: rec})
		resp.Next = m.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
