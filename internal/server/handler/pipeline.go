package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// PipelineHandler lets an operator request an immediate calendar scan.
type PipelineHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one scan
}

// NewPipelineHandler creates a PipelineHandler with the given logger.
func NewPipelineHandler(logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{logger: logHandler(logger, "pipeline")}
}

// WithTriggerChannel sets the channel to send on when a trigger is requested.
// The scanner loop must receive from this channel to run one pass.
func (h *PipelineHandler) WithTriggerChannel(ch chan<- struct{}) *PipelineHandler {
	h.triggerCh = ch
	return h
}

// TriggerScan enqueues one scan. The send never blocks; a trigger that is
// still pending absorbs the new one.
// POST /api/pipeline/trigger
func (h *PipelineHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "scan trigger requested")
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not running in this mode")
		return
	}
	select {
	case h.triggerCh <- struct{}{}:
	default:
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "scan enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
