package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// EventReader loads stored calendar events.
type EventReader interface {
	Get(ctx context.Context, owner, eventID string) (*domain.CalendarEvent, error)
}

// Sniper executes snipes.
type Sniper interface {
	ShouldExecuteSnipe(confidence float64) bool
	ExecuteSnipe(ctx context.Context, owner string, event *domain.CalendarEvent, params domain.SnipeParams) (string, error)
}

// SnipeHandler lets an operator fire a snipe on a stored event.
type SnipeHandler struct {
	events EventReader
	sniper Sniper
	logger *slog.Logger
}

// NewSnipeHandler creates a SnipeHandler.
func NewSnipeHandler(events EventReader, sniper Sniper, logger *slog.Logger) *SnipeHandler {
	return &SnipeHandler{
		events: events,
		sniper: sniper,
		logger: logHandler(logger, "snipe"),
	}
}

type snipeRequest struct {
	UserID   string  `json:"user_id"`
	EventID  string  `json:"event_id"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	// Force skips the confidence threshold.
	Force bool `json:"force"`
}

type snipeResponse struct {
	OrderID string                `json:"order_id"`
	Event   *domain.CalendarEvent `json:"event"`
}

// ExecuteSnipe places a market order for a detected event.
// POST /api/snipe
func (h *SnipeHandler) ExecuteSnipe(w http.ResponseWriter, r *http.Request) {
	var req snipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "execute snipe", err)
		return
	}
	if req.EventID == "" {
		writeError(w, http.StatusBadRequest, "event_id is required")
		return
	}
	side := domain.OrderSideBuy
	if req.Side != "" {
		s, err := domain.ParseOrderSide(req.Side)
		if err != nil {
			writeServiceError(w, r, h.logger, "execute snipe", err)
			return
		}
		side = s
	}

	event, err := h.events.Get(r.Context(), req.UserID, req.EventID)
	if err != nil {
		writeServiceError(w, r, h.logger, "execute snipe", err)
		return
	}
	if !req.Force && !h.sniper.ShouldExecuteSnipe(event.Confidence) {
		writeError(w, http.StatusConflict, "event confidence below snipe threshold")
		return
	}

	orderID, err := h.sniper.ExecuteSnipe(r.Context(), req.UserID, event, domain.SnipeParams{
		Side:     side,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "execute snipe", err)
		return
	}
	h.logger.InfoContext(r.Context(), "manual snipe executed",
		slog.String("event_id", event.EventID),
		slog.String("order_id", orderID),
	)
	writeJSON(w, http.StatusCreated, snipeResponse{OrderID: orderID, Event: event})
}
