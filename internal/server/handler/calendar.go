package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/service"
)

// CalendarService defines the methods that the calendar handler requires.
type CalendarService interface {
	Detect(ctx context.Context, owner string, req service.DetectRequest) (*domain.CalendarEvent, bool, error)
	List(ctx context.Context, owner string, start, end time.Time) ([]*domain.CalendarEvent, error)
}

// CalendarHandler serves listing-calendar endpoints.
type CalendarHandler struct {
	calendar CalendarService
	logger   *slog.Logger
	now      func() time.Time
}

// NewCalendarHandler creates a CalendarHandler.
func NewCalendarHandler(calendar CalendarService, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{
		calendar: calendar,
		logger:   logHandler(logger, "calendar"),
		now:      time.Now,
	}
}

type detectRequest struct {
	UserID string `json:"user_id"`
	service.DetectRequest
}

type detectResponse struct {
	Detected bool                  `json:"detected"`
	Event    *domain.CalendarEvent `json:"event,omitempty"`
}

// Detect classifies a listing candidate and stores it when a pattern matches.
// POST /api/calendar/detect
func (h *CalendarHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "detect listing", err)
		return
	}
	event, ok, err := h.calendar.Detect(r.Context(), req.UserID, req.DetectRequest)
	if err != nil {
		writeServiceError(w, r, h.logger, "detect listing", err)
		return
	}
	status := http.StatusOK
	if ok {
		status = http.StatusCreated
	}
	writeJSON(w, status, detectResponse{Detected: ok, Event: event})
}

// ListEvents returns an owner's events launching in [start, end]. The
// default window is the past day through the next seven.
// GET /api/calendar/{owner}?start=&end=
func (h *CalendarHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	start, end, err := timeRange(r, now.Add(-24*time.Hour), now.Add(7*24*time.Hour))
	if err != nil {
		writeServiceError(w, r, h.logger, "list calendar", err)
		return
	}
	events, err := h.calendar.List(r.Context(), pathParam(r, "owner"), start, end)
	if err != nil {
		writeServiceError(w, r, h.logger, "list calendar", err)
		return
	}
	if events == nil {
		events = []*domain.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
