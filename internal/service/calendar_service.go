package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/notify"
	"github.com/alanyoungcy/mexcsniper/internal/pattern"
)

// DetectRequest describes a token whose launch history should be
// classified.
type DetectRequest struct {
	TokenName  string  `json:"token_name"`
	Symbol     string  `json:"symbol"`
	LaunchTime int64   `json:"launch_time"` // epoch milliseconds
	Intervals  []int64 `json:"intervals"`
}

// CalendarService ingests listing candidates and stores those that match a
// launch pattern.
type CalendarService struct {
	events   domain.CalendarStore
	detector *pattern.Detector
	notifier *notify.Notifier
	sink     sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewCalendarService creates a CalendarService. bus and notifier may be nil.
func NewCalendarService(
	events domain.CalendarStore,
	detector *pattern.Detector,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *CalendarService {
	logger = logger.With(slog.String("component", "calendar_service"))
	return &CalendarService{
		events:   events,
		detector: detector,
		notifier: notifier,
		sink:     sink{bus: bus, logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

// Detect classifies req and, on a match, stores a detected CalendarEvent.
// ok is false when no pattern matched; nothing is stored then.
func (s *CalendarService) Detect(ctx context.Context, owner string, req DetectRequest) (event *domain.CalendarEvent, ok bool, err error) {
	if err := requireOwner(owner); err != nil {
		return nil, false, err
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	switch {
	case req.Symbol == "":
		return nil, false, domain.Invalid("symbol", "must not be empty")
	case req.LaunchTime <= 0:
		return nil, false, domain.Invalid("launch_time", "must be positive")
	}

	match, ok := s.detector.Detect(req.TokenName, req.Intervals)
	if !ok {
		s.logger.DebugContext(ctx, "no launch pattern",
			slog.String("symbol", req.Symbol),
			slog.Int("intervals", len(req.Intervals)),
		)
		return nil, false, nil
	}

	event = domain.NewCalendarEvent(owner, req.TokenName, req.Symbol, req.LaunchTime, match.Label, match.Confidence, s.now())
	if err := s.events.PutCalendarEvent(ctx, event); err != nil {
		return nil, false, fmt.Errorf("calendar_service: store event: %w", err)
	}

	s.sink.publish(ctx, domain.ChannelCalendar, domain.NewCalendarSignal(event))
	if err := s.notifier.CalendarDetected(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "calendar notification failed", slog.String("error", err.Error()))
	}
	s.logger.InfoContext(ctx, "listing detected",
		slog.String("event_id", event.EventID),
		slog.String("symbol", event.Symbol),
		slog.String("pattern", event.DetectedPattern),
		slog.Float64("confidence", event.Confidence),
	)
	return event, true, nil
}

// Get returns a stored event.
func (s *CalendarService) Get(ctx context.Context, owner, eventID string) (*domain.CalendarEvent, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if eventID == "" {
		return nil, domain.Invalid("event_id", "must not be empty")
	}
	e, err := s.events.GetCalendarEvent(ctx, owner, eventID)
	if err != nil {
		return nil, fmt.Errorf("calendar_service: get event %q: %w", eventID, err)
	}
	return e, nil
}

// List returns owner's events launching within [start, end].
func (s *CalendarService) List(ctx context.Context, owner string, start, end time.Time) ([]*domain.CalendarEvent, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, domain.Invalid("end", "must not be before start")
	}
	events, err := s.events.QueryCalendarEventsByTime(ctx, owner, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("calendar_service: list events: %w", err)
	}
	return events, nil
}

// MarkMissed closes a detected event whose launch passed without a snipe.
func (s *CalendarService) MarkMissed(ctx context.Context, event *domain.CalendarEvent) error {
	updated := event.Clone()
	if err := updated.MarkMissed(); err != nil {
		return err
	}
	if err := s.events.PutCalendarEvent(ctx, updated); err != nil {
		return fmt.Errorf("calendar_service: mark missed %q: %w", event.EventID, err)
	}
	*event = *updated

	s.sink.publish(ctx, domain.ChannelCalendar, domain.NewCalendarSignal(event))
	s.logger.InfoContext(ctx, "listing missed",
		slog.String("event_id", event.EventID),
		slog.String("symbol", event.Symbol),
	)
	return nil
}
