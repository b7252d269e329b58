// Package notify fans bot alerts out to chat channels (Telegram, Discord).
// Alerts carry an event type so operators can subscribe to a subset.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// Event types.
const (
	EventCalendarDetected = "calendar_detected"
	EventSnipeExecuted    = "snipe_executed"
	EventSnipeFailed      = "snipe_failed"
	EventError            = "error"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every Sender. Only event types in the
// allowed set are forwarded; an empty set allows everything. A nil
// *Notifier drops all alerts.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends title and message to all senders if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// CalendarDetected announces a newly detected listing.
func (n *Notifier) CalendarDetected(ctx context.Context, e *domain.CalendarEvent) error {
	return n.Notify(ctx, EventCalendarDetected,
		fmt.Sprintf("Listing detected: %s", e.Symbol),
		fmt.Sprintf("%s (%s) pattern %s confidence %.2f, launch %d",
			e.TokenName, e.Symbol, e.DetectedPattern, e.Confidence, e.LaunchTime))
}

// SnipeExecuted announces a placed snipe order.
func (n *Notifier) SnipeExecuted(ctx context.Context, e *domain.CalendarEvent, o *domain.Order) error {
	return n.Notify(ctx, EventSnipeExecuted,
		fmt.Sprintf("Snipe executed: %s", o.Symbol),
		fmt.Sprintf("%s %g %s, order %s (exchange %s, %s), event %s",
			o.Side, o.Quantity, o.Symbol, o.OrderID, o.ExchangeOrderID, o.Status, e.EventID))
}

// SnipeFailed announces a snipe that did not go through.
func (n *Notifier) SnipeFailed(ctx context.Context, e *domain.CalendarEvent, cause error) error {
	return n.Notify(ctx, EventSnipeFailed,
		fmt.Sprintf("Snipe failed: %s", e.Symbol),
		fmt.Sprintf("event %s: %v (side effect possible: %t)", e.EventID, cause, domain.SideEffectPossible(cause)))
}

// Error reports an operational failure.
func (n *Notifier) Error(ctx context.Context, component string, cause error) error {
	return n.Notify(ctx, EventError, "Error in "+component, cause.Error())
}
