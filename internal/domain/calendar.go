package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CalendarStatus tracks a listing event through the snipe pipeline.
type CalendarStatus string

const (
	CalendarStatusDetected CalendarStatus = "detected"
	CalendarStatusSniped   CalendarStatus = "sniped"
	CalendarStatusMissed   CalendarStatus = "missed"
)

// Valid reports whether s is a known status.
func (s CalendarStatus) Valid() bool {
	switch s {
	case CalendarStatusDetected, CalendarStatusSniped, CalendarStatusMissed:
		return true
	}
	return false
}

// CalendarEvent is a detected upcoming or past token listing.
type CalendarEvent struct {
	EventID         string         `json:"event_id"`
	UserID          string         `json:"user_id"`
	TokenName       string         `json:"token_name"`
	Symbol          string         `json:"symbol"`
	LaunchTime      int64          `json:"launch_time"` // epoch milliseconds
	DetectedPattern string         `json:"detected_pattern"`
	Confidence      float64        `json:"confidence"`
	CreatedAt       time.Time      `json:"created_at"`
	Status          CalendarStatus `json:"status"`
	ExecutionTime   *int64         `json:"execution_time,omitempty"` // epoch milliseconds
	ExecutedOrders  []string       `json:"executed_orders,omitempty"`
	TTL             int64          `json:"ttl"`
}

// NewCalendarEvent creates a detected event with a fresh id.
func NewCalendarEvent(userID, tokenName, symbol string, launchTime int64, pattern string, confidence float64, now time.Time) *CalendarEvent {
	now = now.UTC()
	return &CalendarEvent{
		EventID:         uuid.NewString(),
		UserID:          userID,
		TokenName:       tokenName,
		Symbol:          symbol,
		LaunchTime:      launchTime,
		DetectedPattern: pattern,
		Confidence:      confidence,
		CreatedAt:       now,
		Status:          CalendarStatusDetected,
		TTL:             now.Add(RecordRetention).Unix(),
	}
}

// MarkSniped links orderID to the event and moves it to sniped.
func (e *CalendarEvent) MarkSniped(orderID string, now time.Time) error {
	if e.Status != CalendarStatusDetected {
		return Invalid("status", fmt.Sprintf("event %s is %s, not detected", e.EventID, e.Status))
	}
	if orderID == "" {
		return Invalid("order_id", "must not be empty")
	}
	ts := now.UnixMilli()
	e.Status = CalendarStatusSniped
	e.ExecutionTime = &ts
	e.ExecutedOrders = append(e.ExecutedOrders, orderID)
	return nil
}

// MarkMissed closes a detected event that was never sniped.
func (e *CalendarEvent) MarkMissed() error {
	if e.Status != CalendarStatusDetected {
		return Invalid("status", fmt.Sprintf("event %s is %s, not detected", e.EventID, e.Status))
	}
	e.Status = CalendarStatusMissed
	return nil
}

// SortKey is the composite sort key "CALENDAR#<launch_time>#<event_id>".
func (e *CalendarEvent) SortKey() string {
	return fmt.Sprintf("%s#%d#%s", RecordTypeCalendar, e.LaunchTime, e.EventID)
}

// Clone returns a deep copy so callers can mutate without touching the
// original.
func (e *CalendarEvent) Clone() *CalendarEvent {
	c := *e
	if e.ExecutionTime != nil {
		ts := *e.ExecutionTime
		c.ExecutionTime = &ts
	}
	c.ExecutedOrders = append([]string(nil), e.ExecutedOrders...)
	return &c
}

// Validate checks the record invariants.
func (e *CalendarEvent) Validate() error {
	switch {
	case e.EventID == "":
		return Invalid("event_id", "must not be empty")
	case e.UserID == "":
		return Invalid("user_id", "must not be empty")
	case e.Symbol == "":
		return Invalid("symbol", "must not be empty")
	case e.Confidence < 0 || e.Confidence > 1:
		return Invalid("confidence", "must be within [0, 1]")
	case !e.Status.Valid():
		return Invalid("status", fmt.Sprintf("unknown status %q", e.Status))
	case e.Status == CalendarStatusSniped && (len(e.ExecutedOrders) == 0 || e.ExecutionTime == nil):
		return Invalid("status", "sniped event must carry executed orders and an execution time")
	}
	return nil
}

// SnipeParams are the order parameters used when sniping an event.
type SnipeParams struct {
	Side     OrderSide
	Quantity float64
}
