package domain

import (
	"context"
	"time"
)

// Record type prefixes of the sort key. They are part of the storage
// contract and must not change without a migration.
const (
	RecordTypeOrder    = "ORDER"
	RecordTypePosition = "POSITION"
	RecordTypeCalendar = "CALENDAR"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time

	// Audit filters; empty matches everything.
	Event  string
	UserID string
}

// OrderStore persists orders keyed by owner and ORDER# sort key.
type OrderStore interface {
	PutOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, userID, orderID string) (*Order, error)
	QueryOrdersByStatus(ctx context.Context, userID string, status OrderStatus) ([]*Order, error)
	// QueryOrdersBetween returns orders whose ordering timestamp lies in
	// [startMs, endMs].
	QueryOrdersBetween(ctx context.Context, userID string, startMs, endMs int64) ([]*Order, error)
}

// PositionStore persists positions keyed by owner and POSITION# sort key.
type PositionStore interface {
	PutPosition(ctx context.Context, pos *Position) error
	GetPosition(ctx context.Context, userID, positionID string) (*Position, error)
	QueryOpenPositions(ctx context.Context, userID string) ([]*Position, error)
}

// CalendarStore persists calendar events keyed by owner and CALENDAR# sort key.
type CalendarStore interface {
	PutCalendarEvent(ctx context.Context, event *CalendarEvent) error
	GetCalendarEvent(ctx context.Context, userID, eventID string) (*CalendarEvent, error)
	// QueryCalendarEventsByTime returns events with launch_time in [start, end]
	// (epoch milliseconds).
	QueryCalendarEventsByTime(ctx context.Context, userID string, start, end int64) ([]*CalendarEvent, error)
}

// TradingStore is the single-table persistence layer.
type TradingStore interface {
	OrderStore
	PositionStore
	CalendarStore
	Ping(ctx context.Context) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
