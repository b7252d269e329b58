package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// DB is the subset of pgxpool.Pool the item store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// ItemStore implements domain.TradingStore on the trading_items table.
// Expired rows (ttl in the past) are excluded on read; removal is left to a
// scheduled job.
type ItemStore struct {
	db  DB
	now func() time.Time
}

// NewItemStore creates an ItemStore over db.
func NewItemStore(db DB) *ItemStore {
	return &ItemStore{db: db, now: time.Now}
}

var _ domain.TradingStore = (*ItemStore)(nil)

// Ping checks database connectivity.
func (s *ItemStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

const upsertItem = `
	INSERT INTO trading_items (user_id, sk, data_type, record_id, status, range_ts, ttl, doc, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (user_id, sk) DO UPDATE SET
		status = EXCLUDED.status,
		ttl = EXCLUDED.ttl,
		doc = EXCLUDED.doc,
		updated_at = NOW()`

type itemRow struct {
	userID   string
	sk       string
	dataType string
	recordID string
	status   string
	rangeTS  int64
	ttl      int64
	doc      any
}

func (s *ItemStore) upsert(ctx context.Context, op string, r itemRow) error {
	doc, err := json.Marshal(r.doc)
	if err != nil {
		return fmt.Errorf("postgres: %s: marshal: %w", op, err)
	}
	_, err = s.db.Exec(ctx, upsertItem,
		r.userID, r.sk, r.dataType, r.recordID, r.status, r.rangeTS, r.ttl, doc)
	if err != nil {
		return fmt.Errorf("postgres: %s %s: %w", op, r.recordID, err)
	}
	return nil
}

// PutOrder upserts the order.
func (s *ItemStore) PutOrder(ctx context.Context, o *domain.Order) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("postgres: put order: %w", err)
	}
	return s.upsert(ctx, "put order", itemRow{
		userID: o.UserID, sk: o.SortKey(), dataType: domain.RecordTypeOrder,
		recordID: o.OrderID, status: string(o.Status), rangeTS: o.TimestampMs,
		ttl: o.TTL, doc: orderToDoc(o),
	})
}

// PutPosition upserts the position.
func (s *ItemStore) PutPosition(ctx context.Context, p *domain.Position) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("postgres: put position: %w", err)
	}
	return s.upsert(ctx, "put position", itemRow{
		userID: p.UserID, sk: p.SortKey(), dataType: domain.RecordTypePosition,
		recordID: p.PositionID, status: string(p.Status), rangeTS: p.EntryTime,
		ttl: p.TTL, doc: positionToDoc(p),
	})
}

// PutCalendarEvent upserts the event.
func (s *ItemStore) PutCalendarEvent(ctx context.Context, e *domain.CalendarEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("postgres: put calendar event: %w", err)
	}
	return s.upsert(ctx, "put calendar event", itemRow{
		userID: e.UserID, sk: e.SortKey(), dataType: domain.RecordTypeCalendar,
		recordID: e.EventID, status: string(e.Status), rangeTS: e.LaunchTime,
		ttl: e.TTL, doc: calendarToDoc(e),
	})
}

// GetOrder returns one order by id.
func (s *ItemStore) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	out, err := selectItems(ctx, s, "get order", domain.RecordTypeOrder, decodeOrder,
		"AND record_id = $4", userID, orderID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("postgres: order %s: %w", orderID, domain.ErrNotFound)
	}
	return out[0], nil
}

// QueryOrdersByStatus returns the owner's orders with status.
func (s *ItemStore) QueryOrdersByStatus(ctx context.Context, userID string, status domain.OrderStatus) ([]*domain.Order, error) {
	return selectItems(ctx, s, "query orders by status", domain.RecordTypeOrder, decodeOrder,
		"AND status = $4", userID, string(status))
}

// QueryOrdersBetween returns the owner's orders with timestamp in
// [startMs, endMs].
func (s *ItemStore) QueryOrdersBetween(ctx context.Context, userID string, startMs, endMs int64) ([]*domain.Order, error) {
	return selectItems(ctx, s, "query orders between", domain.RecordTypeOrder, decodeOrder,
		"AND range_ts BETWEEN $4 AND $5", userID, startMs, endMs)
}

// GetPosition returns one position by id.
func (s *ItemStore) GetPosition(ctx context.Context, userID, positionID string) (*domain.Position, error) {
	out, err := selectItems(ctx, s, "get position", domain.RecordTypePosition, decodePosition,
		"AND record_id = $4", userID, positionID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("postgres: position %s: %w", positionID, domain.ErrNotFound)
	}
	return out[0], nil
}

// QueryOpenPositions returns the owner's open positions.
func (s *ItemStore) QueryOpenPositions(ctx context.Context, userID string) ([]*domain.Position, error) {
	return selectItems(ctx, s, "query open positions", domain.RecordTypePosition, decodePosition,
		"AND status = $4", userID, string(domain.PositionStatusOpen))
}

// GetCalendarEvent returns one event by id.
func (s *ItemStore) GetCalendarEvent(ctx context.Context, userID, eventID string) (*domain.CalendarEvent, error) {
	out, err := selectItems(ctx, s, "get calendar event", domain.RecordTypeCalendar, decodeCalendarEvent,
		"AND record_id = $4", userID, eventID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("postgres: calendar event %s: %w", eventID, domain.ErrNotFound)
	}
	return out[0], nil
}

// QueryCalendarEventsByTime returns the owner's events with launch_time in
// [start, end].
func (s *ItemStore) QueryCalendarEventsByTime(ctx context.Context, userID string, start, end int64) ([]*domain.CalendarEvent, error) {
	return selectItems(ctx, s, "query calendar events", domain.RecordTypeCalendar, decodeCalendarEvent,
		"AND range_ts BETWEEN $4 AND $5", userID, start, end)
}

// selectItems runs a query scoped to one owner and record type. The extra
// clause refers to its own arguments from $4 on.
func selectItems[T any](
	ctx context.Context, s *ItemStore, op, dataType string,
	decode func(key string, raw []byte) (T, error),
	clause, userID string, args ...any,
) ([]T, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: %s: %w", op, domain.Invalid("user_id", "is required"))
	}
	query := `SELECT sk, doc FROM trading_items
		WHERE user_id = $1 AND data_type = $2 AND (ttl = 0 OR ttl > $3) ` + clause + ` ORDER BY sk`
	all := append([]any{userID, dataType, s.now().Unix()}, args...)

	rows, err := s.db.Query(ctx, query, all...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var sk string
		var raw []byte
		if err := rows.Scan(&sk, &raw); err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		v, err := decode(itemKey(userID, sk), raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}
