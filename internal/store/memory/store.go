// Package memory is an in-process domain.TradingStore for local runs and
// tests. It keeps the single-table semantics of the DynamoDB backend:
// records are partitioned by owner, ordered by sort key, and replaced
// wholesale on put.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// Store is safe for concurrent use. Records are copied on the way in and
// out so callers never share memory with the store.
type Store struct {
	mu        sync.RWMutex
	orders    map[string]map[string]domain.Order         // user -> sk -> order
	positions map[string]map[string]domain.Position      // user -> sk -> position
	events    map[string]map[string]domain.CalendarEvent // user -> sk -> event
}

// New returns an empty store.
func New() *Store {
	return &Store{
		orders:    map[string]map[string]domain.Order{},
		positions: map[string]map[string]domain.Position{},
		events:    map[string]map[string]domain.CalendarEvent{},
	}
}

var _ domain.TradingStore = (*Store)(nil)

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func put[T any](mu *sync.RWMutex, m map[string]map[string]T, userID, sk string, v T) {
	mu.Lock()
	defer mu.Unlock()
	if m[userID] == nil {
		m[userID] = map[string]T{}
	}
	m[userID][sk] = v
}

// scan returns the owner's records in sort-key order that satisfy keep.
func scan[T any](mu *sync.RWMutex, m map[string]map[string]T, userID string, keep func(*T) bool) []T {
	mu.RLock()
	defer mu.RUnlock()
	keys := make([]string, 0, len(m[userID]))
	for sk := range m[userID] {
		keys = append(keys, sk)
	}
	sort.Strings(keys)
	var out []T
	for _, sk := range keys {
		v := m[userID][sk]
		if keep(&v) {
			out = append(out, v)
		}
	}
	return out
}

func requireUser(op, userID string) error {
	if userID == "" {
		return fmt.Errorf("memory: %s: %w", op, domain.Invalid("user_id", "is required"))
	}
	return nil
}

// PutOrder stores a copy of o.
func (s *Store) PutOrder(_ context.Context, o *domain.Order) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("memory: put order: %w", err)
	}
	c := *o
	if o.Price != nil {
		p := *o.Price
		c.Price = &p
	}
	put(&s.mu, s.orders, o.UserID, o.SortKey(), c)
	return nil
}

// GetOrder returns the order with orderID.
func (s *Store) GetOrder(_ context.Context, userID, orderID string) (*domain.Order, error) {
	if err := requireUser("get order", userID); err != nil {
		return nil, err
	}
	found := scan(&s.mu, s.orders, userID, func(o *domain.Order) bool { return o.OrderID == orderID })
	if len(found) == 0 {
		return nil, fmt.Errorf("memory: order %s: %w", orderID, domain.ErrNotFound)
	}
	return &found[0], nil
}

// QueryOrdersByStatus returns the owner's orders with status.
func (s *Store) QueryOrdersByStatus(_ context.Context, userID string, status domain.OrderStatus) ([]*domain.Order, error) {
	if err := requireUser("query orders by status", userID); err != nil {
		return nil, err
	}
	return ptrs(scan(&s.mu, s.orders, userID, func(o *domain.Order) bool { return o.Status == status })), nil
}

// QueryOrdersBetween returns the owner's orders with timestamp in
// [startMs, endMs].
func (s *Store) QueryOrdersBetween(_ context.Context, userID string, startMs, endMs int64) ([]*domain.Order, error) {
	if err := requireUser("query orders between", userID); err != nil {
		return nil, err
	}
	return ptrs(scan(&s.mu, s.orders, userID, func(o *domain.Order) bool {
		return o.TimestampMs >= startMs && o.TimestampMs <= endMs
	})), nil
}

// PutPosition stores a copy of p.
func (s *Store) PutPosition(_ context.Context, p *domain.Position) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("memory: put position: %w", err)
	}
	c := *p
	if p.PnL != nil {
		v, pct := *p.PnL, *p.PnLPercentage
		c.PnL, c.PnLPercentage = &v, &pct
	}
	put(&s.mu, s.positions, p.UserID, p.SortKey(), c)
	return nil
}

// GetPosition returns the position with positionID.
func (s *Store) GetPosition(_ context.Context, userID, positionID string) (*domain.Position, error) {
	if err := requireUser("get position", userID); err != nil {
		return nil, err
	}
	found := scan(&s.mu, s.positions, userID, func(p *domain.Position) bool { return p.PositionID == positionID })
	if len(found) == 0 {
		return nil, fmt.Errorf("memory: position %s: %w", positionID, domain.ErrNotFound)
	}
	return &found[0], nil
}

// QueryOpenPositions returns the owner's open positions.
func (s *Store) QueryOpenPositions(_ context.Context, userID string) ([]*domain.Position, error) {
	if err := requireUser("query open positions", userID); err != nil {
		return nil, err
	}
	return ptrs(scan(&s.mu, s.positions, userID, func(p *domain.Position) bool {
		return p.Status == domain.PositionStatusOpen
	})), nil
}

// PutCalendarEvent stores a copy of e.
func (s *Store) PutCalendarEvent(_ context.Context, e *domain.CalendarEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("memory: put calendar event: %w", err)
	}
	put(&s.mu, s.events, e.UserID, e.SortKey(), *e.Clone())
	return nil
}

// GetCalendarEvent returns the event with eventID.
func (s *Store) GetCalendarEvent(_ context.Context, userID, eventID string) (*domain.CalendarEvent, error) {
	if err := requireUser("get calendar event", userID); err != nil {
		return nil, err
	}
	found := scan(&s.mu, s.events, userID, func(e *domain.CalendarEvent) bool { return e.EventID == eventID })
	if len(found) == 0 {
		return nil, fmt.Errorf("memory: calendar event %s: %w", eventID, domain.ErrNotFound)
	}
	return found[0].Clone(), nil
}

// QueryCalendarEventsByTime returns the owner's events with launch_time in
// [start, end].
func (s *Store) QueryCalendarEventsByTime(_ context.Context, userID string, start, end int64) ([]*domain.CalendarEvent, error) {
	if err := requireUser("query calendar events", userID); err != nil {
		return nil, err
	}
	found := scan(&s.mu, s.events, userID, func(e *domain.CalendarEvent) bool {
		return e.LaunchTime >= start && e.LaunchTime <= end
	})
	out := make([]*domain.CalendarEvent, len(found))
	for i := range found {
		out[i] = found[i].Clone()
	}
	return out, nil
}

func ptrs[T any](in []T) []*T {
	out := make([]*T, len(in))
	for i := range in {
		out[i] = &in[i]
	}
	return out
}
