package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// Key condition and filter expressions. Every query is scoped to one owner
// and one record-type prefix of the sort key.
const (
	keyByPrefix = "user_id = :uid AND begins_with(sk, :sk)"

	filterOrderID    = "order_id = :oid"
	filterPositionID = "position_id = :pid"
	filterEventID    = "event_id = :eid"
	filterStatus     = "#status = :status"
	filterOrderTime  = "#ts BETWEEN :start AND :end"
	filterLaunchTime = "launch_time BETWEEN :start AND :end"
)

// Store implements domain.TradingStore on a single DynamoDB table keyed by
// (user_id, sk).
type Store struct {
	api   API
	table string
}

// NewStore returns a store over table.
func NewStore(api API, table string) *Store {
	return &Store{api: api, table: table}
}

var _ domain.TradingStore = (*Store)(nil)

// Ping checks that the table is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return fmt.Errorf("dynamo: describe table %s: %w", s.table, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Orders
// --------------------------------------------------------------------------

// PutOrder writes the order, replacing any previous version with the same key.
func (s *Store) PutOrder(ctx context.Context, o *domain.Order) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("dynamo: put order: %w", err)
	}
	return s.put(ctx, "put order", encodeOrder(o))
}

// GetOrder finds an order by its id among the owner's orders.
func (s *Store) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	items, err := s.query(ctx, "get order", queryParams{
		userID: userID,
		prefix: domain.RecordTypeOrder,
		filter: filterOrderID,
		values: map[string]types.AttributeValue{":oid": avS(orderID)},
		limit1: true,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("dynamo: order %s: %w", orderID, domain.ErrNotFound)
	}
	return decodeOrder(items[0])
}

// QueryOrdersByStatus returns the owner's orders with the given status.
func (s *Store) QueryOrdersByStatus(ctx context.Context, userID string, status domain.OrderStatus) ([]*domain.Order, error) {
	items, err := s.query(ctx, "query orders by status", queryParams{
		userID: userID,
		prefix: domain.RecordTypeOrder,
		filter: filterStatus,
		names:  map[string]string{"#status": attrStatus},
		values: map[string]types.AttributeValue{":status": avS(string(status))},
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(items, decodeOrder)
}

// QueryOrdersBetween returns the owner's orders whose timestamp lies in
// [startMs, endMs].
func (s *Store) QueryOrdersBetween(ctx context.Context, userID string, startMs, endMs int64) ([]*domain.Order, error) {
	items, err := s.query(ctx, "query orders between", queryParams{
		userID: userID,
		prefix: domain.RecordTypeOrder,
		filter: filterOrderTime,
		names:  map[string]string{"#ts": "timestamp"},
		values: map[string]types.AttributeValue{":start": avInt(startMs), ":end": avInt(endMs)},
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(items, decodeOrder)
}

// --------------------------------------------------------------------------
// Positions
// --------------------------------------------------------------------------

// PutPosition writes the position, replacing any previous version.
func (s *Store) PutPosition(ctx context.Context, p *domain.Position) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("dynamo: put position: %w", err)
	}
	return s.put(ctx, "put position", encodePosition(p))
}

// GetPosition finds a position by id among the owner's positions.
func (s *Store) GetPosition(ctx context.Context, userID, positionID string) (*domain.Position, error) {
	items, err := s.query(ctx, "get position", queryParams{
		userID: userID,
		prefix: domain.RecordTypePosition,
		filter: filterPositionID,
		values: map[string]types.AttributeValue{":pid": avS(positionID)},
		limit1: true,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("dynamo: position %s: %w", positionID, domain.ErrNotFound)
	}
	return decodePosition(items[0])
}

// QueryOpenPositions returns the owner's open positions.
func (s *Store) QueryOpenPositions(ctx context.Context, userID string) ([]*domain.Position, error) {
	items, err := s.query(ctx, "query open positions", queryParams{
		userID: userID,
		prefix: domain.RecordTypePosition,
		filter: filterStatus,
		names:  map[string]string{"#status": attrStatus},
		values: map[string]types.AttributeValue{":status": avS(string(domain.PositionStatusOpen))},
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(items, decodePosition)
}

// --------------------------------------------------------------------------
// Calendar events
// --------------------------------------------------------------------------

// PutCalendarEvent writes the event, replacing any previous version.
func (s *Store) PutCalendarEvent(ctx context.Context, e *domain.CalendarEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("dynamo: put calendar event: %w", err)
	}
	return s.put(ctx, "put calendar event", encodeCalendarEvent(e))
}

// GetCalendarEvent finds an event by id among the owner's events.
func (s *Store) GetCalendarEvent(ctx context.Context, userID, eventID string) (*domain.CalendarEvent, error) {
	items, err := s.query(ctx, "get calendar event", queryParams{
		userID: userID,
		prefix: domain.RecordTypeCalendar,
		filter: filterEventID,
		values: map[string]types.AttributeValue{":eid": avS(eventID)},
		limit1: true,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("dynamo: calendar event %s: %w", eventID, domain.ErrNotFound)
	}
	return decodeCalendarEvent(items[0])
}

// QueryCalendarEventsByTime returns the owner's events with launch_time in
// [start, end].
func (s *Store) QueryCalendarEventsByTime(ctx context.Context, userID string, start, end int64) ([]*domain.CalendarEvent, error) {
	items, err := s.query(ctx, "query calendar events", queryParams{
		userID: userID,
		prefix: domain.RecordTypeCalendar,
		filter: filterLaunchTime,
		values: map[string]types.AttributeValue{":start": avInt(start), ":end": avInt(end)},
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(items, decodeCalendarEvent)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (s *Store) put(ctx context.Context, op string, item map[string]types.AttributeValue) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamo: %s: %w", op, err)
	}
	return nil
}

type queryParams struct {
	userID string
	prefix string
	filter string
	names  map[string]string
	values map[string]types.AttributeValue
	// limit1 stops paging at the first match.
	limit1 bool
}

// query runs a key-condition query with a filter and follows
// LastEvaluatedKey until the result set is exhausted.
func (s *Store) query(ctx context.Context, op string, p queryParams) ([]map[string]types.AttributeValue, error) {
	if p.userID == "" {
		return nil, fmt.Errorf("dynamo: %s: %w", op, domain.Invalid("user_id", "is required"))
	}
	values := map[string]types.AttributeValue{
		":uid": avS(p.userID),
		":sk":  avS(p.prefix + "#"),
	}
	for k, v := range p.values {
		values[k] = v
	}
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyByPrefix),
		FilterExpression:          aws.String(p.filter),
		ExpressionAttributeValues: values,
	}
	if len(p.names) > 0 {
		in.ExpressionAttributeNames = p.names
	}

	var out []map[string]types.AttributeValue
	for {
		page, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamo: %s: %w", op, err)
		}
		out = append(out, page.Items...)
		if p.limit1 && len(out) > 0 {
			return out[:1], nil
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func decodeAll[T any](items []map[string]types.AttributeValue, decode func(map[string]types.AttributeValue) (T, error)) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := decode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
