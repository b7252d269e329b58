package postgres

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// Record documents stored in trading_items.doc. Field names match the
// DynamoDB attribute names so exports from either backend line up.

type orderDoc struct {
	OrderID         string             `json:"order_id"`
	UserID          string             `json:"user_id"`
	Symbol          string             `json:"symbol"`
	Side            domain.OrderSide   `json:"side"`
	Type            domain.OrderType   `json:"order_type"`
	Quantity        float64            `json:"quantity"`
	Price           *float64           `json:"price,omitempty"`
	FilledQuantity  float64            `json:"filled_qty"`
	Status          domain.OrderStatus `json:"status"`
	TimestampMs     int64              `json:"timestamp"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	ExchangeOrderID string             `json:"mexc_order_id,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	TTL             int64              `json:"ttl"`
}

type positionDoc struct {
	PositionID    string                `json:"position_id"`
	UserID        string                `json:"user_id"`
	Symbol        string                `json:"symbol"`
	EntryPrice    float64               `json:"entry_price"`
	CurrentPrice  float64               `json:"current_price"`
	Quantity      float64               `json:"quantity"`
	Side          domain.PositionSide   `json:"side"`
	EntryTime     int64                 `json:"entry_time"`
	PnL           *float64              `json:"pnl,omitempty"`
	PnLPercentage *float64              `json:"pnl_percentage,omitempty"`
	Status        domain.PositionStatus `json:"status"`
	UpdatedAt     time.Time             `json:"updated_at"`
	TTL           int64                 `json:"ttl"`
}

type calendarDoc struct {
	EventID         string                `json:"event_id"`
	UserID          string                `json:"user_id"`
	TokenName       string                `json:"token_name"`
	Symbol          string                `json:"symbol"`
	LaunchTime      int64                 `json:"launch_time"`
	DetectedPattern string                `json:"detected_pattern"`
	Confidence      float64               `json:"confidence"`
	CreatedAt       time.Time             `json:"created_at"`
	Status          domain.CalendarStatus `json:"status"`
	ExecutionTime   *int64                `json:"execution_time,omitempty"`
	ExecutedOrders  []string              `json:"executed_orders,omitempty"`
	TTL             int64                 `json:"ttl"`
}

func orderToDoc(o *domain.Order) orderDoc {
	return orderDoc{
		OrderID: o.OrderID, UserID: o.UserID, Symbol: o.Symbol,
		Side: o.Side, Type: o.Type, Quantity: o.Quantity, Price: o.Price,
		FilledQuantity: o.FilledQuantity, Status: o.Status, TimestampMs: o.TimestampMs,
		CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
		ExchangeOrderID: o.ExchangeOrderID, ErrorMessage: o.ErrorMessage, TTL: o.TTL,
	}
}

func (d orderDoc) toDomain() *domain.Order {
	return &domain.Order{
		OrderID: d.OrderID, UserID: d.UserID, Symbol: d.Symbol,
		Side: d.Side, Type: d.Type, Quantity: d.Quantity, Price: d.Price,
		FilledQuantity: d.FilledQuantity, Status: d.Status, TimestampMs: d.TimestampMs,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
		ExchangeOrderID: d.ExchangeOrderID, ErrorMessage: d.ErrorMessage, TTL: d.TTL,
	}
}

func positionToDoc(p *domain.Position) positionDoc {
	return positionDoc{
		PositionID: p.PositionID, UserID: p.UserID, Symbol: p.Symbol,
		EntryPrice: p.EntryPrice, CurrentPrice: p.CurrentPrice, Quantity: p.Quantity,
		Side: p.Side, EntryTime: p.EntryTime, PnL: p.PnL, PnLPercentage: p.PnLPercentage,
		Status: p.Status, UpdatedAt: p.UpdatedAt, TTL: p.TTL,
	}
}

func (d positionDoc) toDomain() *domain.Position {
	return &domain.Position{
		PositionID: d.PositionID, UserID: d.UserID, Symbol: d.Symbol,
		EntryPrice: d.EntryPrice, CurrentPrice: d.CurrentPrice, Quantity: d.Quantity,
		Side: d.Side, EntryTime: d.EntryTime, PnL: d.PnL, PnLPercentage: d.PnLPercentage,
		Status: d.Status, UpdatedAt: d.UpdatedAt, TTL: d.TTL,
	}
}

func calendarToDoc(e *domain.CalendarEvent) calendarDoc {
	return calendarDoc{
		EventID: e.EventID, UserID: e.UserID, TokenName: e.TokenName, Symbol: e.Symbol,
		LaunchTime: e.LaunchTime, DetectedPattern: e.DetectedPattern, Confidence: e.Confidence,
		CreatedAt: e.CreatedAt, Status: e.Status, ExecutionTime: e.ExecutionTime,
		ExecutedOrders: e.ExecutedOrders, TTL: e.TTL,
	}
}

func (d calendarDoc) toDomain() *domain.CalendarEvent {
	return &domain.CalendarEvent{
		EventID: d.EventID, UserID: d.UserID, TokenName: d.TokenName, Symbol: d.Symbol,
		LaunchTime: d.LaunchTime, DetectedPattern: d.DetectedPattern, Confidence: d.Confidence,
		CreatedAt: d.CreatedAt, Status: d.Status, ExecutionTime: d.ExecutionTime,
		ExecutedOrders: d.ExecutedOrders, TTL: d.TTL,
	}
}

// decodeDoc strictly decodes raw into dst. Unknown fields and trailing data
// are rejected.
func decodeDoc(key string, raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.CorruptRecordError{Key: key, Attribute: "doc", Reason: err.Error()}
	}
	if _, err := dec.Token(); err != io.EOF {
		return &domain.CorruptRecordError{Key: key, Attribute: "doc", Reason: "trailing data"}
	}
	return nil
}

// checkRecord converts a record invariant violation into a CorruptRecordError.
func checkRecord(key string, validate func() error) error {
	err := validate()
	if err == nil {
		return nil
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return &domain.CorruptRecordError{Key: key, Attribute: ve.Field, Reason: ve.Reason}
	}
	return &domain.CorruptRecordError{Key: key, Reason: err.Error()}
}

func decodeOrder(key string, raw []byte) (*domain.Order, error) {
	var d orderDoc
	if err := decodeDoc(key, raw, &d); err != nil {
		return nil, err
	}
	if d.CreatedAt.IsZero() {
		return nil, &domain.CorruptRecordError{Key: key, Attribute: "created_at", Reason: "missing"}
	}
	o := d.toDomain()
	if err := checkRecord(key, o.Validate); err != nil {
		return nil, err
	}
	return o, nil
}

func decodePosition(key string, raw []byte) (*domain.Position, error) {
	var d positionDoc
	if err := decodeDoc(key, raw, &d); err != nil {
		return nil, err
	}
	p := d.toDomain()
	if err := checkRecord(key, p.Validate); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeCalendarEvent(key string, raw []byte) (*domain.CalendarEvent, error) {
	var d calendarDoc
	if err := decodeDoc(key, raw, &d); err != nil {
		return nil, err
	}
	if d.CreatedAt.IsZero() {
		return nil, &domain.CorruptRecordError{Key: key, Attribute: "created_at", Reason: "missing"}
	}
	e := d.toDomain()
	if err := checkRecord(key, e.Validate); err != nil {
		return nil, err
	}
	return e, nil
}

func itemKey(userID, sk string) string {
	return fmt.Sprintf("%s/%s", userID, sk)
}
