package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style requested from the exchange.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusError     OrderStatus = "error"
)

// RecordRetention is how long persisted records live before the store may
// expire them.
const RecordRetention = 90 * 24 * time.Hour

// orderRank orders statuses for forward-only transitions. Terminal statuses
// share the highest rank so none can follow another.
var orderRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusOpen:      1,
	OrderStatusFilled:    2,
	OrderStatusCancelled: 2,
	OrderStatusError:     2,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := orderRank[s]
	return ok
}

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return orderRank[s] == 2
}

// ParseOrderSide normalises a side string ("BUY", "buy").
func ParseOrderSide(s string) (OrderSide, error) {
	switch OrderSide(strings.ToLower(strings.TrimSpace(s))) {
	case OrderSideBuy:
		return OrderSideBuy, nil
	case OrderSideSell:
		return OrderSideSell, nil
	}
	return "", Invalid("side", fmt.Sprintf("unknown side %q", s))
}

// ParseOrderType normalises an order type string ("MARKET", "limit").
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(strings.ToLower(strings.TrimSpace(s))) {
	case OrderTypeLimit:
		return OrderTypeLimit, nil
	case OrderTypeMarket:
		return OrderTypeMarket, nil
	}
	return "", Invalid("order_type", fmt.Sprintf("unknown order type %q", s))
}

// ParseOrderStatus maps both our own statuses and the exchange's
// (NEW, PARTIALLY_FILLED, FILLED, CANCELED, REJECTED) onto OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return OrderStatusPending, nil
	case "OPEN", "NEW", "PARTIALLY_FILLED":
		return OrderStatusOpen, nil
	case "FILLED":
		return OrderStatusFilled, nil
	case "CANCELLED", "CANCELED", "PARTIALLY_CANCELED", "EXPIRED":
		return OrderStatusCancelled, nil
	case "ERROR", "REJECTED":
		return OrderStatusError, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Order is one attempted or completed trade owned by a single user.
type Order struct {
	OrderID         string      `json:"order_id"`
	UserID          string      `json:"user_id"`
	Symbol          string      `json:"symbol"`
	Side            OrderSide   `json:"side"`
	Type            OrderType   `json:"order_type"`
	Quantity        float64     `json:"quantity"`
	Price           *float64    `json:"price,omitempty"`
	FilledQuantity  float64     `json:"filled_qty"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	ExchangeOrderID string      `json:"mexc_order_id,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	TimestampMs     int64       `json:"timestamp"`
	TTL             int64       `json:"ttl"`
}

// NewOrder builds a pending order with a fresh id. The ordering timestamp and
// retention horizon are derived from now.
func NewOrder(userID, symbol string, side OrderSide, typ OrderType, quantity float64, price *float64, now time.Time) *Order {
	now = now.UTC()
	return &Order{
		OrderID:     uuid.NewString(),
		UserID:      userID,
		Symbol:      symbol,
		Side:        side,
		Type:        typ,
		Quantity:    quantity,
		Price:       price,
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		TimestampMs: now.UnixMilli(),
		TTL:         now.Add(RecordRetention).Unix(),
	}
}

// Transition moves the order to next. Moving backwards, or away from a
// terminal status, is rejected. Re-applying the current status is a no-op.
func (o *Order) Transition(next OrderStatus, now time.Time) error {
	if !next.Valid() {
		return Invalid("status", fmt.Sprintf("unknown status %q", next))
	}
	if next == o.Status {
		return nil
	}
	if o.Status.Terminal() || orderRank[next] < orderRank[o.Status] {
		return Invalid("status", fmt.Sprintf("cannot move order %s from %s to %s", o.OrderID, o.Status, next))
	}
	o.Status = next
	o.UpdatedAt = now.UTC()
	return nil
}

// ApplyFill records the exchange-reported filled quantity, clamped to
// [0, Quantity]. It reports whether clamping was needed.
func (o *Order) ApplyFill(filled float64, now time.Time) (clamped bool) {
	switch {
	case math.IsNaN(filled) || filled < 0:
		filled, clamped = 0, true
	case filled > o.Quantity:
		filled, clamped = o.Quantity, true
	}
	o.FilledQuantity = filled
	o.UpdatedAt = now.UTC()
	return clamped
}

// Fail marks the order as errored with msg. A terminal order keeps its status
// and only the message is recorded when it is already an error.
func (o *Order) Fail(msg string, now time.Time) {
	if o.Status.Terminal() && o.Status != OrderStatusError {
		return
	}
	o.Status = OrderStatusError
	o.ErrorMessage = msg
	o.UpdatedAt = now.UTC()
}

// SortKey is the composite sort key "ORDER#<timestamp_ms>#<order_id>".
func (o *Order) SortKey() string {
	return fmt.Sprintf("%s#%d#%s", RecordTypeOrder, o.TimestampMs, o.OrderID)
}

// PositiveFinite reports whether v is a usable amount: greater than zero,
// not NaN and not infinite.
func PositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// Validate checks the record invariants.
func (o *Order) Validate() error {
	switch {
	case o.OrderID == "":
		return Invalid("order_id", "must not be empty")
	case o.UserID == "":
		return Invalid("user_id", "must not be empty")
	case o.Symbol == "":
		return Invalid("symbol", "must not be empty")
	case !PositiveFinite(o.Quantity):
		return Invalid("quantity", "must be positive and finite")
	case math.IsNaN(o.FilledQuantity) || o.FilledQuantity < 0 || o.FilledQuantity > o.Quantity:
		return Invalid("filled_qty", "must be within [0, quantity]")
	case !o.Status.Valid():
		return Invalid("status", fmt.Sprintf("unknown status %q", o.Status))
	case o.ErrorMessage != "" && o.Status != OrderStatusError:
		return Invalid("error_message", "set on an order whose status is not error")
	}
	if o.Price != nil && !PositiveFinite(*o.Price) {
		return Invalid("price", "must be positive and finite when set")
	}
	return nil
}

// OrderRequest is what the exchange client sends to place an order.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Quantity float64
	Price    *float64
}

// ExchangeOrder is the exchange's view of an order.
type ExchangeOrder struct {
	OrderID   string
	Symbol    string
	Side      string
	Type      string
	Quantity  float64
	Price     *float64
	Status    string
	FilledQty float64
	CreatedAt string
}

// OrderReceipt is returned to callers of order creation.
type OrderReceipt struct {
	OrderID         string      `json:"order_id"`
	Status          OrderStatus `json:"status"`
	ExchangeOrderID string      `json:"exchange_order_id,omitempty"`
}
