package domain

import "time"

// Signal bus channels.
const (
	ChannelCalendar = "calendar"
	ChannelOrders   = "orders"
	ChannelPrices   = "prices"

	// StreamSnipes is the durable record of snipe attempts.
	StreamSnipes = "snipes"
)

// CalendarSignal is published when a listing pattern is detected or an
// event changes status.
type CalendarSignal struct {
	EventID    string         `json:"event_id"`
	UserID     string         `json:"user_id"`
	TokenName  string         `json:"token_name"`
	Symbol     string         `json:"symbol"`
	Pattern    string         `json:"pattern"`
	Confidence float64        `json:"confidence"`
	LaunchTime int64          `json:"launch_time"`
	Status     CalendarStatus `json:"status"`
}

// NewCalendarSignal projects an event onto its bus payload.
func NewCalendarSignal(e *CalendarEvent) CalendarSignal {
	return CalendarSignal{
		EventID:    e.EventID,
		UserID:     e.UserID,
		TokenName:  e.TokenName,
		Symbol:     e.Symbol,
		Pattern:    e.DetectedPattern,
		Confidence: e.Confidence,
		LaunchTime: e.LaunchTime,
		Status:     e.Status,
	}
}

// OrderSignal is published after an order reaches the exchange or fails.
type OrderSignal struct {
	OrderID         string      `json:"order_id"`
	UserID          string      `json:"user_id"`
	Symbol          string      `json:"symbol"`
	Side            OrderSide   `json:"side"`
	Quantity        float64     `json:"quantity"`
	Status          OrderStatus `json:"status"`
	ExchangeOrderID string      `json:"exchange_order_id,omitempty"`
	EventID         string      `json:"event_id,omitempty"`
	Error           string      `json:"error,omitempty"`
	At              time.Time   `json:"at"`
}

// NewOrderSignal projects an order onto its bus payload.
func NewOrderSignal(o *Order) OrderSignal {
	return OrderSignal{
		OrderID:         o.OrderID,
		UserID:          o.UserID,
		Symbol:          o.Symbol,
		Side:            o.Side,
		Quantity:        o.Quantity,
		Status:          o.Status,
		ExchangeOrderID: o.ExchangeOrderID,
		Error:           o.ErrorMessage,
		At:              o.UpdatedAt,
	}
}

// PriceSignal is published for every price observed on the market feed.
type PriceSignal struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// BotStatus is a summary of the bot's current operational state.
type BotStatus struct {
	Mode          string `json:"mode"`
	Exchange      string `json:"exchange"`
	StoreReady    bool   `json:"store_ready"`
	FeedConnected bool   `json:"feed_connected"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
