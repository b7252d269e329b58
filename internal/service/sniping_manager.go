package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/metrics"
	"github.com/alanyoungcy/mexcsniper/internal/notify"
)

// SnipeConfidenceThreshold is the minimum event confidence for an automatic
// snipe.
const SnipeConfidenceThreshold = 0.70

// Snipe outcomes, used as the metric label.
const (
	snipeSniped  = "sniped"
	snipeFailed  = "failed"
	snipePartial = "partial"
)

// SnipeRecord is appended to the snipe stream for every attempt.
type SnipeRecord struct {
	EventID            string    `json:"event_id"`
	UserID             string    `json:"user_id"`
	Symbol             string    `json:"symbol"`
	OrderID            string    `json:"order_id"`
	ExchangeOrderID    string    `json:"exchange_order_id,omitempty"`
	Result             string    `json:"result"`
	Error              string    `json:"error,omitempty"`
	SideEffectPossible bool      `json:"side_effect_possible"`
	At                 time.Time `json:"at"`
}

// SnipingManager turns a detected calendar event into a market order.
//
// The exchange call always happens first, then the Order write, then the
// CalendarEvent write, so a sniped event always points at a stored order.
// Nothing is retried: the order request carries no idempotency key and a
// retried market order could fill twice.
type SnipingManager struct {
	exchange domain.Exchange
	orders   domain.OrderStore
	events   domain.CalendarStore
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	sink     sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewSnipingManager creates a SnipingManager. bus, audit, notifier and m may
// be nil.
func NewSnipingManager(
	exchange domain.Exchange,
	orders domain.OrderStore,
	events domain.CalendarStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SnipingManager {
	logger = logger.With(slog.String("component", "sniping_manager"))
	return &SnipingManager{
		exchange: exchange,
		orders:   orders,
		events:   events,
		notifier: notifier,
		metrics:  m,
		sink:     sink{bus: bus, audit: audit, logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

// ShouldExecuteSnipe reports whether confidence clears the snipe threshold.
func (m *SnipingManager) ShouldExecuteSnipe(confidence float64) bool {
	return confidence >= SnipeConfidenceThreshold
}

func validateSnipe(owner string, event *domain.CalendarEvent, params domain.SnipeParams) error {
	switch {
	case owner == "":
		return domain.Invalid("user_id", "must not be empty")
	case event == nil:
		return domain.Invalid("event", "must not be nil")
	case event.UserID != owner:
		return domain.Invalid("user_id", "event belongs to another owner")
	case event.Symbol == "":
		return domain.Invalid("symbol", "must not be empty")
	case event.Status != domain.CalendarStatusDetected:
		return domain.Invalid("status", fmt.Sprintf("event %s is %s, not detected", event.EventID, event.Status))
	case params.Side != domain.OrderSideBuy && params.Side != domain.OrderSideSell:
		return domain.Invalid("side", fmt.Sprintf("unknown side %q", params.Side))
	case !domain.PositiveFinite(params.Quantity):
		return domain.Invalid("quantity", "must be positive and finite")
	}
	return nil
}

// ExecuteSnipe places a market order for event and links it to the event.
// It returns the new order id.
//
// On an exchange failure the event stays detected, an error order is stored
// best effort and the exchange error is returned. If the exchange accepted
// the order but a later write failed, the error is a
// *domain.PartialExecutionError. On success event is updated in place.
func (m *SnipingManager) ExecuteSnipe(ctx context.Context, owner string, event *domain.CalendarEvent, params domain.SnipeParams) (string, error) {
	if err := validateSnipe(owner, event, params); err != nil {
		return "", err
	}

	order := domain.NewOrder(owner, event.Symbol, params.Side, domain.OrderTypeMarket, params.Quantity, nil, m.now())
	xo, err := m.exchange.CreateOrder(ctx, domain.OrderRequest{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Type:     order.Type,
		Quantity: order.Quantity,
	})
	if err != nil {
		m.failed(ctx, event, order, err)
		return "", fmt.Errorf("sniping_manager: snipe %s: %w", event.Symbol, err)
	}

	applyExchangeOrder(ctx, m.logger, order, xo, m.now())
	if err := m.orders.PutOrder(ctx, order); err != nil {
		return "", m.partial(ctx, event, order, "persist order", err)
	}

	updated := event.Clone()
	if err := updated.MarkSniped(order.OrderID, m.now()); err != nil {
		return "", m.partial(ctx, event, order, "mark event sniped", err)
	}
	if err := m.events.PutCalendarEvent(ctx, updated); err != nil {
		return "", m.partial(ctx, event, order, "persist calendar event", err)
	}
	*event = *updated

	m.metrics.ObserveSnipe(snipeSniped)
	sig := domain.NewOrderSignal(order)
	sig.EventID = event.EventID
	m.sink.publish(ctx, domain.ChannelOrders, sig)
	m.sink.publish(ctx, domain.ChannelCalendar, domain.NewCalendarSignal(event))
	m.sink.stream(ctx, domain.StreamSnipes, m.snipeRecord(event, order, snipeSniped, nil))
	m.sink.record(ctx, "snipe_executed", map[string]any{
		"user_id":           owner,
		"event_id":          event.EventID,
		"order_id":          order.OrderID,
		"exchange_order_id": order.ExchangeOrderID,
		"symbol":            order.Symbol,
		"quantity":          order.Quantity,
		"status":            string(order.Status),
	})
	if err := m.notifier.SnipeExecuted(ctx, event, order); err != nil {
		m.logger.WarnContext(ctx, "snipe notification failed", slog.String("error", err.Error()))
	}
	m.logger.InfoContext(ctx, "snipe executed",
		slog.String("event_id", event.EventID),
		slog.String("order_id", order.OrderID),
		slog.String("exchange_order_id", order.ExchangeOrderID),
		slog.String("symbol", order.Symbol),
		slog.String("status", string(order.Status)),
	)
	return order.OrderID, nil
}

// failed handles an exchange error: the order is stored as an error record
// best effort and the event is left untouched.
func (m *SnipingManager) failed(ctx context.Context, event *domain.CalendarEvent, order *domain.Order, cause error) {
	order.Fail(cause.Error(), m.now())
	if err := m.orders.PutOrder(ctx, order); err != nil {
		m.logger.WarnContext(ctx, "persist failed snipe order",
			slog.String("order_id", order.OrderID),
			slog.String("error", err.Error()),
		)
	}

	m.metrics.ObserveSnipe(snipeFailed)
	sig := domain.NewOrderSignal(order)
	sig.EventID = event.EventID
	m.sink.publish(ctx, domain.ChannelOrders, sig)
	m.sink.stream(ctx, domain.StreamSnipes, m.snipeRecord(event, order, snipeFailed, cause))
	m.sink.record(ctx, "snipe_failed", map[string]any{
		"user_id":              order.UserID,
		"event_id":             event.EventID,
		"order_id":             order.OrderID,
		"symbol":               order.Symbol,
		"error":                cause.Error(),
		"side_effect_possible": domain.SideEffectPossible(cause),
	})
	if err := m.notifier.SnipeFailed(ctx, event, cause); err != nil {
		m.logger.WarnContext(ctx, "snipe notification failed", slog.String("error", err.Error()))
	}
	m.logger.ErrorContext(ctx, "snipe failed",
		slog.String("event_id", event.EventID),
		slog.String("symbol", event.Symbol),
		slog.String("error", cause.Error()),
	)
}

// partial reports a write failure after the exchange accepted the order.
func (m *SnipingManager) partial(ctx context.Context, event *domain.CalendarEvent, order *domain.Order, stage string, cause error) error {
	perr := &domain.PartialExecutionError{
		OrderID:         order.OrderID,
		ExchangeOrderID: order.ExchangeOrderID,
		Stage:           stage,
		Err:             cause,
	}
	m.metrics.ObserveSnipe(snipePartial)
	m.sink.stream(ctx, domain.StreamSnipes, m.snipeRecord(event, order, snipePartial, perr))
	m.sink.record(ctx, "snipe_partial", map[string]any{
		"user_id":           order.UserID,
		"event_id":          event.EventID,
		"order_id":          order.OrderID,
		"exchange_order_id": order.ExchangeOrderID,
		"stage":             stage,
		"error":             cause.Error(),
	})
	if err := m.notifier.SnipeFailed(ctx, event, perr); err != nil {
		m.logger.WarnContext(ctx, "snipe notification failed", slog.String("error", err.Error()))
	}
	m.logger.ErrorContext(ctx, "snipe placed but not recorded",
		slog.String("event_id", event.EventID),
		slog.String("order_id", order.OrderID),
		slog.String("exchange_order_id", order.ExchangeOrderID),
		slog.String("stage", stage),
		slog.String("error", cause.Error()),
	)
	return perr
}

func (m *SnipingManager) snipeRecord(event *domain.CalendarEvent, order *domain.Order, result string, cause error) SnipeRecord {
	r := SnipeRecord{
		EventID:            event.EventID,
		UserID:             order.UserID,
		Symbol:             order.Symbol,
		OrderID:            order.OrderID,
		ExchangeOrderID:    order.ExchangeOrderID,
		Result:             result,
		SideEffectPossible: domain.SideEffectPossible(cause),
		At:                 m.now().UTC(),
	}
	if cause != nil {
		r.Error = cause.Error()
	}
	return r
}
