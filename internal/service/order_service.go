package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// CreateOrderRequest is the caller input for OrderService.Create.
type CreateOrderRequest struct {
	Symbol   string
	Side     domain.OrderSide
	Type     domain.OrderType
	Quantity float64
	Price    *float64
}

func (r CreateOrderRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Symbol) == "":
		return domain.Invalid("symbol", "must not be empty")
	case r.Side != domain.OrderSideBuy && r.Side != domain.OrderSideSell:
		return domain.Invalid("side", fmt.Sprintf("unknown side %q", r.Side))
	case r.Type != domain.OrderTypeLimit && r.Type != domain.OrderTypeMarket:
		return domain.Invalid("order_type", fmt.Sprintf("unknown order type %q", r.Type))
	case !domain.PositiveFinite(r.Quantity):
		return domain.Invalid("quantity", "must be positive and finite")
	case r.Type == domain.OrderTypeLimit && r.Price == nil:
		return domain.Invalid("price", "required for limit orders")
	case r.Price != nil && !domain.PositiveFinite(*r.Price):
		return domain.Invalid("price", "must be positive and finite")
	}
	return nil
}

// OrderService places, inspects and cancels orders on the exchange and keeps
// the persisted record in step.
type OrderService struct {
	orders   domain.OrderStore
	exchange domain.Exchange
	sink     sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrderService creates an OrderService. bus and audit may be nil.
func NewOrderService(
	orders domain.OrderStore,
	exchange domain.Exchange,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *OrderService {
	logger = logger.With(slog.String("component", "order_service"))
	return &OrderService{
		orders:   orders,
		exchange: exchange,
		sink:     sink{bus: bus, audit: audit, logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

// Create sends a new order to the exchange and persists the outcome. When
// the exchange rejects the order an error record is stored best effort and
// the exchange error is returned. When the exchange accepted the order but
// it could not be stored, a *domain.PartialExecutionError is returned.
func (s *OrderService) Create(ctx context.Context, owner string, req CreateOrderRequest) (domain.OrderReceipt, error) {
	if err := requireOwner(owner); err != nil {
		return domain.OrderReceipt{}, err
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := req.validate(); err != nil {
		return domain.OrderReceipt{}, err
	}

	order := domain.NewOrder(owner, req.Symbol, req.Side, req.Type, req.Quantity, req.Price, s.now())
	xo, err := s.exchange.CreateOrder(ctx, domain.OrderRequest{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Type:     order.Type,
		Quantity: order.Quantity,
		Price:    order.Price,
	})
	if err != nil {
		s.persistFailure(ctx, order, err)
		return domain.OrderReceipt{OrderID: order.OrderID, Status: order.Status},
			fmt.Errorf("order_service: create order: %w", err)
	}

	applyExchangeOrder(ctx, s.logger, order, xo, s.now())
	if err := s.orders.PutOrder(ctx, order); err != nil {
		return domain.OrderReceipt{}, &domain.PartialExecutionError{
			OrderID:         order.OrderID,
			ExchangeOrderID: order.ExchangeOrderID,
			Stage:           "persist order",
			Err:             err,
		}
	}

	s.sink.publish(ctx, domain.ChannelOrders, domain.NewOrderSignal(order))
	s.sink.record(ctx, "order_placed", map[string]any{
		"user_id":           owner,
		"order_id":          order.OrderID,
		"exchange_order_id": order.ExchangeOrderID,
		"symbol":            order.Symbol,
		"side":              string(order.Side),
		"type":              string(order.Type),
		"quantity":          order.Quantity,
		"status":            string(order.Status),
	})
	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.OrderID),
		slog.String("exchange_order_id", order.ExchangeOrderID),
		slog.String("symbol", order.Symbol),
		slog.String("status", string(order.Status)),
	)

	return domain.OrderReceipt{
		OrderID:         order.OrderID,
		Status:          order.Status,
		ExchangeOrderID: order.ExchangeOrderID,
	}, nil
}

// persistFailure stores order as an error record. Storage failures are
// logged only; the caller returns the exchange error regardless.
func (s *OrderService) persistFailure(ctx context.Context, order *domain.Order, cause error) {
	order.Fail(cause.Error(), s.now())
	if err := s.orders.PutOrder(ctx, order); err != nil {
		s.logger.WarnContext(ctx, "persist failed order",
			slog.String("order_id", order.OrderID),
			slog.String("error", err.Error()),
		)
	}
	s.sink.publish(ctx, domain.ChannelOrders, domain.NewOrderSignal(order))
	s.sink.record(ctx, "order_failed", map[string]any{
		"user_id":              order.UserID,
		"order_id":             order.OrderID,
		"symbol":               order.Symbol,
		"error":                cause.Error(),
		"side_effect_possible": domain.SideEffectPossible(cause),
	})
}

// Get returns the stored order.
func (s *OrderService) Get(ctx context.Context, owner, orderID string) (*domain.Order, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, domain.Invalid("order_id", "must not be empty")
	}
	o, err := s.orders.GetOrder(ctx, owner, orderID)
	if err != nil {
		return nil, fmt.Errorf("order_service: get order %q: %w", orderID, err)
	}
	return o, nil
}

// Cancel cancels the order on the exchange and stores it as cancelled. An
// order that never reached the exchange, or that already finished, is
// rejected before any exchange call.
func (s *OrderService) Cancel(ctx context.Context, owner, orderID string) (domain.OrderReceipt, error) {
	o, err := s.Get(ctx, owner, orderID)
	if err != nil {
		return domain.OrderReceipt{}, err
	}
	if o.ExchangeOrderID == "" {
		return domain.OrderReceipt{}, domain.Invalid("order_id", "order not yet sent to exchange")
	}
	if o.Status.Terminal() {
		return domain.OrderReceipt{}, domain.Invalid("status", fmt.Sprintf("order is already %s", o.Status))
	}

	xo, err := s.exchange.CancelOrder(ctx, o.Symbol, o.ExchangeOrderID)
	if err != nil {
		return domain.OrderReceipt{}, fmt.Errorf("order_service: cancel order %q: %w", orderID, err)
	}
	now := s.now()
	o.ApplyFill(xo.FilledQty, now)
	if err := o.Transition(domain.OrderStatusCancelled, now); err != nil {
		return domain.OrderReceipt{}, fmt.Errorf("order_service: cancel order %q: %w", orderID, err)
	}
	if err := s.orders.PutOrder(ctx, o); err != nil {
		return domain.OrderReceipt{}, &domain.PartialExecutionError{
			OrderID:         o.OrderID,
			ExchangeOrderID: o.ExchangeOrderID,
			Stage:           "persist cancel",
			Err:             err,
		}
	}

	s.sink.publish(ctx, domain.ChannelOrders, domain.NewOrderSignal(o))
	s.sink.record(ctx, "order_cancelled", map[string]any{
		"user_id":  owner,
		"order_id": o.OrderID,
	})
	s.logger.InfoContext(ctx, "order cancelled", slog.String("order_id", o.OrderID))

	return domain.OrderReceipt{
		OrderID:         o.OrderID,
		Status:          o.Status,
		ExchangeOrderID: o.ExchangeOrderID,
	}, nil
}

// Refresh reconciles a live order with the exchange: filled quantity and
// status move forward only. Finished orders are returned unchanged.
func (s *OrderService) Refresh(ctx context.Context, owner, orderID string) (*domain.Order, error) {
	o, err := s.Get(ctx, owner, orderID)
	if err != nil {
		return nil, err
	}
	if o.ExchangeOrderID == "" {
		return nil, domain.Invalid("order_id", "order not yet sent to exchange")
	}
	if o.Status.Terminal() {
		return o, nil
	}

	xo, err := s.exchange.GetOrder(ctx, o.Symbol, o.ExchangeOrderID)
	if err != nil {
		return nil, fmt.Errorf("order_service: refresh order %q: %w", orderID, err)
	}
	before := o.Status
	applyExchangeOrder(ctx, s.logger, o, xo, s.now())
	if err := s.orders.PutOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("order_service: refresh order %q: %w", orderID, err)
	}
	if o.Status != before {
		s.sink.publish(ctx, domain.ChannelOrders, domain.NewOrderSignal(o))
	}
	return o, nil
}

// RefreshOpen refreshes every open order of owner and returns how many are
// still open afterwards. Failures on single orders are joined.
func (s *OrderService) RefreshOpen(ctx context.Context, owner string) (int, error) {
	open, err := s.ListByStatus(ctx, owner, domain.OrderStatusOpen)
	if err != nil {
		return 0, err
	}
	var (
		errs  []error
		still int
	)
	for _, o := range open {
		updated, err := s.Refresh(ctx, owner, o.OrderID)
		if err != nil {
			errs = append(errs, err)
			still++
			continue
		}
		if updated.Status == domain.OrderStatusOpen {
			still++
		}
	}
	return still, errors.Join(errs...)
}

// ListByStatus returns owner's orders in status.
func (s *OrderService) ListByStatus(ctx context.Context, owner string, status domain.OrderStatus) ([]*domain.Order, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, domain.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	orders, err := s.orders.QueryOrdersByStatus(ctx, owner, status)
	if err != nil {
		return nil, fmt.Errorf("order_service: list %s orders: %w", status, err)
	}
	return orders, nil
}

// ListBetween returns owner's orders placed within [start, end].
func (s *OrderService) ListBetween(ctx context.Context, owner string, start, end time.Time) ([]*domain.Order, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, domain.Invalid("end", "must not be before start")
	}
	orders, err := s.orders.QueryOrdersBetween(ctx, owner, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("order_service: list orders: %w", err)
	}
	return orders, nil
}
