// Package service holds the business operations of the sniper: order
// placement, position tracking, calendar ingestion and the snipe itself.
// Services are built once at startup and shared by the HTTP API and the
// scanner.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// sink bundles the best-effort side channels every service writes to. Each
// field may be nil.
type sink struct {
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

func (s sink) publish(ctx context.Context, channel string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err == nil {
		err = s.bus.Publish(ctx, channel, payload)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s sink) stream(ctx context.Context, stream string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err == nil {
		err = s.bus.StreamAppend(ctx, stream, payload)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
	}
}

func (s sink) record(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// applyExchangeOrder copies the exchange's view of an order onto o. Unknown
// exchange statuses leave the order open, since the exchange did accept it.
// A status that would move the order backwards is ignored.
func applyExchangeOrder(ctx context.Context, logger *slog.Logger, o *domain.Order, xo domain.ExchangeOrder, now time.Time) {
	if xo.OrderID != "" {
		o.ExchangeOrderID = xo.OrderID
	}
	if o.ApplyFill(xo.FilledQty, now) {
		logger.WarnContext(ctx, "exchange fill out of range, clamped",
			slog.String("order_id", o.OrderID),
			slog.Float64("reported", xo.FilledQty),
			slog.Float64("quantity", o.Quantity),
		)
	}
	status, err := domain.ParseOrderStatus(xo.Status)
	if err != nil {
		logger.WarnContext(ctx, "unknown exchange order status",
			slog.String("order_id", o.OrderID),
			slog.String("status", xo.Status),
		)
		status = domain.OrderStatusOpen
	}
	if err := o.Transition(status, now); err != nil {
		logger.WarnContext(ctx, "ignoring exchange status",
			slog.String("order_id", o.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func requireOwner(owner string) error {
	if owner == "" {
		return domain.Invalid("user_id", "must not be empty")
	}
	return nil
}
