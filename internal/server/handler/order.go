package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/service"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	Create(ctx context.Context, owner string, req service.CreateOrderRequest) (domain.OrderReceipt, error)
	Get(ctx context.Context, owner, orderID string) (*domain.Order, error)
	Cancel(ctx context.Context, owner, orderID string) (domain.OrderReceipt, error)
	Refresh(ctx context.Context, owner, orderID string) (*domain.Order, error)
	ListByStatus(ctx context.Context, owner string, status domain.OrderStatus) ([]*domain.Order, error)
	ListBetween(ctx context.Context, owner string, start, end time.Time) ([]*domain.Order, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
	now    func() time.Time
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logHandler(logger, "orders"),
		now:    time.Now,
	}
}

// createOrderRequest is the JSON body for PlaceOrder.
type createOrderRequest struct {
	UserID    string   `json:"user_id"`
	Symbol    string   `json:"symbol"`
	Side      string   `json:"side"`
	OrderType string   `json:"order_type"`
	Quantity  float64  `json:"quantity"`
	Price     *float64 `json:"price,omitempty"`
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []*domain.Order `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// PlaceOrder sends a new order to the exchange.
// POST /api/trade/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "place order", err)
		return
	}
	side, err := domain.ParseOrderSide(req.Side)
	if err != nil {
		writeServiceError(w, r, h.logger, "place order", err)
		return
	}
	typ, err := domain.ParseOrderType(req.OrderType)
	if err != nil {
		writeServiceError(w, r, h.logger, "place order", err)
		return
	}

	receipt, err := h.orders.Create(r.Context(), req.UserID, service.CreateOrderRequest{
		Symbol:   req.Symbol,
		Side:     side,
		Type:     typ,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// GetOrder returns one order.
// GET /api/trade/orders/{owner}/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), pathParam(r, "owner"), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder cancels an open order on the exchange.
// DELETE /api/trade/orders/{owner}/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.orders.Cancel(r.Context(), pathParam(r, "owner"), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// RefreshOrder re-reads an order's state from the exchange.
// POST /api/trade/orders/{owner}/{id}/refresh
func (h *OrderHandler) RefreshOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Refresh(r.Context(), pathParam(r, "owner"), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "refresh order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListOrders returns an owner's orders, either by status or by creation time
// (default: the last seven days).
// GET /api/trade/orders/{owner}?status=open
// GET /api/trade/orders/{owner}?start=...&end=...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	owner := pathParam(r, "owner")
	opts := parseListOpts(r)

	var (
		orders []*domain.Order
		err    error
	)
	if s := r.URL.Query().Get("status"); s != "" {
		status, perr := domain.ParseOrderStatus(s)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		orders, err = h.orders.ListByStatus(r.Context(), owner, status)
	} else {
		now := h.now().UTC()
		start, end, perr := timeRange(r, now.Add(-7*24*time.Hour), now)
		if perr != nil {
			writeServiceError(w, r, h.logger, "list orders", perr)
			return
		}
		orders, err = h.orders.ListBetween(r.Context(), owner, start, end)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "list orders", err)
		return
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{
		Orders: page(orders, opts),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// timeRange reads the start and end query parameters.
func timeRange(r *http.Request, defStart, defEnd time.Time) (time.Time, time.Time, error) {
	start, err := parseTimeParam(r, "start", defStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTimeParam(r, "end", defEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, domain.Invalid("end", "must not be before start")
	}
	return start, end, nil
}
