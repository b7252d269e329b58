package service

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/store/memory"
)

func newOrderService(t *testing.T) (*OrderService, *mockExchange, *flakyStore, *memAudit) {
	t.Helper()
	ex := &mockExchange{}
	st := &flakyStore{Store: memory.New()}
	audit := &memAudit{}
	svc := NewOrderService(st, ex, &recordBus{}, audit, testLogger())
	svc.now = clock
	t.Cleanup(func() { ex.AssertExpectations(t) })
	return svc, ex, st, audit
}

func ptr(v float64) *float64 { return &v }

func TestOrderCreateLimit(t *testing.T) {
	svc, ex, st, audit := newOrderService(t)
	ctx := context.Background()

	want := domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Quantity: 0.5, Price: ptr(60000)}
	ex.On("CreateOrder", mock.Anything, want).
		Return(domain.ExchangeOrder{OrderID: "mx-1", Status: "NEW"}, nil).Once()

	rec, err := svc.Create(ctx, "user-1", CreateOrderRequest{
		Symbol: " btcusdt ", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Quantity: 0.5, Price: ptr(60000),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, rec.Status)
	assert.Equal(t, "mx-1", rec.ExchangeOrderID)

	o, err := st.GetOrder(ctx, "user-1", rec.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", o.Symbol)
	assert.Equal(t, []string{"order_placed"}, audit.events)
}

func TestOrderCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		req   CreateOrderRequest
		field string
	}{
		{"no owner", "", CreateOrderRequest{Symbol: "X", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: 1}, "user_id"},
		{"no symbol", "u", CreateOrderRequest{Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: 1}, "symbol"},
		{"negative quantity", "u", CreateOrderRequest{Symbol: "X", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: -1}, "quantity"},
		{"limit without price", "u", CreateOrderRequest{Symbol: "X", Side: domain.OrderSideSell, Type: domain.OrderTypeLimit, Quantity: 1}, "price"},
		{"zero price", "u", CreateOrderRequest{Symbol: "X", Side: domain.OrderSideSell, Type: domain.OrderTypeLimit, Quantity: 1, Price: ptr(0)}, "price"},
		{"nan quantity", "u", CreateOrderRequest{Symbol: "X", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: math.NaN()}, "quantity"},
		{"inf quantity", "u", CreateOrderRequest{Symbol: "X", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: math.Inf(1)}, "quantity"},
		{"nan price", "u", CreateOrderRequest{Symbol: "X", Side: domain.OrderSideSell, Type: domain.OrderTypeLimit, Quantity: 1, Price: ptr(math.NaN())}, "price"},
		{"bad type", "u", CreateOrderRequest{Symbol: "X", Side: domain.OrderSideSell, Type: "stop", Quantity: 1}, "order_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ex, _, _ := newOrderService(t)
			_, err := svc.Create(context.Background(), tt.owner, tt.req)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			ex.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestOrderCreateRejectedIsStoredAsError(t *testing.T) {
	svc, ex, st, _ := newOrderService(t)
	ctx := context.Background()

	ex.On("CreateOrder", mock.Anything, mock.Anything).
		Return(domain.ExchangeOrder{}, &domain.UpstreamError{Op: "create_order", StatusCode: 400, Body: "bad symbol"}).Once()

	rec, err := svc.Create(ctx, "user-1", CreateOrderRequest{Symbol: "NOPE", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, domain.OrderStatusError, rec.Status)

	o, err := st.GetOrder(ctx, "user-1", rec.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusError, o.Status)
	assert.Contains(t, o.ErrorMessage, "bad symbol")
}

func TestOrderCreatePartialExecution(t *testing.T) {
	svc, ex, st, _ := newOrderService(t)
	st.failOrders = true
	ex.On("CreateOrder", mock.Anything, mock.Anything).
		Return(domain.ExchangeOrder{OrderID: "mx-3", Status: "FILLED", FilledQty: 1}, nil).Once()

	_, err := svc.Create(context.Background(), "user-1", CreateOrderRequest{Symbol: "X", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: 1})
	var partial *domain.PartialExecutionError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "mx-3", partial.ExchangeOrderID)
}

func seedOrder(t *testing.T, st *flakyStore, exchangeID string, status domain.OrderStatus) *domain.Order {
	t.Helper()
	o := domain.NewOrder("user-1", "ETHUSDT", domain.OrderSideBuy, domain.OrderTypeLimit, 2, ptr(3000), fixedNow)
	o.ExchangeOrderID = exchangeID
	o.Status = status
	require.NoError(t, st.Store.PutOrder(context.Background(), o))
	return o
}

func TestOrderCancel(t *testing.T) {
	svc, ex, st, audit := newOrderService(t)
	ctx := context.Background()
	o := seedOrder(t, st, "mx-7", domain.OrderStatusOpen)

	ex.On("CancelOrder", mock.Anything, "ETHUSDT", "mx-7").
		Return(domain.ExchangeOrder{OrderID: "mx-7", Status: "CANCELED", FilledQty: 0.5}, nil).Once()

	rec, err := svc.Cancel(ctx, "user-1", o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, rec.Status)

	got, err := st.GetOrder(ctx, "user-1", o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)
	assert.Equal(t, 0.5, got.FilledQuantity)
	assert.Equal(t, []string{"order_cancelled"}, audit.events)
}

func TestOrderCancelRejected(t *testing.T) {
	svc, ex, st, _ := newOrderService(t)
	ctx := context.Background()

	unsent := seedOrder(t, st, "", domain.OrderStatusPending)
	_, err := svc.Cancel(ctx, "user-1", unsent.OrderID)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "order not yet sent to exchange", verr.Reason)

	filled := seedOrder(t, st, "mx-8", domain.OrderStatusFilled)
	_, err = svc.Cancel(ctx, "user-1", filled.OrderID)
	require.ErrorAs(t, err, &verr)

	_, err = svc.Cancel(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ex.AssertNotCalled(t, "CancelOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderRefreshMovesForwardOnly(t *testing.T) {
	svc, ex, st, _ := newOrderService(t)
	ctx := context.Background()
	o := seedOrder(t, st, "mx-5", domain.OrderStatusOpen)

	ex.On("GetOrder", mock.Anything, "ETHUSDT", "mx-5").
		Return(domain.ExchangeOrder{OrderID: "mx-5", Status: "FILLED", FilledQty: 2}, nil).Once()

	got, err := svc.Refresh(ctx, "user-1", o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.Equal(t, 2.0, got.FilledQuantity)

	// Terminal now; no further exchange call.
	got, err = svc.Refresh(ctx, "user-1", o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
}

func TestOrderRefreshOpen(t *testing.T) {
	svc, ex, st, _ := newOrderService(t)
	a := seedOrder(t, st, "mx-a", domain.OrderStatusOpen)
	seedOrder(t, st, "mx-b", domain.OrderStatusOpen)
	seedOrder(t, st, "mx-c", domain.OrderStatusFilled)

	ex.On("GetOrder", mock.Anything, "ETHUSDT", "mx-a").
		Return(domain.ExchangeOrder{OrderID: "mx-a", Status: "FILLED", FilledQty: 2}, nil).Once()
	ex.On("GetOrder", mock.Anything, "ETHUSDT", "mx-b").
		Return(domain.ExchangeOrder{OrderID: "mx-b", Status: "PARTIALLY_FILLED", FilledQty: 1}, nil).Once()

	still, err := svc.RefreshOpen(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, still)

	got, err := st.GetOrder(context.Background(), "user-1", a.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
}

func TestOrderListByStatusRejectsUnknown(t *testing.T) {
	svc, _, _, _ := newOrderService(t)
	_, err := svc.ListByStatus(context.Background(), "user-1", "weird")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}
