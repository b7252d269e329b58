package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func clock() time.Time { return fixedNow }

type mockExchange struct{ mock.Mock }

func (m *mockExchange) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(domain.Ticker), args.Error(1)
}

func (m *mockExchange) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.ExchangeOrder, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.ExchangeOrder), args.Error(1)
}

func (m *mockExchange) GetOrder(ctx context.Context, symbol, orderID string) (domain.ExchangeOrder, error) {
	args := m.Called(ctx, symbol, orderID)
	return args.Get(0).(domain.ExchangeOrder), args.Error(1)
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol, orderID string) (domain.ExchangeOrder, error) {
	args := m.Called(ctx, symbol, orderID)
	return args.Get(0).(domain.ExchangeOrder), args.Error(1)
}

func (m *mockExchange) GetAccountBalance(ctx context.Context) ([]domain.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Balance), args.Error(1)
}

// flakyStore fails selected writes and counts the rest.
type flakyStore struct {
	*memory.Store
	failOrders bool
	failEvents bool
	orderPuts  int
	eventPuts  int
}

var errStoreDown = errors.New("store down")

func (f *flakyStore) PutOrder(ctx context.Context, o *domain.Order) error {
	if f.failOrders {
		return errStoreDown
	}
	f.orderPuts++
	return f.Store.PutOrder(ctx, o)
}

func (f *flakyStore) PutCalendarEvent(ctx context.Context, e *domain.CalendarEvent) error {
	if f.failEvents {
		return errStoreDown
	}
	f.eventPuts++
	return f.Store.PutCalendarEvent(ctx, e)
}

type published struct {
	channel string
	payload []byte
}

type recordBus struct {
	mu      sync.Mutex
	msgs    []published
	streams []published
}

func (b *recordBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{channel, payload})
	return nil
}

func (b *recordBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *recordBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams = append(b.streams, published{stream, payload})
	return nil
}

func (b *recordBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *recordBus) channel(name string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, m := range b.msgs {
		if m.channel == name {
			out = append(out, m)
		}
	}
	return out
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
