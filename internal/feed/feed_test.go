package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/service"
	"github.com/alanyoungcy/mexcsniper/internal/store/memory"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (f *fakePrices) SetPrice(_ context.Context, symbol string, price float64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
	return nil
}

func (f *fakePrices) GetPrice(context.Context, string) (float64, time.Time, error) {
	return 0, time.Time{}, domain.ErrNotFound
}

func (f *fakePrices) GetPrices(context.Context, []string) (map[string]float64, error) {
	return nil, nil
}

type chanBus struct{ ch chan []byte }

func (b *chanBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.ch, nil }

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestPriceFanoutRevaluesPositions(t *testing.T) {
	st := memory.New()
	pm := service.NewPositionManager(st, nil, nil, discard())
	ctx := context.Background()
	p, err := pm.OpenPosition(ctx, "alice", "NEWUSDT", 1, 10, domain.PositionSideLong)
	require.NoError(t, err)

	prices := &fakePrices{prices: map[string]float64{}}
	bus := &chanBus{ch: make(chan []byte, 4)}
	fan := NewPriceFanout(prices, bus, pm, []string{"alice"}, nil, discard())

	fan.Handle(ctx, map[string]float64{"NEWUSDT": 1.5}, time.Now())

	assert.Equal(t, 1.5, prices.prices["NEWUSDT"])
	var sig domain.PriceSignal
	require.NoError(t, json.Unmarshal(<-bus.ch, &sig))
	assert.Equal(t, "NEWUSDT", sig.Symbol)

	got, err := st.GetPosition(ctx, "alice", p.PositionID)
	require.NoError(t, err)
	require.NotNil(t, got.PnL)
	assert.InDelta(t, 5.0, *got.PnL, 1e-9)
}

func TestMarketFeedStreamsBatches(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, err = conn.ReadMessage() // subscription
		if err != nil {
			return
		}
		deal := `{"c":"spot@public.deals.v3.api@NEWUSDT","s":"NEWUSDT","d":{"deals":[` +
			`{"S":1,"p":"1.10","v":"5","t":1700000000000},{"S":2,"p":"1.25","v":"1","t":1700000000001}]}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(deal))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	batches := make(chan map[string]float64, 4)
	f := NewMarketFeed("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"newusdt"}, 20*time.Millisecond,
		func(_ context.Context, prices map[string]float64, _ time.Time) { batches <- prices }, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case got := <-batches:
		assert.Equal(t, map[string]float64{"NEWUSDT": 1.25}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no price batch received")
	}
	assert.True(t, f.Connected())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestMarketFeedWithoutSymbolsExits(t *testing.T) {
	f := NewMarketFeed("ws://unused", nil, 0, nil, discard())
	assert.NoError(t, f.Run(context.Background()))
}
