package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

type mapPrices struct {
	prices map[string]float64
	times  map[string]time.Time
}

func newMapPrices() *mapPrices {
	return &mapPrices{prices: map[string]float64{}, times: map[string]time.Time{}}
}

func (m *mapPrices) SetPrice(_ context.Context, symbol string, price float64, ts time.Time) error {
	m.prices[symbol] = price
	m.times[symbol] = ts
	return nil
}

func (m *mapPrices) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	p, ok := m.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, m.times[symbol], nil
}

func (m *mapPrices) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, s := range symbols {
		if p, ok := m.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func TestGetTickerWritesThrough(t *testing.T) {
	ex := &mockExchange{}
	prices := newMapPrices()
	svc := NewMarketService(ex, prices, testLogger())
	ctx := context.Background()

	ex.On("GetTicker", mock.Anything, "BTCUSDT").
		Return(domain.Ticker{Symbol: "BTCUSDT", Price: 65000.5, Timestamp: fixedNow.UnixMilli()}, nil).Once()

	tk, err := svc.GetTicker(ctx, "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, 65000.5, tk.Price)

	p, ts, err := svc.CachedPrice(ctx, "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, 65000.5, p)
	assert.True(t, ts.Equal(fixedNow))
	ex.AssertExpectations(t)
}

func TestGetTickerErrors(t *testing.T) {
	ex := &mockExchange{}
	svc := NewMarketService(ex, nil, testLogger())
	ctx := context.Background()

	_, err := svc.GetTicker(ctx, " ")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	ex.On("GetTicker", mock.Anything, "NOPE").
		Return(domain.Ticker{}, &domain.UpstreamError{Op: "get_ticker", StatusCode: 404, Body: "{}"}).Once()
	_, err = svc.GetTicker(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = svc.CachedPrice(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetBalance(t *testing.T) {
	ex := &mockExchange{}
	svc := NewMarketService(ex, nil, testLogger())
	ex.On("GetAccountBalance", mock.Anything).Return([]domain.Balance{{Asset: "USDT", Free: 10}}, nil).Once()
	ex.On("GetAccountBalance", mock.Anything).Return([]domain.Balance(nil), errors.New("boom")).Once()

	b, err := svc.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Len(t, b, 1)

	_, err = svc.GetBalance(context.Background())
	assert.Error(t, err)
}
