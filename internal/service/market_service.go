package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// MarketService serves ticker and account reads. Tickers are written
// through to the price cache so the feed and the API share one view.
type MarketService struct {
	exchange domain.Exchange
	prices   domain.PriceCache
	logger   *slog.Logger
}

// NewMarketService creates a MarketService. prices may be nil.
func NewMarketService(exchange domain.Exchange, prices domain.PriceCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		exchange: exchange,
		prices:   prices,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// GetTicker fetches the latest price from the exchange.
func (s *MarketService) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.Ticker{}, domain.Invalid("symbol", "must not be empty")
	}
	t, err := s.exchange.GetTicker(ctx, symbol)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("market_service: get ticker %s: %w", symbol, err)
	}
	if s.prices != nil {
		if err := s.prices.SetPrice(ctx, t.Symbol, t.Price, time.UnixMilli(t.Timestamp)); err != nil {
			s.logger.WarnContext(ctx, "price cache write failed",
				slog.String("symbol", t.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return t, nil
}

// CachedPrice returns the last cached price of symbol without calling the
// exchange.
func (s *MarketService) CachedPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	if s.prices == nil {
		return 0, time.Time{}, fmt.Errorf("market_service: cached price %s: %w", symbol, domain.ErrNotFound)
	}
	p, ts, err := s.prices.GetPrice(ctx, strings.ToUpper(symbol))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("market_service: cached price %s: %w", symbol, err)
	}
	return p, ts, nil
}

// GetBalance returns the account balances.
func (s *MarketService) GetBalance(ctx context.Context) ([]domain.Balance, error) {
	b, err := s.exchange.GetAccountBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: get balance: %w", err)
	}
	return b, nil
}
