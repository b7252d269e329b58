// Package feed turns the exchange's public trade stream into price updates
// for the cache, the signal bus and open positions.
package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/platform/mexc"
)

// BatchHandler receives the latest price per symbol once per flush.
type BatchHandler func(ctx context.Context, prices map[string]float64, at time.Time)

// MarketFeed subscribes to the MEXC deals stream for a set of symbols and
// hands the last traded price of each symbol to a BatchHandler at a fixed
// interval. It reconnects on disconnect.
type MarketFeed struct {
	wsURL      string
	symbols    []string
	flushEvery time.Duration
	handle     BatchHandler
	logger     *slog.Logger

	connected atomic.Bool

	mu     sync.Mutex
	latest map[string]float64
}

// NewMarketFeed creates a feed for symbols.
func NewMarketFeed(wsURL string, symbols []string, flushEvery time.Duration, handle BatchHandler, logger *slog.Logger) *MarketFeed {
	if flushEvery <= 0 {
		flushEvery = time.Second
	}
	upper := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			upper = append(upper, s)
		}
	}
	return &MarketFeed{
		wsURL:      wsURL,
		symbols:    upper,
		flushEvery: flushEvery,
		handle:     handle,
		logger:     logger.With(slog.String("component", "market_feed")),
		latest:     make(map[string]float64),
	}
}

// Connected reports whether the stream is currently up.
func (f *MarketFeed) Connected() bool {
	return f.connected.Load()
}

// Run streams until ctx is cancelled, reconnecting with backoff.
func (f *MarketFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	go f.flushLoop(ctx)

	backoff := time.Second
	for {
		start := time.Now()
		err := f.runConnection(ctx)
		f.connected.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > time.Minute {
			backoff = time.Second
		}
		if err == nil {
			err = domain.ErrWSDisconnect
		}
		f.logger.Warn("mexc ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (f *MarketFeed) runConnection(ctx context.Context) error {
	client := mexc.NewWSClient(f.wsURL)
	client.OnTrade(f.record)

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(dialCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.SubscribeTrades(f.symbols); err != nil {
		return err
	}
	f.connected.Store(true)
	f.logger.Info("mexc ws subscribed", slog.Int("symbols", len(f.symbols)))
	return client.Run(ctx)
}

func (f *MarketFeed) record(t domain.TradeTick) {
	if t.Price <= 0 {
		return
	}
	f.mu.Lock()
	f.latest[strings.ToUpper(t.Symbol)] = t.Price
	f.mu.Unlock()
}

// drain returns and clears the prices collected since the last flush.
func (f *MarketFeed) drain() map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.latest) == 0 {
		return nil
	}
	out := f.latest
	f.latest = make(map[string]float64, len(out))
	return out
}

func (f *MarketFeed) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(f.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if prices := f.drain(); prices != nil && f.handle != nil {
				f.handle(ctx, prices, now)
			}
		}
	}
}
