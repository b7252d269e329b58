package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/metrics"
)

// PositionRevaluer re-marks an owner's open positions.
type PositionRevaluer interface {
	Revalue(ctx context.Context, owner string, prices map[string]float64) (open, updated int, err error)
}

// PriceFanout distributes a price batch: the price cache, the "prices"
// channel of the signal bus, then each owner's open positions.
type PriceFanout struct {
	prices    domain.PriceCache
	bus       domain.SignalBus
	positions PositionRevaluer
	owners    []string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewPriceFanout creates a PriceFanout. prices, bus, positions and m may be
// nil.
func NewPriceFanout(
	prices domain.PriceCache,
	bus domain.SignalBus,
	positions PositionRevaluer,
	owners []string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PriceFanout {
	return &PriceFanout{
		prices:    prices,
		bus:       bus,
		positions: positions,
		owners:    owners,
		metrics:   m,
		logger:    logger.With(slog.String("component", "price_fanout")),
	}
}

// Handle is a BatchHandler.
func (p *PriceFanout) Handle(ctx context.Context, prices map[string]float64, at time.Time) {
	for symbol, price := range prices {
		if p.prices != nil {
			if err := p.prices.SetPrice(ctx, symbol, price, at); err != nil {
				p.logger.WarnContext(ctx, "price cache write failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
		}
		if p.bus != nil {
			payload, _ := json.Marshal(domain.PriceSignal{Symbol: symbol, Price: price, At: at.UTC()})
			if err := p.bus.Publish(ctx, domain.ChannelPrices, payload); err != nil {
				p.logger.WarnContext(ctx, "publish price failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if p.positions == nil {
		return
	}
	total := 0
	for _, owner := range p.owners {
		open, updated, err := p.positions.Revalue(ctx, owner, prices)
		total += open
		if err != nil {
			p.logger.WarnContext(ctx, "revalue positions failed",
				slog.String("user_id", owner),
				slog.String("error", err.Error()),
			)
			continue
		}
		if updated > 0 {
			p.logger.DebugContext(ctx, "positions revalued",
				slog.String("user_id", owner),
				slog.Int("updated", updated),
			)
		}
	}
	p.metrics.SetActivePositions(total)
}
