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

// PositionManager opens, marks and closes positions. Every operation reads
// the current record from the store first.
type PositionManager struct {
	positions domain.PositionStore
	sink      sink
	logger    *slog.Logger
	now       func() time.Time
}

// NewPositionManager creates a PositionManager. bus and audit may be nil.
func NewPositionManager(
	positions domain.PositionStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionManager {
	logger = logger.With(slog.String("component", "position_manager"))
	return &PositionManager{
		positions: positions,
		sink:      sink{bus: bus, audit: audit, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// OpenPosition stores a new open position marked at its entry price.
func (m *PositionManager) OpenPosition(ctx context.Context, owner, symbol string, entry, quantity float64, side domain.PositionSide) (*domain.Position, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	p := domain.NewPosition(owner, symbol, entry, quantity, side, m.now())
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := m.positions.PutPosition(ctx, p); err != nil {
		return nil, fmt.Errorf("position_manager: open position: %w", err)
	}

	m.sink.record(ctx, "position_opened", map[string]any{
		"user_id":     owner,
		"position_id": p.PositionID,
		"symbol":      p.Symbol,
		"side":        string(p.Side),
		"entry_price": p.EntryPrice,
		"quantity":    p.Quantity,
	})
	m.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", p.PositionID),
		slog.String("symbol", p.Symbol),
		slog.String("side", string(p.Side)),
		slog.Float64("entry_price", p.EntryPrice),
	)
	return p, nil
}

// openPosition loads a position that must still be open.
func (m *PositionManager) openPosition(ctx context.Context, owner, positionID string) (*domain.Position, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if positionID == "" {
		return nil, domain.Invalid("position_id", "must not be empty")
	}
	p, err := m.positions.GetPosition(ctx, owner, positionID)
	if err != nil {
		return nil, fmt.Errorf("position_manager: get position %q: %w", positionID, err)
	}
	if p.Status != domain.PositionStatusOpen {
		return nil, domain.Invalid("status", fmt.Sprintf("position %s is %s", positionID, p.Status))
	}
	return p, nil
}

// UpdatePositionPrice marks the position at price and recomputes its PnL.
func (m *PositionManager) UpdatePositionPrice(ctx context.Context, owner, positionID string, price float64) (*domain.Position, error) {
	if !domain.PositiveFinite(price) {
		return nil, domain.Invalid("current_price", "must be positive and finite")
	}
	p, err := m.openPosition(ctx, owner, positionID)
	if err != nil {
		return nil, err
	}
	p.Revalue(price, m.now())
	if err := m.positions.PutPosition(ctx, p); err != nil {
		return nil, fmt.Errorf("position_manager: update position %q: %w", positionID, err)
	}
	return p, nil
}

// ClosePosition marks the position at closePrice, closes it and returns the
// realized PnL.
func (m *PositionManager) ClosePosition(ctx context.Context, owner, positionID string, closePrice float64) (float64, error) {
	if !domain.PositiveFinite(closePrice) {
		return 0, domain.Invalid("close_price", "must be positive and finite")
	}
	p, err := m.openPosition(ctx, owner, positionID)
	if err != nil {
		return 0, err
	}
	p.Revalue(closePrice, m.now())
	p.Status = domain.PositionStatusClosed
	if err := m.positions.PutPosition(ctx, p); err != nil {
		return 0, fmt.Errorf("position_manager: close position %q: %w", positionID, err)
	}

	m.sink.record(ctx, "position_closed", map[string]any{
		"user_id":     owner,
		"position_id": p.PositionID,
		"symbol":      p.Symbol,
		"close_price": closePrice,
		"pnl":         *p.PnL,
	})
	m.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", p.PositionID),
		slog.Float64("pnl", *p.PnL),
		slog.Float64("pnl_percentage", *p.PnLPercentage),
	)
	return *p.PnL, nil
}

// GetOpenPositions returns owner's open positions.
func (m *PositionManager) GetOpenPositions(ctx context.Context, owner string) ([]*domain.Position, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	ps, err := m.positions.QueryOpenPositions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("position_manager: open positions: %w", err)
	}
	return ps, nil
}

// RevalueSymbol marks every open position of owner in symbol at price and
// returns how many were updated.
func (m *PositionManager) RevalueSymbol(ctx context.Context, owner, symbol string, price float64) (int, error) {
	if !domain.PositiveFinite(price) {
		return 0, domain.Invalid("price", "must be positive and finite")
	}
	_, updated, err := m.Revalue(ctx, owner, map[string]float64{strings.ToUpper(symbol): price})
	return updated, err
}

// Revalue marks owner's open positions at prices (keyed by upper-case
// symbol). It returns the number of open positions and how many of them
// were re-marked. Non-positive prices are ignored.
func (m *PositionManager) Revalue(ctx context.Context, owner string, prices map[string]float64) (open, updated int, err error) {
	positions, err := m.GetOpenPositions(ctx, owner)
	if err != nil {
		return 0, 0, err
	}
	var errs []error
	now := m.now()
	for _, p := range positions {
		price, ok := prices[strings.ToUpper(p.Symbol)]
		if !ok || !domain.PositiveFinite(price) {
			continue
		}
		p.Revalue(price, now)
		if err := m.positions.PutPosition(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("position_manager: revalue %q: %w", p.PositionID, err))
			continue
		}
		updated++
	}
	return len(positions), updated, errors.Join(errs...)
}
