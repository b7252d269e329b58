package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	GetOpenPositions(ctx context.Context, owner string) ([]*domain.Position, error)
	OpenPosition(ctx context.Context, owner, symbol string, entry, quantity float64, side domain.PositionSide) (*domain.Position, error)
	UpdatePositionPrice(ctx context.Context, owner, positionID string, price float64) (*domain.Position, error)
	ClosePosition(ctx context.Context, owner, positionID string, closePrice float64) (float64, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []*domain.Position `json:"positions"`
}

type openPositionRequest struct {
	UserID     string  `json:"user_id"`
	Symbol     string  `json:"symbol"`
	EntryPrice float64 `json:"entry_price"`
	Quantity   float64 `json:"quantity"`
	Side       string  `json:"side"`
}

type priceRequest struct {
	Price float64 `json:"price"`
}

// ListPositions returns all open positions for an owner.
// GET /api/positions/{owner}
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.GetOpenPositions(r.Context(), pathParam(r, "owner"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}
	if positions == nil {
		positions = []*domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// OpenPosition records a new open position.
// POST /api/positions
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "open position", err)
		return
	}
	side, err := domain.ParsePositionSide(req.Side)
	if err != nil {
		writeServiceError(w, r, h.logger, "open position", err)
		return
	}
	p, err := h.positions.OpenPosition(r.Context(), req.UserID, req.Symbol, req.EntryPrice, req.Quantity, side)
	if err != nil {
		writeServiceError(w, r, h.logger, "open position", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePrice revalues a position at a new price.
// POST /api/positions/{owner}/{id}/price
func (h *PositionHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "update position price", err)
		return
	}
	p, err := h.positions.UpdatePositionPrice(r.Context(), pathParam(r, "owner"), pathParam(r, "id"), req.Price)
	if err != nil {
		writeServiceError(w, r, h.logger, "update position price", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ClosePosition closes a position and reports the realized PnL.
// POST /api/positions/{owner}/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "close position", err)
		return
	}
	id := pathParam(r, "id")
	realized, err := h.positions.ClosePosition(r.Context(), pathParam(r, "owner"), id, req.Price)
	if err != nil {
		writeServiceError(w, r, h.logger, "close position", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position_id":  id,
		"status":       domain.PositionStatusClosed,
		"realized_pnl": realized,
	})
}
