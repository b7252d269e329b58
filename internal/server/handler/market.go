package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	GetTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	GetBalance(ctx context.Context) ([]domain.Balance, error)
}

// MarketHandler serves market data endpoints.
type MarketHandler struct {
	market MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(market MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		market: market,
		logger: logHandler(logger, "market"),
	}
}

// GetTicker returns the latest price for a symbol.
// GET /api/market/ticker/{symbol}
func (h *MarketHandler) GetTicker(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}
	ticker, err := h.market.GetTicker(r.Context(), symbol)
	if err != nil {
		writeServiceError(w, r, h.logger, "get ticker", err)
		return
	}
	writeJSON(w, http.StatusOK, ticker)
}

// GetBalance returns the account's non-zero balances.
// GET /api/market/balance
func (h *MarketHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balances, err := h.market.GetBalance(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}
