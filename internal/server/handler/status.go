package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// Exchange health values.
const (
	ExchangeHealthy  = "healthy"
	ExchangeDegraded = "degraded"
)

// healthSymbol is the ticker used to check the exchange is answering.
const healthSymbol = "BTCUSDT"

// TickerSource is anything that can fetch a ticker.
type TickerSource interface {
	GetTicker(ctx context.Context, symbol string) (domain.Ticker, error)
}

// StatusHandler reports the bot's operational state.
type StatusHandler struct {
	mode    string
	market  TickerSource
	store   Pinger
	feedUp  func() bool
	started time.Time
	logger  *slog.Logger
}

// NewStatusHandler creates a StatusHandler. store and feedUp may be nil.
func NewStatusHandler(mode string, market TickerSource, store Pinger, feedUp func() bool, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:    mode,
		market:  market,
		store:   store,
		feedUp:  feedUp,
		started: time.Now(),
		logger:  logHandler(logger, "status"),
	}
}

// Status builds the current BotStatus.
func (h *StatusHandler) Status(ctx context.Context) domain.BotStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st := domain.BotStatus{
		Mode:          h.mode,
		Exchange:      ExchangeHealthy,
		StoreReady:    true,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	if _, err := h.market.GetTicker(ctx, healthSymbol); err != nil {
		h.logger.WarnContext(ctx, "exchange health check failed", slog.String("error", err.Error()))
		st.Exchange = ExchangeDegraded
	}
	if h.store != nil {
		st.StoreReady = h.store.Ping(ctx) == nil
	}
	if h.feedUp != nil {
		st.FeedConnected = h.feedUp()
	}
	return st
}

// GetStatus responds with the current BotStatus.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Status(r.Context()))
}
