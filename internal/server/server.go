// Package server exposes the sniper's HTTP and websocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/metrics"
	"github.com/alanyoungcy/mexcsniper/internal/server/handler"
	"github.com/alanyoungcy/mexcsniper/internal/server/middleware"
	"github.com/alanyoungcy/mexcsniper/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Per-client request budget; RateLimit <= 0 disables limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Orders    *handler.OrderHandler
	Market    *handler.MarketHandler
	Positions *handler.PositionHandler
	Calendar  *handler.CalendarHandler
	Snipe     *handler.SnipeHandler
	SnipeLog  *handler.SnipeLogHandler
	Admin     *handler.AdminHandler
	Pipeline  *handler.PipelineHandler
}

// Deps are the optional collaborators shared by the middleware chain.
type Deps struct {
	Limiter domain.RateLimiter
	Metrics *metrics.Metrics
	Hub     *ws.Hub
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// publicPaths are served without authentication.
var publicPaths = []string{"/health", "/ready", "/metrics"}

// NewServer creates a new Server with all routes registered on the ServeMux.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))

	s := &Server{logger: logger}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, deps, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health.
	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /ready", handlers.Health.Ready)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Trading.
	mux.HandleFunc("POST /api/trade/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/trade/orders/{owner}", handlers.Orders.ListOrders)
	mux.HandleFunc("GET /api/trade/orders/{owner}/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/trade/orders/{owner}/{id}", handlers.Orders.CancelOrder)
	mux.HandleFunc("POST /api/trade/orders/{owner}/{id}/refresh", handlers.Orders.RefreshOrder)

	// Market data.
	mux.HandleFunc("GET /api/market/ticker/{symbol}", handlers.Market.GetTicker)
	mux.HandleFunc("GET /api/market/balance", handlers.Market.GetBalance)

	// Positions.
	mux.HandleFunc("GET /api/positions/{owner}", handlers.Positions.ListPositions)
	mux.HandleFunc("POST /api/positions", handlers.Positions.OpenPosition)
	mux.HandleFunc("POST /api/positions/{owner}/{id}/price", handlers.Positions.UpdatePrice)
	mux.HandleFunc("POST /api/positions/{owner}/{id}/close", handlers.Positions.ClosePosition)

	// Calendar and sniping.
	mux.HandleFunc("POST /api/calendar/detect", handlers.Calendar.Detect)
	mux.HandleFunc("GET /api/calendar/{owner}", handlers.Calendar.ListEvents)
	mux.HandleFunc("POST /api/snipe", handlers.Snipe.ExecuteSnipe)
	mux.HandleFunc("GET /api/snipes", handlers.SnipeLog.ListSnipes)
	mux.HandleFunc("POST /api/pipeline/trigger", handlers.Pipeline.TriggerScan)

	mux.HandleFunc("GET /api/admin/settings", handlers.Admin.GetSettings)
	mux.HandleFunc("GET /api/admin/audit", handlers.Admin.ListAudit)

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	// Outermost first on the way in: CORS, logging, metrics, rate limit, auth.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, publicPaths...)(h)
	h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	h = middleware.Metrics(deps.Metrics)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
