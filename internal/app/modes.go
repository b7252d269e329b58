package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/mexcsniper/internal/config"
	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/feed"
	"github.com/alanyoungcy/mexcsniper/internal/pattern"
	"github.com/alanyoungcy/mexcsniper/internal/pipeline"
	"github.com/alanyoungcy/mexcsniper/internal/server"
	"github.com/alanyoungcy/mexcsniper/internal/server/handler"
	"github.com/alanyoungcy/mexcsniper/internal/server/ws"
	"github.com/alanyoungcy/mexcsniper/internal/service"
)

// services are the domain services shared by every mode.
type services struct {
	orders    *service.OrderService
	market    *service.MarketService
	positions *service.PositionManager
	calendar  *service.CalendarService
	sniper    *service.SnipingManager
}

func (a *App) buildServices(deps *Dependencies) *services {
	return &services{
		orders:    service.NewOrderService(deps.Store, deps.Exchange, deps.SignalBus, deps.Audit, a.logger),
		market:    service.NewMarketService(deps.Exchange, deps.PriceCache, a.logger),
		positions: service.NewPositionManager(deps.Store, deps.SignalBus, deps.Audit, a.logger),
		calendar: service.NewCalendarService(deps.Store, pattern.NewDetector(a.cfg.Sniper.MinConfidence),
			deps.SignalBus, deps.Notifier, a.logger),
		sniper: service.NewSnipingManager(deps.Exchange, deps.Store, deps.Store, deps.SignalBus,
			deps.Audit, deps.Notifier, deps.Metrics, a.logger),
	}
}

// APIMode serves the HTTP API only.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, a.buildServices(deps), nil, nil)
	return g.Wait()
}

// ScannerMode runs the calendar scanner and, when enabled, the market feed.
func (a *App) ScannerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scanner mode")
	svc := a.buildServices(deps)
	scanner := a.newScanner(deps, svc)
	marketFeed := a.newMarketFeed(deps, svc)

	var runner pipeline.Runner
	if marketFeed != nil {
		runner = marketFeed
	}
	return pipeline.NewOrchestrator(scanner, runner, nil, "", a.logger).Run(ctx)
}

// ArchiveMode performs one archive pass and exits, for use from an external
// scheduler.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	return a.newArchiver(deps).Run(ctx)
}

// FullMode runs the API, the scanner, the market feed and the archive cron
// in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)

	svc := a.buildServices(deps)
	trigger := make(chan struct{}, 1)
	scanner := a.newScanner(deps, svc).WithTrigger(trigger)
	marketFeed := a.newMarketFeed(deps, svc)

	var (
		runner   pipeline.Runner
		feedUp   func() bool
		archiver *pipeline.Archiver
	)
	if marketFeed != nil {
		runner = marketFeed
		feedUp = marketFeed.Connected
	}
	if deps.Archiver != nil {
		archiver = a.newArchiver(deps)
	}

	orch := pipeline.NewOrchestrator(scanner, runner, archiver, a.cfg.Archive.Cron, a.logger)
	g.Go(func() error { return orch.Run(ctx) })

	a.startHTTPServer(ctx, g, deps, svc, trigger, feedUp)
	return g.Wait()
}

func (a *App) newScanner(deps *Dependencies, svc *services) *pipeline.Scanner {
	side, err := domain.ParseOrderSide(a.cfg.Sniper.Side)
	if err != nil {
		side = domain.OrderSideBuy
	}
	return pipeline.NewScanner(pipeline.ScannerConfig{
		Owners:    a.cfg.Sniper.Owners,
		Interval:  a.cfg.Sniper.ScanInterval.Duration,
		Lead:      a.cfg.Sniper.Lead.Duration,
		MissAfter: a.cfg.Sniper.MissAfter.Duration,
		Lookback:  a.cfg.Sniper.Lookback.Duration,
		Params:    domain.SnipeParams{Side: side, Quantity: a.cfg.Sniper.Quantity},
		LockTTL:   a.cfg.Sniper.LockTTL.Duration,
		Parallel:  a.cfg.Sniper.Parallel,
	}, svc.calendar, svc.sniper, svc.orders, deps.LockManager, deps.Notifier, deps.Metrics, a.logger)
}

// newMarketFeed returns nil when the feed is disabled.
func (a *App) newMarketFeed(deps *Dependencies, svc *services) *feed.MarketFeed {
	if !a.cfg.Feed.Enabled {
		return nil
	}
	symbols := make([]string, 0, len(a.cfg.Feed.Symbols))
	for _, s := range a.cfg.Feed.Symbols {
		symbols = append(symbols, strings.ToUpper(s))
	}
	fanout := feed.NewPriceFanout(deps.PriceCache, deps.SignalBus, svc.positions, a.cfg.Sniper.Owners, deps.Metrics, a.logger)
	return feed.NewMarketFeed(a.cfg.MEXC.WSURL, symbols, a.cfg.Feed.FlushInterval.Duration, fanout.Handle, a.logger)
}

func (a *App) newArchiver(deps *Dependencies) *pipeline.Archiver {
	age := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	return pipeline.NewArchiver(deps.Archiver, a.cfg.Sniper.Owners, age, a.logger)
}

// startHTTPServer registers the API server (and websocket hub, when a bus is
// available) on g. trigger and feedUp may be nil.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svc *services,
	trigger chan<- struct{},
	feedUp func() bool,
) {
	status := handler.NewStatusHandler(a.cfg.Mode, svc.market, deps.Store, feedUp, a.logger)

	var hub *ws.Hub
	var snipeLog handler.StreamReader
	if deps.SignalBus != nil {
		snipeLog = deps.SignalBus
		hub = ws.NewHub(deps.SignalBus, func() domain.BotStatus { return status.Status(ctx) }, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	pipelineH := handler.NewPipelineHandler(a.logger)
	if trigger != nil {
		pipelineH = pipelineH.WithTriggerChannel(trigger)
	}
	redactedCfg := config.RedactedConfig(a.cfg)

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.Store, a.logger),
		Status:    status,
		Orders:    handler.NewOrderHandler(svc.orders, a.logger),
		Market:    handler.NewMarketHandler(svc.market, a.logger),
		Positions: handler.NewPositionHandler(svc.positions, a.logger),
		Calendar:  handler.NewCalendarHandler(svc.calendar, a.logger),
		Snipe:     handler.NewSnipeHandler(svc.calendar, svc.sniper, a.logger),
		SnipeLog:  handler.NewSnipeLogHandler(snipeLog, a.logger),
		Admin:     handler.NewAdminHandler(func() any { return redactedCfg }, deps.Audit, a.logger),
		Pipeline:  pipelineH,
	}, server.Deps{
		Limiter: deps.RateLimiter,
		Metrics: deps.Metrics,
		Hub:     hub,
	}, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "http server listening", slog.Int("port", a.cfg.Server.Port))
		return srv.Run(ctx)
	})
}
