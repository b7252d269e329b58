package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/metrics"
	"github.com/alanyoungcy/mexcsniper/internal/notify"
)

// CalendarSource reads and closes calendar events.
type CalendarSource interface {
	List(ctx context.Context, owner string, start, end time.Time) ([]*domain.CalendarEvent, error)
	Get(ctx context.Context, owner, eventID string) (*domain.CalendarEvent, error)
	MarkMissed(ctx context.Context, event *domain.CalendarEvent) error
}

// Sniper places snipe orders.
type Sniper interface {
	ShouldExecuteSnipe(confidence float64) bool
	ExecuteSnipe(ctx context.Context, owner string, event *domain.CalendarEvent, params domain.SnipeParams) (string, error)
}

// OrderRefresher reconciles open orders with the exchange.
type OrderRefresher interface {
	RefreshOpen(ctx context.Context, owner string) (int, error)
}

// ScannerConfig controls which events a scan acts on.
type ScannerConfig struct {
	Owners   []string
	Interval time.Duration
	// Lead is how long before launch an event becomes snipeable.
	Lead time.Duration
	// MissAfter is how long after launch a still-detected event is given up.
	MissAfter time.Duration
	// Lookback bounds how far back a scan looks for detected events.
	Lookback time.Duration
	Params   domain.SnipeParams
	LockTTL  time.Duration
	// Parallel bounds how many owners are scanned at once.
	Parallel int
}

// ScanResult counts what one scan did.
type ScanResult struct {
	Sniped  int `json:"sniped"`
	Failed  int `json:"failed"`
	Missed  int `json:"missed"`
	Skipped int `json:"skipped"`
	// Held counts events left alone because an earlier snipe may have
	// reached the exchange.
	Held       int `json:"held"`
	OpenOrders int `json:"open_orders"`
}

func (r *ScanResult) add(o ScanResult) {
	r.Sniped += o.Sniped
	r.Failed += o.Failed
	r.Missed += o.Missed
	r.Skipped += o.Skipped
	r.Held += o.Held
	r.OpenOrders += o.OpenOrders
}

// Scanner periodically walks each owner's calendar, snipes events whose
// launch window has opened and marks stale ones missed. Each snipe runs
// under a distributed lock so replicas never snipe the same event twice.
//
// A snipe that fails after the order may have reached the exchange (timeout,
// unreadable response, partial execution) is never retried automatically:
// the event is held until its miss deadline and then marked missed. The
// order request carries no idempotency key, so a retry could fill twice.
type Scanner struct {
	cfg      ScannerConfig
	calendar CalendarSource
	sniper   Sniper
	orders   OrderRefresher
	locks    domain.LockManager
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	trigger  <-chan struct{}

	mu   sync.Mutex
	held map[string]struct{} // owner:event_id
}

// NewScanner creates a Scanner. orders, locks, notifier and m may be nil.
func NewScanner(
	cfg ScannerConfig,
	calendar CalendarSource,
	sniper Sniper,
	orders OrderRefresher,
	locks domain.LockManager,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	return &Scanner{
		cfg:      cfg,
		calendar: calendar,
		sniper:   sniper,
		orders:   orders,
		locks:    locks,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With(slog.String("component", "scanner")),
		now:      time.Now,
		held:     make(map[string]struct{}),
	}
}

// Scan runs one pass over every configured owner. Owners are scanned
// concurrently; a failing owner does not stop the others.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	var (
		mu    sync.Mutex
		total ScanResult
		errs  []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallel)
	for _, owner := range s.cfg.Owners {
		g.Go(func() error {
			res, err := s.scanOwner(gctx, owner)
			mu.Lock()
			defer mu.Unlock()
			total.add(res)
			if err != nil {
				errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.SetActiveOrders(total.OpenOrders)
	return total, errors.Join(errs...)
}

func (s *Scanner) scanOwner(ctx context.Context, owner string) (ScanResult, error) {
	var res ScanResult
	now := s.now()
	events, err := s.calendar.List(ctx, owner, now.Add(-s.cfg.Lookback), now.Add(s.cfg.Lead))
	if err != nil {
		return res, fmt.Errorf("list calendar: %w", err)
	}

	var errs []error
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.Status != domain.CalendarStatusDetected {
			continue
		}
		launch := time.UnixMilli(e.LaunchTime)
		if now.After(launch.Add(s.cfg.MissAfter)) {
			if err := s.calendar.MarkMissed(ctx, e); err != nil {
				errs = append(errs, err)
				continue
			}
			s.release(owner, e.EventID)
			res.Missed++
			continue
		}
		if s.isHeld(owner, e.EventID) {
			res.Held++
			continue
		}
		if !s.sniper.ShouldExecuteSnipe(e.Confidence) {
			res.Skipped++
			continue
		}
		switch err := s.snipe(ctx, owner, e, now); {
		case err == nil:
			res.Sniped++
		case errors.Is(err, errSkipped):
			res.Skipped++
		default:
			res.Failed++
			errs = append(errs, err)
		}
	}

	if s.orders != nil {
		open, err := s.orders.RefreshOpen(ctx, owner)
		res.OpenOrders = open
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh orders: %w", err))
		}
	}
	return res, errors.Join(errs...)
}

var errSkipped = errors.New("skipped")

// snipe executes one event under its lock. The event is re-read after the
// lock is taken since another replica may have sniped it meanwhile.
//
// The lock lives until the event's miss deadline. It is released once the
// attempt has a known outcome; after an ambiguous failure it is left to
// expire so no replica retries the event.
func (s *Scanner) snipe(ctx context.Context, owner string, e *domain.CalendarEvent, now time.Time) error {
	ambiguous := false
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "snipe:"+owner+":"+e.EventID, s.lockTTL(e, now))
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "event locked elsewhere", slog.String("event_id", e.EventID))
			return errSkipped
		}
		if err != nil {
			return fmt.Errorf("lock event %s: %w", e.EventID, err)
		}
		defer func() {
			if !ambiguous {
				unlock()
			}
		}()

		fresh, err := s.calendar.Get(ctx, owner, e.EventID)
		if err != nil {
			return fmt.Errorf("reload event %s: %w", e.EventID, err)
		}
		if fresh.Status != domain.CalendarStatusDetected {
			return errSkipped
		}
		e = fresh
	}

	if _, err := s.sniper.ExecuteSnipe(ctx, owner, e, s.cfg.Params); err != nil {
		if domain.SideEffectPossible(err) {
			ambiguous = true
			s.hold(owner, e.EventID)
			s.logger.ErrorContext(ctx, "snipe outcome unknown, holding event until miss deadline",
				slog.String("event_id", e.EventID),
				slog.String("symbol", e.Symbol),
				slog.String("error", err.Error()),
			)
		}
		return fmt.Errorf("snipe event %s: %w", e.EventID, err)
	}
	return nil
}

// lockTTL covers the rest of the event's snipe window, and at least LockTTL.
func (s *Scanner) lockTTL(e *domain.CalendarEvent, now time.Time) time.Duration {
	ttl := time.UnixMilli(e.LaunchTime).Add(s.cfg.MissAfter).Sub(now)
	if ttl < s.cfg.LockTTL {
		ttl = s.cfg.LockTTL
	}
	return ttl
}

func (s *Scanner) hold(owner, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[owner+":"+eventID] = struct{}{}
}

func (s *Scanner) isHeld(owner, eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[owner+":"+eventID]
	return ok
}

func (s *Scanner) release(owner, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, owner+":"+eventID)
}

// WithTrigger makes RunLoop also scan whenever ch receives.
func (s *Scanner) WithTrigger(ch <-chan struct{}) *Scanner {
	s.trigger = ch
	return s
}

// RunLoop scans on the configured interval, and on every trigger, until ctx
// is cancelled.
func (s *Scanner) RunLoop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scanner started",
		slog.Int("owners", len(s.cfg.Owners)),
		slog.Duration("interval", s.cfg.Interval),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
			s.logger.InfoContext(ctx, "manual scan triggered")
		}
	}
}

func (s *Scanner) runOnce(ctx context.Context) {
	res, err := s.Scan(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "scan failed", slog.String("error", err.Error()))
		if nerr := s.notifier.Error(ctx, "scanner", err); nerr != nil {
			s.logger.WarnContext(ctx, "scanner notification failed", slog.String("error", nerr.Error()))
		}
	}
	if res.Sniped+res.Failed+res.Missed > 0 {
		s.logger.InfoContext(ctx, "scan complete",
			slog.Int("sniped", res.Sniped),
			slog.Int("failed", res.Failed),
			slog.Int("missed", res.Missed),
			slog.Int("skipped", res.Skipped),
			slog.Int("held", res.Held),
			slog.Int("open_orders", res.OpenOrders),
		)
	}
}
