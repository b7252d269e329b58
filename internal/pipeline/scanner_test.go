package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/pattern"
	"github.com/alanyoungcy/mexcsniper/internal/service"
	"github.com/alanyoungcy/mexcsniper/internal/store/memory"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// stubExchange fills every market order immediately.
type stubExchange struct {
	mu     sync.Mutex
	calls  int
	orders int
	fail   error
}

func (s *stubExchange) GetTicker(context.Context, string) (domain.Ticker, error) {
	return domain.Ticker{}, errors.New("unused")
}

func (s *stubExchange) CreateOrder(_ context.Context, req domain.OrderRequest) (domain.ExchangeOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return domain.ExchangeOrder{}, s.fail
	}
	s.orders++
	return domain.ExchangeOrder{OrderID: "mx", Symbol: req.Symbol, Status: "FILLED", FilledQty: req.Quantity}, nil
}

func (s *stubExchange) GetOrder(context.Context, string, string) (domain.ExchangeOrder, error) {
	return domain.ExchangeOrder{}, errors.New("unused")
}

func (s *stubExchange) CancelOrder(context.Context, string, string) (domain.ExchangeOrder, error) {
	return domain.ExchangeOrder{}, errors.New("unused")
}

func (s *stubExchange) GetAccountBalance(context.Context) ([]domain.Balance, error) {
	return nil, nil
}

// heldLocks reports every key in held as taken by someone else.
// Acquired keys stay held until their unlock func runs.
type heldLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	ttls     map[string]time.Duration
}

func (h *heldLocks) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.held[key] {
		return nil, domain.ErrLockHeld
	}
	h.held[key] = true
	h.ttls[key] = ttl
	h.acquired = append(h.acquired, key)
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.held, key)
	}, nil
}

type scanFixture struct {
	now      time.Time
	store    *memory.Store
	ex       *stubExchange
	calendar *service.CalendarService
	scanner  *Scanner
	locks    *heldLocks
}

func newScanFixture(t *testing.T, owners ...string) *scanFixture {
	t.Helper()
	f := &scanFixture{
		now:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		store: memory.New(),
		ex:    &stubExchange{},
		locks: &heldLocks{held: map[string]bool{}, ttls: map[string]time.Duration{}},
	}
	f.calendar = service.NewCalendarService(f.store, pattern.NewDetector(0.95), nil, nil, discard())
	sniper := service.NewSnipingManager(f.ex, f.store, f.store, nil, nil, nil, nil, discard())
	orders := service.NewOrderService(f.store, f.ex, nil, nil, discard())
	f.scanner = NewScanner(ScannerConfig{
		Owners:    owners,
		Lead:      time.Minute,
		MissAfter: 10 * time.Minute,
		Params:    domain.SnipeParams{Side: domain.OrderSideBuy, Quantity: 5},
	}, f.calendar, sniper, orders, f.locks, nil, nil, discard())
	f.scanner.now = func() time.Time { return f.now }
	return f
}

func (f *scanFixture) seed(t *testing.T, owner string, launch time.Time, confidence float64) *domain.CalendarEvent {
	t.Helper()
	e := domain.NewCalendarEvent(owner, "Tok", "TOKUSDT", launch.UnixMilli(), pattern.STS2, confidence, f.now.Add(-time.Hour))
	require.NoError(t, f.store.PutCalendarEvent(context.Background(), e))
	return e
}

func (f *scanFixture) status(t *testing.T, e *domain.CalendarEvent) domain.CalendarStatus {
	t.Helper()
	got, err := f.store.GetCalendarEvent(context.Background(), e.UserID, e.EventID)
	require.NoError(t, err)
	return got.Status
}

func TestScanSnipesMissesAndSkips(t *testing.T) {
	f := newScanFixture(t, "alice")

	due := f.seed(t, "alice", f.now.Add(30*time.Second), 0.95)
	stale := f.seed(t, "alice", f.now.Add(-time.Hour), 0.95)
	early := f.seed(t, "alice", f.now.Add(time.Hour), 0.95)
	weak := f.seed(t, "alice", f.now, 0.5)

	res, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Sniped: 1, Missed: 1, Skipped: 1}, res)

	assert.Equal(t, domain.CalendarStatusSniped, f.status(t, due))
	assert.Equal(t, domain.CalendarStatusMissed, f.status(t, stale))
	assert.Equal(t, domain.CalendarStatusDetected, f.status(t, early))
	assert.Equal(t, domain.CalendarStatusDetected, f.status(t, weak))
	assert.Equal(t, 1, f.ex.orders)
	assert.Equal(t, []string{"snipe:alice:" + due.EventID}, f.locks.acquired)

	// A second pass finds nothing left to do.
	res, err = f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sniped)
	assert.Equal(t, 1, f.ex.orders)
}

func TestScanSkipsLockedEvents(t *testing.T) {
	f := newScanFixture(t, "alice")
	e := f.seed(t, "alice", f.now, 0.95)
	f.locks.held["snipe:alice:"+e.EventID] = true

	res, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, f.ex.orders)
	assert.Equal(t, domain.CalendarStatusDetected, f.status(t, e))
}

func TestScanReportsFailuresPerOwner(t *testing.T) {
	f := newScanFixture(t, "alice", "bob")
	f.ex.fail = &domain.UpstreamError{Op: "create_order", StatusCode: 400, Body: "no"}
	a := f.seed(t, "alice", f.now, 0.95)
	f.seed(t, "bob", f.now, 0.95)

	res, err := f.scanner.Scan(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Contains(t, err.Error(), "owner alice")
	assert.Contains(t, err.Error(), "owner bob")
	assert.Equal(t, domain.CalendarStatusDetected, f.status(t, a), "failed snipe leaves the event detected")

	// A rejection is known not to have placed anything, so the next pass retries.
	res, err = f.scanner.Scan(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 4, f.ex.calls)
	assert.Empty(t, f.locks.held)
}

func TestScanHoldsEventAfterAmbiguousFailure(t *testing.T) {
	for name, cause := range map[string]error{
		"timeout":  &domain.TransportError{Op: "create_order", Err: context.DeadlineExceeded},
		"bad body": &domain.DecodeError{Op: "create_order", Err: errors.New("unexpected field")},
	} {
		t.Run(name, func(t *testing.T) {
			f := newScanFixture(t, "alice")
			f.ex.fail = cause
			e := f.seed(t, "alice", f.now.Add(30*time.Second), 0.95)
			key := "snipe:alice:" + e.EventID

			res, err := f.scanner.Scan(context.Background())
			require.Error(t, err)
			assert.True(t, domain.SideEffectPossible(err))
			assert.Equal(t, 1, res.Failed)
			assert.True(t, f.locks.held[key], "lock is kept after an ambiguous failure")
			assert.Equal(t, 30*time.Second+10*time.Minute, f.locks.ttls[key])

			for range 3 {
				res, err = f.scanner.Scan(context.Background())
				require.NoError(t, err)
				assert.Equal(t, ScanResult{Held: 1}, res)
			}
			assert.Equal(t, 1, f.ex.calls, "create_order is sent once")
			assert.Equal(t, domain.CalendarStatusDetected, f.status(t, e))

			f.now = f.now.Add(11 * time.Minute)
			res, err = f.scanner.Scan(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, res.Missed)
			assert.Equal(t, domain.CalendarStatusMissed, f.status(t, e))
			assert.Equal(t, 1, f.ex.calls)
		})
	}
}

func TestScanHoldsEventWithoutLocks(t *testing.T) {
	f := newScanFixture(t, "alice")
	f.scanner.locks = nil
	f.ex.fail = &domain.TransportError{Op: "create_order", Err: errors.New("connection reset")}
	f.seed(t, "alice", f.now, 0.95)

	_, err := f.scanner.Scan(context.Background())
	require.Error(t, err)
	res, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Held)
	assert.Equal(t, 1, f.ex.calls)
}
