// Package mexc is the REST and websocket client for the MEXC spot exchange.
package mexc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/crypto"
	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/metrics"
)

const (
	pathTicker  = "/api/v3/ticker/24hr"
	pathOrder   = "/api/v3/order"
	pathAccount = "/api/v3/account"

	defaultTimeout = 10 * time.Second
)

// Client is the signed REST client for the MEXC spot API. It is safe for
// concurrent use and never retries a request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.QuerySigner
	timeout    time.Duration
	now        func() time.Time

	limiter     domain.RateLimiter
	limitKey    string
	limitCount  int
	limitWindow time.Duration
	metrics     *metrics.Metrics
}

var _ domain.Exchange = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout used when the caller's context
// carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClock overrides the clock used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRateLimiter makes every request consult l under key before it is sent.
// A denied request fails with domain.ErrRateLimited and never reaches the
// exchange.
func WithRateLimiter(l domain.RateLimiter, key string, limit int, window time.Duration) Option {
	return func(c *Client) {
		c.limiter = l
		c.limitKey = key
		c.limitCount = limit
		c.limitWindow = window
	}
}

// WithMetrics records latency and error counters for every request.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new MEXC REST client.
//
// baseURL is the API root, e.g. "https://api.mexc.com". signer may be nil,
// in which case only unsigned endpoints are usable.
func NewClient(baseURL string, signer *crypto.QuerySigner, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		signer:     signer,
		timeout:    defaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTicker returns the latest price for symbol. The call is unsigned.
func (c *Client) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	if symbol == "" {
		return domain.Ticker{}, domain.Invalid("symbol", "must not be empty")
	}
	body, err := c.do(ctx, "get_ticker", http.MethodGet, pathTicker, map[string]string{"symbol": symbol}, false)
	if err != nil {
		return domain.Ticker{}, err
	}
	var t APITicker
	if err := decodeStrict("get_ticker", body, &t); err != nil {
		return domain.Ticker{}, err
	}
	return t.ToDomain(), nil
}

// CreateOrder places an order. This is the only call that moves money; it is
// sent exactly once.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.ExchangeOrder, error) {
	params, err := orderParams(req)
	if err != nil {
		return domain.ExchangeOrder{}, err
	}
	return c.orderCall(ctx, "create_order", http.MethodPost, params)
}

// GetOrder queries an order by its exchange id.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (domain.ExchangeOrder, error) {
	if symbol == "" || orderID == "" {
		return domain.ExchangeOrder{}, domain.Invalid("order_id", "symbol and order id are required")
	}
	return c.orderCall(ctx, "get_order", http.MethodGet, map[string]string{"symbol": symbol, "orderId": orderID})
}

// CancelOrder cancels an order by its exchange id.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (domain.ExchangeOrder, error) {
	if symbol == "" || orderID == "" {
		return domain.ExchangeOrder{}, domain.Invalid("order_id", "symbol and order id are required")
	}
	return c.orderCall(ctx, "cancel_order", http.MethodDelete, map[string]string{"symbol": symbol, "orderId": orderID})
}

// GetAccountBalance returns every asset balance of the account.
func (c *Client) GetAccountBalance(ctx context.Context) ([]domain.Balance, error) {
	body, err := c.do(ctx, "get_account", http.MethodGet, pathAccount, map[string]string{}, true)
	if err != nil {
		return nil, err
	}
	var acct APIAccount
	if err := decodeStrict("get_account", body, &acct); err != nil {
		return nil, err
	}
	return acct.ToDomain(), nil
}

func (c *Client) orderCall(ctx context.Context, op, method string, params map[string]string) (domain.ExchangeOrder, error) {
	body, err := c.do(ctx, op, method, pathOrder, params, true)
	if err != nil {
		return domain.ExchangeOrder{}, err
	}
	var o APIOrder
	if err := decodeStrict(op, body, &o); err != nil {
		return domain.ExchangeOrder{}, err
	}
	return o.ToDomain(), nil
}

// orderParams validates req and renders it as exchange parameters.
func orderParams(req domain.OrderRequest) (map[string]string, error) {
	if req.Symbol == "" {
		return nil, domain.Invalid("symbol", "must not be empty")
	}
	if !domain.PositiveFinite(req.Quantity) {
		return nil, domain.Invalid("quantity", "must be positive and finite")
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return nil, domain.Invalid("side", fmt.Sprintf("unknown side %q", req.Side))
	}
	switch req.Type {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if req.Price == nil {
			return nil, domain.Invalid("price", "required for limit orders")
		}
	default:
		return nil, domain.Invalid("order_type", fmt.Sprintf("unknown order type %q", req.Type))
	}

	params := map[string]string{
		"symbol":   req.Symbol,
		"side":     strings.ToUpper(string(req.Side)),
		"type":     strings.ToUpper(string(req.Type)),
		"quantity": formatDecimal(req.Quantity),
	}
	if req.Price != nil {
		if !domain.PositiveFinite(*req.Price) {
			return nil, domain.Invalid("price", "must be positive and finite")
		}
		params["price"] = formatDecimal(*req.Price)
	}
	return params, nil
}

// do sends one request and returns the body of a 2xx response. Errors are
// classified into the domain taxonomy.
func (c *Client) do(ctx context.Context, op, method, path string, params map[string]string, signed bool) (body []byte, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveExchange(op, time.Since(start), errorClass(err)) }()

	if signed && c.signer == nil {
		return nil, fmt.Errorf("mexc: %s: %w: api credentials not configured", op, domain.ErrUnauthorized)
	}

	if c.limiter != nil {
		ok, lerr := c.limiter.Allow(ctx, c.limitKey, c.limitCount, c.limitWindow)
		if lerr != nil {
			return nil, fmt.Errorf("mexc: %s: rate limiter: %w", op, lerr)
		}
		if !ok {
			return nil, fmt.Errorf("mexc: %s: %w", op, domain.ErrRateLimited)
		}
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var query string
	if signed {
		query = c.signer.SignedQueryAt(params, c.now().UnixMilli())
	} else {
		query = crypto.CanonicalQuery(params)
	}
	url := c.baseURL + path
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("mexc: %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signed {
		req.Header.Set(crypto.APIKeyHeader, c.signer.Key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func errorClass(err error) string {
	if err == nil {
		return ""
	}
	var (
		up *domain.UpstreamError
		tr *domain.TransportError
		de *domain.DecodeError
		ve *domain.ValidationError
	)
	switch {
	case errors.As(err, &up):
		return "upstream"
	case errors.As(err, &tr):
		return "transport"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	}
	return "other"
}
