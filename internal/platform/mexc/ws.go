package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is how long the connection may stay silent. The server answers
	// every application ping, so this is a few ping periods.
	readWait = 90 * time.Second

	// pingPeriod is the application-level keepalive interval.
	pingPeriod = 20 * time.Second

	dealsChannel = "spot@public.deals.v3.api@"
)

// TradeHandler is called for every public trade received.
type TradeHandler func(domain.TradeTick)

// wsCommand is an outgoing control frame.
type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
}

// wsDealsMessage is a push frame on the deals channel.
type wsDealsMessage struct {
	Channel string `json:"c"`
	Symbol  string `json:"s"`
	Data    struct {
		Deals []struct {
			Side     int       `json:"S"`
			Price    flexFloat `json:"p"`
			Quantity flexFloat `json:"v"`
			Time     int64     `json:"t"`
		} `json:"deals"`
	} `json:"d"`
}

// WSClient is a websocket client for the MEXC public market stream. One
// client serves one connection; callers reconnect by creating a new client.
type WSClient struct {
	wsURL string

	mu   sync.Mutex // guards writes on conn
	conn *websocket.Conn

	handlerMu sync.RWMutex
	handlers  []TradeHandler
}

// NewWSClient creates a client for wsURL, e.g. "wss://wbs.mexc.com/ws".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{wsURL: wsURL}
}

// OnTrade registers a handler for public trades.
func (w *WSClient) OnTrade(h TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Connect dials the stream.
func (w *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("mexc/ws: connect: %w", err)
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	return nil
}

// SubscribeTrades subscribes to the deals channel of each symbol.
func (w *WSClient) SubscribeTrades(symbols []string) error {
	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, dealsChannel+strings.ToUpper(s))
	}
	if err := w.send(wsCommand{Method: "SUBSCRIPTION", Params: params}); err != nil {
		return fmt.Errorf("mexc/ws: subscribe: %w", err)
	}
	return nil
}

// Run reads frames and dispatches trades until ctx is cancelled or the
// connection fails. It always closes the connection before returning.
func (w *WSClient) Run(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mexc/ws: %w", domain.ErrWSDisconnect)
	}

	done := make(chan struct{})
	defer close(done)
	go w.pingLoop(done)

	go func() {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			w.mu.Unlock()
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("mexc/ws: read: %w", err)
		}
		w.handleMessage(raw)
	}
}

func (w *WSClient) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := w.send(wsCommand{Method: "PING"}); err != nil {
				return
			}
		}
	}
}

func (w *WSClient) send(cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return domain.ErrWSDisconnect
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// handleMessage routes deals frames to the trade handlers. Acks, pongs and
// unknown frames are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	trades := ParseDeals(raw)
	if len(trades) == 0 {
		return
	}
	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()
	for _, t := range trades {
		for _, h := range handlers {
			h(t)
		}
	}
}

// ParseDeals extracts trades from a deals push frame. Any other frame yields
// nil.
func ParseDeals(raw []byte) []domain.TradeTick {
	var msg wsDealsMessage
	if err := json.Unmarshal(raw, &msg); err != nil || !strings.HasPrefix(msg.Channel, dealsChannel) {
		return nil
	}
	symbol := msg.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(msg.Channel, dealsChannel)
	}
	out := make([]domain.TradeTick, 0, len(msg.Data.Deals))
	for _, d := range msg.Data.Deals {
		out = append(out, domain.TradeTick{
			Symbol:       symbol,
			Price:        float64(d.Price),
			Quantity:     float64(d.Quantity),
			IsBuyerMaker: d.Side == 2,
			Time:         time.UnixMilli(d.Time).UTC(),
		})
	}
	return out
}
