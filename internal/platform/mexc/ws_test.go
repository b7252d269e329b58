package mexc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

const dealsFrame = `{"c":"spot@public.deals.v3.api@BTCUSDT","d":{"deals":[` +
	`{"S":1,"p":"43000.5","t":1700000000000,"v":"0.01"},` +
	`{"S":2,"p":43001,"t":1700000000500,"v":"0.2"}],"e":"spot@public.deals.v3.api"},"s":"BTCUSDT","t":1700000000500}`

func TestParseDeals(t *testing.T) {
	got := ParseDeals([]byte(dealsFrame))
	require.Len(t, got, 2)
	assert.Equal(t, domain.TradeTick{
		Symbol: "BTCUSDT", Price: 43000.5, Quantity: 0.01,
		Time: time.UnixMilli(1700000000000).UTC(),
	}, got[0])
	assert.True(t, got[1].IsBuyerMaker)
	assert.Equal(t, 43001.0, got[1].Price)

	assert.Nil(t, ParseDeals([]byte(`{"id":0,"code":0,"msg":"PONG"}`)))
	assert.Nil(t, ParseDeals([]byte(`not json`)))
}

func TestWSClientSubscribesAndDispatches(t *testing.T) {
	subscribed := make(chan wsCommand, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		_ = json.Unmarshal(raw, &cmd)
		subscribed <- cmd

		if err := conn.WriteMessage(websocket.TextMessage, []byte(dealsFrame)); err != nil {
			return
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewWSClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	trades := make(chan domain.TradeTick, 4)
	c.OnTrade(func(tt domain.TradeTick) { trades <- tt })

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.SubscribeTrades([]string{"btcusdt"}))

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(runCtx) }()

	cmd := <-subscribed
	assert.Equal(t, "SUBSCRIPTION", cmd.Method)
	assert.Equal(t, []string{"spot@public.deals.v3.api@BTCUSDT"}, cmd.Params)

	first := <-trades
	assert.Equal(t, "BTCUSDT", first.Symbol)
	<-trades

	stop()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}
