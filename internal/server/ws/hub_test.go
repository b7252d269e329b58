package ws

import (
	"encoding/json"
	"io"
	"log/slog"
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

func TestHubRelaysSubscribedChannels(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(nil, func() domain.BotStatus { return domain.BotStatus{Mode: "api"} }, logger)
	srv := httptest.NewServer(httptestHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "status", env.Channel)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelPrices}}))
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1 && !firstClient(hub).subscribed(domain.ChannelPrices)
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(domain.ChannelPrices, []byte(`{"symbol":"X"}`))
	hub.Broadcast(domain.ChannelOrders, []byte(`{"order_id":"o-1"}`))

	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, domain.ChannelOrders, env.Channel)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "o-1", payload["order_id"])
}

func firstClient(h *Hub) *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		return c
	}
	return nil
}

func httptestHandler(h *Hub) http.Handler { return http.HandlerFunc(h.HandleWS) }
