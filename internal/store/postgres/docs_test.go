package postgres

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

var t0 = time.UnixMilli(1700000000000).UTC()

func TestOrderDocRoundTrip(t *testing.T) {
	price := 1.25
	o := domain.NewOrder("u1", "NEWUSDT", domain.OrderSideBuy, domain.OrderTypeLimit, 10, &price, t0)
	require.NoError(t, o.Transition(domain.OrderStatusOpen, t0))
	o.ExchangeOrderID = "ex-1"

	raw, err := json.Marshal(orderToDoc(o))
	require.NoError(t, err)

	got, err := decodeOrder(itemKey(o.UserID, o.SortKey()), raw)
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

func TestCalendarDocRoundTrip(t *testing.T) {
	e := domain.NewCalendarEvent("u1", "New", "NEWUSDT", t0.Add(time.Hour).UnixMilli(), "sts:2", 0.95, t0)
	require.NoError(t, e.MarkSniped("o-1", t0.Add(time.Hour)))

	raw, err := json.Marshal(calendarToDoc(e))
	require.NoError(t, err)

	got, err := decodeCalendarEvent("k", raw)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestPositionDocRoundTrip(t *testing.T) {
	p := domain.NewPosition("u1", "ETHUSDT", 2000, 2, domain.PositionSideShort, t0)
	p.Revalue(1900, t0.Add(time.Minute))

	raw, err := json.Marshal(positionToDoc(p))
	require.NoError(t, err)

	got, err := decodePosition("k", raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.InDelta(t, 200, *got.PnL, 1e-9)
}

func TestDecodeRejectsCorruptDocs(t *testing.T) {
	o := domain.NewOrder("u1", "NEWUSDT", domain.OrderSideBuy, domain.OrderTypeMarket, 1, nil, t0)
	good, err := json.Marshal(orderToDoc(o))
	require.NoError(t, err)

	mutate := func(f func(m map[string]any)) []byte {
		var m map[string]any
		require.NoError(t, json.Unmarshal(good, &m))
		f(m)
		out, err := json.Marshal(m)
		require.NoError(t, err)
		return out
	}

	cases := map[string]struct {
		raw  []byte
		attr string
	}{
		"unknown field":   {mutate(func(m map[string]any) { m["leverage"] = 5 }), "doc"},
		"wrong type":      {mutate(func(m map[string]any) { m["quantity"] = "1" }), "doc"},
		"trailing data":   {append(append([]byte{}, good...), []byte(`{}`)...), "doc"},
		"missing created": {mutate(func(m map[string]any) { delete(m, "created_at") }), "created_at"},
		"missing symbol":  {mutate(func(m map[string]any) { delete(m, "symbol") }), "symbol"},
		"bad status":      {mutate(func(m map[string]any) { m["status"] = "lost" }), "status"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeOrder("u1/ORDER#1#x", tc.raw)
			var cre *domain.CorruptRecordError
			require.True(t, errors.As(err, &cre), "got %v", err)
			assert.Equal(t, tc.attr, cre.Attribute)
			assert.Equal(t, "u1/ORDER#1#x", cre.Key)
		})
	}
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://bot:pw@db:5432/mexc?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "bot", Password: "pw", Database: "mexc"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Contains(t, names, "001_init.sql")
}
