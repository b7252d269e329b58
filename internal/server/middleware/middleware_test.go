package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func serve(h http.Handler, req *http.Request) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuth(t *testing.T) {
	h := Auth("k", "/health")(ok)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)))
	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/api/status", nil)))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer k")
	assert.Equal(t, http.StatusOK, serve(h, req))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "nope")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req))

	assert.Equal(t, http.StatusOK, serve(Auth("")(ok), httptest.NewRequest(http.MethodGet, "/x", nil)))
}

type countingLimiter struct {
	calls int
	err   error
}

func (c *countingLimiter) Allow(_ context.Context, _ string, limit int, _ time.Duration) (bool, error) {
	c.calls++
	return c.calls <= limit, c.err
}

func (c *countingLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lim := &countingLimiter{}
	h := RateLimit(lim, 1, time.Second, logger)(ok)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusTooManyRequests, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)))

	down := RateLimit(&countingLimiter{calls: 10, err: errors.New("redis down")}, 1, time.Second, logger)(ok)
	assert.Equal(t, http.StatusOK, serve(down, httptest.NewRequest(http.MethodGet, "/", nil)), "fails open")
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", extractClientIP(req))
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://ops.example"})(ok)
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://ops.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingRecordsRouteNotQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/trade/orders/{owner}/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := Logging(logger)(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/trade/orders/alice/o-1?signature=deadbeef", nil)
	req.RemoteAddr = "10.0.0.7:4000"
	assert.Equal(t, http.StatusNotFound, serve(h, req))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "GET /api/trade/orders/{owner}/{id}", line["route"])
	assert.Equal(t, "alice", line["owner"])
	assert.Equal(t, "o-1", line["record_id"])
	assert.Equal(t, "10.0.0.7", line["client"])
	assert.EqualValues(t, http.StatusNotFound, line["status"])
	assert.NotContains(t, buf.String(), "deadbeef")
}

func TestLoggingUnmatchedRoute(t *testing.T) {
	var buf bytes.Buffer
	h := Logging(slog.New(slog.NewJSONHandler(&buf, nil)))(http.NewServeMux())

	assert.Equal(t, http.StatusNotFound, serve(h, httptest.NewRequest(http.MethodGet, "/nowhere", nil)))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "unmatched", line["route"])
	assert.NotContains(t, line, "owner")
}
