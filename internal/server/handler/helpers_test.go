package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

func TestWriteServiceError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		name       string
		err        error
		code       int
		sideEffect bool
	}{
		{"validation", domain.Invalid("quantity", "must be positive"), http.StatusBadRequest, false},
		{"not found", fmt.Errorf("get: %w", domain.ErrNotFound), http.StatusNotFound, false},
		{"upstream 404 is not found", &domain.UpstreamError{Op: "get order", StatusCode: 404}, http.StatusNotFound, false},
		{"upstream", &domain.UpstreamError{Op: "create order", StatusCode: 400}, http.StatusBadGateway, false},
		{"transport", &domain.TransportError{Op: "create order", Err: errors.New("reset")}, http.StatusGatewayTimeout, true},
		{"partial", &domain.PartialExecutionError{OrderID: "o1", Stage: "persist order", Err: errors.New("down")}, http.StatusInternalServerError, true},
		{"other", errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			writeServiceError(rec, req, logger, "op", tc.err)

			assert.Equal(t, tc.code, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.sideEffect, body.SideEffectPossible)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestParseTimeParam(t *testing.T) {
	def := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	req := httptest.NewRequest(http.MethodGet, "/?start=1772323200000&end=2026-03-02T00:00:00Z&bad=yesterday", nil)
	start, err := parseTimeParam(req, "start", def)
	require.NoError(t, err)
	assert.Equal(t, int64(1772323200000), start.UnixMilli())

	end, err := parseTimeParam(req, "end", def)
	require.NoError(t, err)
	assert.Equal(t, def.Add(24*time.Hour), end)

	missing, err := parseTimeParam(req, "until", def)
	require.NoError(t, err)
	assert.Equal(t, def, missing)

	_, err = parseTimeParam(req, "bad", def)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{2, 3}, page(items, domain.ListOpts{Limit: 2, Offset: 1}))
	assert.Equal(t, []int{5}, page(items, domain.ListOpts{Limit: 2, Offset: 4}))
	assert.Empty(t, page(items, domain.ListOpts{Limit: 2, Offset: 9}))
}
