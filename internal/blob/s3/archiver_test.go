package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/store/memory"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	w.types[path] = contentType
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, contentTypeJSONL)
}

func (w *memWriter) Exists(_ context.Context, path string) (bool, error) {
	_, ok := w.objects[path]
	return ok, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

var t0 = time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)

func TestArchiveOrdersWritesJSONLOnce(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	for i := range 3 {
		o := domain.NewOrder("u1", "BTCUSDT", domain.OrderSideBuy, domain.OrderTypeMarket, 1, nil, t0.Add(time.Duration(i-2)*time.Hour))
		require.NoError(t, st.PutOrder(ctx, o))
	}
	w := newMemWriter()
	audit := &memAudit{}
	a := NewArchiver(w, w, st, st, audit)

	// Cutoff excludes the newest order.
	cutoff := t0.Add(-30 * time.Minute)
	n, err := a.ArchiveOrders(ctx, "u1", cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	path := "archive/orders/u1/2025-01-31.jsonl"
	require.Contains(t, w.objects, path)
	assert.Equal(t, contentTypeJSONL, w.types[path])

	sc := bufio.NewScanner(bytes.NewReader(w.objects[path]))
	lines := 0
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		assert.Equal(t, "u1", rec["user_id"])
		lines++
	}
	assert.Equal(t, 2, lines)
	assert.Equal(t, []string{"archive.orders"}, audit.events)

	// Second run for the same day is skipped.
	n, err = a.ArchiveOrders(ctx, "u1", cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, audit.events, 1)
}

func TestArchiveCalendarEventsEmpty(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w, nil, memory.New(), memory.New(), nil)

	n, err := a.ArchiveCalendarEvents(context.Background(), "u1", t0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestArchiveCalendarEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	e := domain.NewCalendarEvent("u1", "Tok", "TOKUSDT", t0.Add(-time.Hour).UnixMilli(), "sts:2", 0.95, t0.Add(-2*time.Hour))
	require.NoError(t, st.PutCalendarEvent(ctx, e))

	w := newMemWriter()
	n, err := NewArchiver(w, w, st, st, nil).ArchiveCalendarEvents(ctx, "u1", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Contains(t, string(w.objects["archive/calendar/u1/2025-01-31.jsonl"]), `"detected_pattern":"sts:2"`)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://s3.example.com", normaliseEndpoint("s3.example.com", false))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
}
