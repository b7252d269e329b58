package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/pattern"
	"github.com/alanyoungcy/mexcsniper/internal/store/memory"
)

func newCalendarService(min float64) (*CalendarService, *memory.Store, *recordBus) {
	st := memory.New()
	bus := &recordBus{}
	svc := NewCalendarService(st, pattern.NewDetector(min), bus, nil, testLogger())
	svc.now = clock
	return svc, st, bus
}

func TestCalendarDetectStoresMatch(t *testing.T) {
	svc, st, bus := newCalendarService(0.85)
	ctx := context.Background()
	launch := fixedNow.Add(time.Hour).UnixMilli()

	ev, ok, err := svc.Detect(ctx, "user-1", DetectRequest{TokenName: "Newcoin", Symbol: "newusdt", LaunchTime: launch, Intervals: []int64{1000, 2000}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pattern.ST2, ev.DetectedPattern)
	assert.Equal(t, 0.85, ev.Confidence)
	assert.Equal(t, "NEWUSDT", ev.Symbol)
	assert.Equal(t, domain.CalendarStatusDetected, ev.Status)

	stored, err := st.GetCalendarEvent(ctx, "user-1", ev.EventID)
	require.NoError(t, err)
	assert.Equal(t, launch, stored.LaunchTime)

	sigs := bus.channel(domain.ChannelCalendar)
	require.Len(t, sigs, 1)
	assert.Equal(t, ev.EventID, decode[domain.CalendarSignal](t, sigs[0].payload).EventID)
}

func TestCalendarDetectNoMatchStoresNothing(t *testing.T) {
	svc, st, _ := newCalendarService(0.8)
	ctx := context.Background()

	ev, ok, err := svc.Detect(ctx, "user-1", DetectRequest{Symbol: "X", LaunchTime: 1, Intervals: []int64{1000, 2000, 3000}})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, ev)

	all, err := st.QueryCalendarEventsByTime(ctx, "user-1", 0, fixedNow.Add(time.Hour).UnixMilli())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCalendarListAndMarkMissed(t *testing.T) {
	svc, _, _ := newCalendarService(0.95)
	ctx := context.Background()
	launch := fixedNow.Add(-time.Hour)

	ev, ok, err := svc.Detect(ctx, "user-1", DetectRequest{Symbol: "OLDUSDT", LaunchTime: launch.UnixMilli(), Intervals: []int64{1, 2, 3}})
	require.NoError(t, err)
	require.True(t, ok)

	list, err := svc.List(ctx, "user-1", launch.Add(-time.Minute), launch.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.MarkMissed(ctx, list[0]))
	got, err := svc.Get(ctx, "user-1", ev.EventID)
	require.NoError(t, err)
	assert.Equal(t, domain.CalendarStatusMissed, got.Status)

	var verr *domain.ValidationError
	require.ErrorAs(t, svc.MarkMissed(ctx, got), &verr)

	_, err = svc.List(ctx, "user-1", launch, launch.Add(-time.Second))
	require.ErrorAs(t, err, &verr)
}
