package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartwatt/core/events"
	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/monitoring"
	"github.com/kilianp07/smartwatt/core/optimizer"
	"github.com/kilianp07/smartwatt/core/schedule"
	"github.com/kilianp07/smartwatt/internal/eventbus"
)

type staticSeries struct {
	aligned model.Aligned
}

func (s staticSeries) Fetch(context.Context) model.Aligned { return s.aligned }

func (s staticSeries) ResolveDevices(_ context.Context, d []model.Device) []model.Device {
	return d
}

type memHistory struct {
	items []model.OptimizationResult
}

func (h *memHistory) Append(_ context.Context, r model.OptimizationResult) error {
	h.items = append(h.items, r)
	return nil
}

func (h *memHistory) Query(_ context.Context, q schedule.HistoryQuery) ([]model.OptimizationResult, error) {
	var out []model.OptimizationResult
	for _, r := range h.items {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *memHistory) Close() error { return nil }

type failingStore struct {
	*schedule.MemoryStore
}

func (failingStore) Put(context.Context, string, schedule.Entry) error { return errors.New("disk full") }

type captureMonitor struct {
	err  error
	tags map[string]string
}

func (c *captureMonitor) CaptureException(err error, tags map[string]string) { c.err, c.tags = err, tags }
func (c *captureMonitor) CapturePanic(any)                                   {}
func (c *captureMonitor) Flush(time.Duration)                                {}

var testNow = time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)

type fixture struct {
	p       *Planner
	store   *schedule.MemoryStore
	recent  *schedule.MemoryRecent
	history *memHistory
	sub     <-chan eventbus.Event
}

func newFixture(t *testing.T, a model.Aligned, devices ...model.Device) *fixture {
	t.Helper()
	f := &fixture{
		store:   schedule.NewMemoryStore(),
		recent:  schedule.NewMemoryRecent(),
		history: &memHistory{},
	}
	f.p = NewPlanner(optimizer.DefaultConfig(), staticSeries{aligned: a}, f.store, f.recent, devices, nil)
	f.p.now = func() time.Time { return testNow }
	f.p.SetHistory(f.history)
	bus := eventbus.NewWithBuffer(64)
	t.Cleanup(bus.Close)
	f.sub = bus.Subscribe()
	f.p.SetEventBus(bus)
	return f
}

func (f *fixture) drain() []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case ev := <-f.sub:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func aligned(prices []float64, solar []float64) model.Aligned {
	if solar == nil {
		solar = make([]float64, len(prices))
	}
	return model.Aligned{Prices: prices, Solar: solar}
}

func TestOptimizeDevicePersistsCheapestWindow(t *testing.T) {
	f := newFixture(t, aligned([]float64{0.30, 0.30, 0.10, 0.10, 0.30, 0.30}, nil))
	ctx := context.Background()

	res, err := f.p.OptimizeDevice(ctx, DeviceRequest{Device: "switch.washer", DurationHours: 1, Start: "08:00", End: "10:30", Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusOptimal, res.Status)
	assert.Equal(t, "09:00", res.OptimalStart)
	assert.Equal(t, "10:00", res.OptimalEnd)
	assert.InDelta(t, 0.2, res.Cost, 1e-9)
	assert.Equal(t, "high", res.Priority)
	assert.Equal(t, testNow, res.CreatedAt)
	assert.NotEmpty(t, res.ID)

	e, err := f.store.Get(ctx, "switch.washer")
	require.NoError(t, err)
	assert.Equal(t, schedule.Entry{Start: "09:00", End: "10:00"}, e)

	recent, err := f.p.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, res.ID, recent[0].ID)
	assert.Len(t, f.history.items, 1)

	evs := f.drain()
	require.Len(t, evs, 2)
	changed, ok := evs[0].(events.ScheduleChangedEvent)
	require.True(t, ok)
	assert.Equal(t, OriginOptimizer, changed.Origin)
	assert.Equal(t, "09:00", changed.Start)
	opt, ok := evs[1].(events.OptimizationEvent)
	require.True(t, ok)
	assert.Equal(t, res.ID, opt.Result.ID)
}

func TestOptimizeDeviceInvalidWindow(t *testing.T) {
	f := newFixture(t, aligned(make([]float64, 12), nil))
	ctx := context.Background()

	// 10:30 is slot 5 and 09:30 is slot 3.
	res, err := f.p.OptimizeDevice(ctx, DeviceRequest{Device: "switch.dryer", DurationHours: 1, Start: "10:30", End: "09:30"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusInvalid, res.Status)
	assert.Equal(t, model.MarkerInvalid, res.OptimalStart)
	assert.Equal(t, model.MarkerInvalid, res.OptimalEnd)

	all, err := f.store.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "invalid results never touch the schedule")

	recent, _ := f.p.Recent(ctx)
	require.Len(t, recent, 1)
	assert.Equal(t, model.StatusInvalid, recent[0].Status)
	for _, ev := range f.drain() {
		_, changed := ev.(events.ScheduleChangedEvent)
		assert.False(t, changed)
	}
}

func TestOptimizeDeviceClampsToWindow(t *testing.T) {
	f := newFixture(t, aligned([]float64{0.5, 0.1, 0.2, 0.9, 0.9, 0.9}, nil))
	res, err := f.p.OptimizeDevice(context.Background(), DeviceRequest{Device: "light.ledvance_ceiling", DurationHours: 4, Start: "08:00", End: "09:30"})
	require.NoError(t, err)
	assert.Equal(t, "08:00", res.OptimalStart)
	assert.Equal(t, "09:30", res.OptimalEnd)
}

func TestOptimizeDeviceDefaultDuration(t *testing.T) {
	f := newFixture(t, aligned([]float64{1, 1, 0, 0, 0, 0, 1, 1}, nil))
	res, err := f.p.OptimizeDevice(context.Background(), DeviceRequest{Device: "switch.washer", Start: "08:00", End: "12:00"})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultDurationHours, res.DurationHours)
	assert.Equal(t, "09:00", res.OptimalStart)
	assert.Equal(t, "11:00", res.OptimalEnd)
}

func TestOptimizeDeviceBadRequest(t *testing.T) {
	f := newFixture(t, aligned([]float64{1, 1}, nil))
	for _, req := range []DeviceRequest{
		{Start: "08:00", End: "09:00"},
		{Device: "switch.washer", Start: "8am", End: "09:00"},
		{Device: "switch.washer", Start: "08:00", End: "25:00"},
		{Device: "switch.washer", Start: "08:00", End: "09:00", DurationHours: -1},
	} {
		_, err := f.p.OptimizeDevice(context.Background(), req)
		assert.ErrorIs(t, err, ErrBadRequest)
	}
	recent, _ := f.p.Recent(context.Background())
	assert.Empty(t, recent)
}

func TestOptimizeDeviceStoreFailure(t *testing.T) {
	mon := &captureMonitor{}
	monitoring.Init(mon)
	defer monitoring.Init(monitoring.NopMonitor{})

	recent := schedule.NewMemoryRecent()
	p := NewPlanner(optimizer.DefaultConfig(), staticSeries{aligned: aligned([]float64{1, 0, 1, 1}, nil)},
		failingStore{schedule.NewMemoryStore()}, recent, nil, nil)
	_, err := p.OptimizeDevice(context.Background(), DeviceRequest{Device: "switch.washer", DurationHours: 0.5, Start: "08:00", End: "09:30"})
	require.Error(t, err)
	require.Error(t, mon.err)
	assert.Equal(t, "planner", mon.tags["module"])
	assert.Equal(t, "switch.washer", mon.tags["device"])
	items, _ := recent.List(context.Background())
	assert.Empty(t, items)
}

func TestFallbackEventsPublished(t *testing.T) {
	a := aligned([]float64{0.3, 0.3, 0.3, 0.3}, nil)
	a.PriceFallback, a.SolarFallback = true, true
	f := newFixture(t, a)
	_, err := f.p.OptimizeDevice(context.Background(), DeviceRequest{Device: "switch.washer", DurationHours: 0.5, Start: "08:00", End: "09:30"})
	require.NoError(t, err)
	var sources []string
	for _, ev := range f.drain() {
		if fb, ok := ev.(events.FallbackEvent); ok {
			sources = append(sources, fb.Source)
			assert.Equal(t, 4, fb.Slots)
		}
	}
	assert.Equal(t, []string{"prices", "solar"}, sources)
}

func TestRecentKeepsFiveNewestFirst(t *testing.T) {
	f := newFixture(t, aligned([]float64{1, 1, 1, 1}, nil))
	var last string
	for i := 0; i < 6; i++ {
		res, err := f.p.OptimizeDevice(context.Background(), DeviceRequest{Device: "switch.washer", DurationHours: 0.5, Start: "08:00", End: "09:30"})
		require.NoError(t, err)
		last = res.ID
	}
	recent, err := f.p.Recent(context.Background())
	require.NoError(t, err)
	require.Len(t, recent, schedule.RecentCap)
	assert.Equal(t, last, recent[0].ID)
	assert.Len(t, f.history.items, 6)
}

func dayPrices() []float64 {
	p := make([]float64, 24)
	for i := range p {
		p[i] = 9
	}
	copy(p, []float64{5, 1, 1, 1, 5})
	return p
}

func TestOptimizeFleetRecommendOnly(t *testing.T) {
	devices := []model.Device{
		{ID: "switch.washer", PowerW: 1, DurationHours: 3},
		{ID: "switch.espee_dryer", PowerW: 1, DurationHours: 2},
		{ID: "light.ledvance_ceiling", PowerW: 1, DurationHours: 2},
	}
	f := newFixture(t, aligned(dayPrices(), nil), devices...)
	ctx := context.Background()
	one, zero := 1.0, 0.0
	require.NoError(t, f.store.PutAll(ctx, schedule.Schedule{
		"switch.espee_dryer":     {Start: "18:00", End: "20:00", Duration: &one},
		"light.ledvance_ceiling": {Start: "18:00", End: "23:00", Duration: &zero},
	}))

	res, err := f.p.OptimizeFleet(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOptimal, res.Status)
	assert.False(t, res.Applied)
	assert.Equal(t, schedule.Entry{Start: "01:00", End: "04:00"}, res.Schedule["switch.washer"])
	assert.Equal(t, schedule.Entry{Start: "01:00", End: "02:00"}, res.Schedule["switch.espee_dryer"])
	_, scheduled := res.Schedule["light.ledvance_ceiling"]
	assert.False(t, scheduled, "a zero duration override removes the device from the plan")
	assert.InDelta(t, 4.0, res.Plan.Cost, 1e-9)

	e, err := f.store.Get(ctx, "switch.espee_dryer")
	require.NoError(t, err)
	assert.Equal(t, "18:00", e.Start, "recommendations leave the schedule untouched")
	assert.Len(t, f.history.items, 3)
}

func TestOptimizeFleetApply(t *testing.T) {
	devices := []model.Device{{ID: "switch.washer", PowerW: 1, DurationHours: 3}}
	f := newFixture(t, aligned(dayPrices(), nil), devices...)
	ctx := context.Background()
	dur := 3.0
	require.NoError(t, f.store.PutAll(ctx, schedule.Schedule{
		"switch.washer":        {Start: "12:00", End: "15:00", Duration: &dur},
		"fan.esp_bedroom_hvac": {Start: "22:00", End: "06:00"},
	}))

	res, err := f.p.OptimizeFleet(ctx, true)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	all, err := f.store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "01:00", all["switch.washer"].Start)
	assert.Equal(t, "04:00", all["switch.washer"].End)
	require.NotNil(t, all["switch.washer"].Duration)
	assert.Equal(t, "22:00", all["fan.esp_bedroom_hvac"].Start, "other devices are untouched")

	var origins []string
	for _, ev := range f.drain() {
		if c, ok := ev.(events.ScheduleChangedEvent); ok {
			origins = append(origins, c.Origin)
		}
	}
	assert.Equal(t, []string{OriginPlan}, origins)
}

func TestOptimizeFleetEndWrapsMidnight(t *testing.T) {
	prices := make([]float64, 24)
	for i := range prices {
		prices[i] = 5
	}
	prices[22], prices[23] = 1, 1
	f := newFixture(t, aligned(prices, nil), model.Device{ID: "switch.washer", PowerW: 1, DurationHours: 2})
	res, err := f.p.OptimizeFleet(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, schedule.Entry{Start: "22:00", End: "00:00"}, res.Schedule["switch.washer"])
}

func TestOptimizeFleetRejections(t *testing.T) {
	t.Run("duration beyond horizon", func(t *testing.T) {
		f := newFixture(t, aligned(dayPrices(), nil), model.Device{ID: "switch.washer", PowerW: 1, DurationHours: 30})
		res, err := f.p.OptimizeFleet(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInvalid, res.Status)
		assert.False(t, res.Applied)
		assert.NotEmpty(t, res.Reason)
		require.Len(t, f.history.items, 1)
		assert.Equal(t, model.MarkerInvalid, f.history.items[0].OptimalStart)
		all, _ := f.store.All(context.Background())
		assert.Empty(t, all)
	})
	t.Run("solar beyond capacity", func(t *testing.T) {
		solar := make([]float64, 24)
		solar[10] = 50
		f := newFixture(t, aligned(dayPrices(), solar), model.Device{ID: "switch.washer", PowerW: 1, DurationHours: 2})
		res, err := f.p.OptimizeFleet(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInfeasible, res.Status)
		assert.Equal(t, model.MarkerInfeasible, f.history.items[0].OptimalEnd)
	})
}

func TestOptimizeFleetTruncatesToDayGrid(t *testing.T) {
	prices := make([]float64, 48)
	for i := range prices {
		prices[i] = 2
	}
	prices[30] = 0 // beyond the 24 hour grid
	prices[7] = 1
	f := newFixture(t, aligned(prices, nil), model.Device{ID: "switch.washer", PowerW: 1, DurationHours: 1})
	res, err := f.p.OptimizeFleet(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, schedule.Entry{Start: "07:00", End: "08:00"}, res.Schedule["switch.washer"])
}

func TestSetSchedule(t *testing.T) {
	f := newFixture(t, aligned([]float64{1}, nil))
	ctx := context.Background()
	require.NoError(t, f.p.SetSchedule(ctx, "switch.washer", schedule.Entry{Start: "06:00", End: "07:30"}))
	assert.ErrorIs(t, f.p.SetSchedule(ctx, "switch.washer", schedule.Entry{Start: "6", End: "07:30"}), ErrBadRequest)
	assert.ErrorIs(t, f.p.SetSchedule(ctx, "", schedule.Entry{Start: "06:00", End: "07:30"}), ErrBadRequest)

	e, err := f.p.ScheduleFor(ctx, "switch.washer")
	require.NoError(t, err)
	assert.Equal(t, "07:30", e.End)
	_, err = f.p.ScheduleFor(ctx, "switch.unknown")
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	evs := f.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, OriginManual, evs[0].(events.ScheduleChangedEvent).Origin)
}

func TestHistoryQuery(t *testing.T) {
	f := newFixture(t, aligned([]float64{1, 1, 1, 1}, nil))
	ctx := context.Background()
	_, err := f.p.OptimizeDevice(ctx, DeviceRequest{Device: "switch.washer", DurationHours: 0.5, Start: "08:00", End: "09:30"})
	require.NoError(t, err)
	_, err = f.p.OptimizeDevice(ctx, DeviceRequest{Device: "switch.dryer", DurationHours: 0.5, Start: "09:30", End: "08:00"})
	require.NoError(t, err)

	got, err := f.p.History(ctx, schedule.HistoryQuery{Status: model.StatusInvalid})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "switch.dryer", got[0].Device)

	bare := NewPlanner(optimizer.DefaultConfig(), staticSeries{}, schedule.NewMemoryStore(), schedule.NewMemoryRecent(), nil, nil)
	got, err = bare.History(ctx, schedule.HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
