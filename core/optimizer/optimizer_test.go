package optimizer

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/series"
	"github.com/kilianp07/smartwatt/core/solver"
	"github.com/kilianp07/smartwatt/core/timeslot"
)

func newWindow() *WindowOptimizer { return NewWindowOptimizer(solver.DefaultOptions(), nil) }
func newFleet() *FleetOptimizer   { return NewFleetOptimizer(solver.DefaultOptions(), nil) }

func TestWindowPicksCheapestBlock(t *testing.T) {
	a := model.Aligned{Prices: model.PriceSeries{0.30, 0.10, 0.10, 0.30}, Solar: model.SolarSeries{0, 0, 0, 0}}
	b, err := newWindow().Optimize(context.Background(), series.Weights(a), model.Window{Start: 0, End: 4}, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Start)
	assert.Equal(t, 3, b.End)
	assert.InDelta(t, 0.20, b.Weight, 1e-9)
	assert.True(t, b.Optimal)
}

func TestWindowInvalid(t *testing.T) {
	_, err := newWindow().Optimize(context.Background(), make([]float64, 10), model.Window{Start: 5, End: 3}, 2)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = newWindow().Optimize(context.Background(), make([]float64, 10), model.Window{Start: 4, End: 4}, 1)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = newWindow().Optimize(context.Background(), make([]float64, 4), model.Window{Start: 6, End: 9}, 1)
	assert.ErrorIs(t, err, ErrInvalidWindow, "window entirely past the horizon")
}

func TestWindowInvalidDoesNotSolve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newWindow().Optimize(ctx, make([]float64, 4), model.Window{Start: 3, End: 1}, 1)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.False(t, errors.Is(err, solver.ErrLimit))
}

func TestWindowClampsDuration(t *testing.T) {
	w := []float64{1, 1, 0.5, 0.2, 1, 1}
	b, err := newWindow().Optimize(context.Background(), w, model.Window{Start: 2, End: 4}, 6)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Start)
	assert.Equal(t, 4, b.End)
	assert.Equal(t, 2, b.Len())
}

func TestWindowRejectsNonPositiveDuration(t *testing.T) {
	_, err := newWindow().Optimize(context.Background(), make([]float64, 4), model.Window{Start: 0, End: 4}, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestWindowTieBreakLowestStart(t *testing.T) {
	w := []float64{0.2, 0.2, 0.2, 0.2, 0.2, 0.2}
	for i := 0; i < 3; i++ {
		b, err := newWindow().Optimize(context.Background(), w, model.Window{Start: 1, End: 6}, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, b.Start)
	}
}

func TestWindowGlobalOptimality(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	opt := newWindow()
	for trial := 0; trial < 40; trial++ {
		T := 4 + rng.Intn(12)
		w := make([]float64, T)
		for i := range w {
			w[i] = math.Round(rng.Float64()*100) / 100
		}
		start := rng.Intn(T - 1)
		end := start + 1 + rng.Intn(T-start)
		d := 1 + rng.Intn(end-start)

		b, err := opt.Optimize(context.Background(), w, model.Window{Start: start, End: end}, d)
		require.NoError(t, err)
		require.Equal(t, d, b.Len())
		require.GreaterOrEqual(t, b.Start, start)
		require.LessOrEqual(t, b.End, end)

		best, bestStart := math.Inf(1), -1
		for s := start; s+d <= end; s++ {
			if v := BlockWeight(w, s, d); v < best-tieTol {
				best, bestStart = v, s
			}
		}
		assert.InDelta(t, best, b.Weight, 1e-9, "trial %d", trial)
		assert.Equal(t, bestStart, b.Start, "trial %d", trial)
	}
}

func TestWindowClocks(t *testing.T) {
	g := timeslot.HalfHourly(48)
	b := Block{Start: 1, End: 3}
	start, end := b.Clocks(g)
	assert.Equal(t, "08:30", start)
	assert.Equal(t, "09:30", end)
}

func TestFleetSingleDeviceExample(t *testing.T) {
	devs := []FleetDevice{{Device: model.Device{ID: "switch.espee_dryer", PowerW: 1}, Slots: 3}}
	plan, err := newFleet().Optimize(context.Background(), devs, model.PriceSeries{5, 1, 1, 1, 5}, model.SolarSeries{0, 0, 0, 0, 0})
	require.NoError(t, err)
	a, ok := plan.Lookup("switch.espee_dryer")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, a.Active)
	assert.Equal(t, 1, a.Start)
	assert.Equal(t, 4, a.End)
	assert.InDelta(t, 3.0, plan.Cost, 1e-9)
	assert.True(t, plan.Optimal)
}

func TestFleetEnvelopeNotContiguous(t *testing.T) {
	devs := []FleetDevice{{Device: model.Device{ID: "fan.esp_bedroom_hvac", PowerW: 2}, Slots: 2}}
	plan, err := newFleet().Optimize(context.Background(), devs, model.PriceSeries{1, 5, 5, 1}, make(model.SolarSeries, 4))
	require.NoError(t, err)
	a, _ := plan.Lookup("fan.esp_bedroom_hvac")
	assert.Equal(t, []int{0, 3}, a.Active)
	assert.Equal(t, 0, a.Start)
	assert.Equal(t, 4, a.End)
}

func TestFleetZeroDurationAbsent(t *testing.T) {
	devs := []FleetDevice{
		{Device: model.Device{ID: "switch.washer", PowerW: 1}, Slots: 0},
		{Device: model.Device{ID: "switch.dryer", PowerW: 1}, Slots: 1},
	}
	plan, err := newFleet().Optimize(context.Background(), devs, model.PriceSeries{2, 1}, model.SolarSeries{0, 0})
	require.NoError(t, err)
	_, ok := plan.Lookup("switch.washer")
	assert.False(t, ok)
	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, []int{1}, plan.Assignments[0].Active)
}

func TestFleetSolarCovering(t *testing.T) {
	devs := []FleetDevice{
		{Device: model.Device{ID: "a", PowerW: 1}, Slots: 2},
		{Device: model.Device{ID: "b", PowerW: 2}, Slots: 1},
	}
	prices := model.PriceSeries{1, 2, 3, 4}
	solar := model.SolarSeries{0, 1.5, 0, 0}
	plan, err := newFleet().Optimize(context.Background(), devs, prices, solar)
	require.NoError(t, err)

	a, _ := plan.Lookup("a")
	b, _ := plan.Lookup("b")
	assert.Equal(t, []int{0, 1}, a.Active)
	assert.Equal(t, []int{1}, b.Active)
	assert.InDelta(t, 4.0, plan.Cost, 1e-6)

	load := GridLoad([]model.Device{devs[0].Device, devs[1].Device}, [][]int{a.Active, b.Active}, solar)
	for slot, l := range load {
		assert.GreaterOrEqual(t, l, -1e-9, "slot %d", slot)
	}
}

func TestFleetExactDurationsAndNonNegativeLoad(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 8; trial++ {
		T := 6
		prices := make(model.PriceSeries, T)
		solar := make(model.SolarSeries, T)
		for i := range prices {
			prices[i] = math.Round(rng.Float64()*50) / 100
		}
		solar[rng.Intn(T)] = 0.5
		devs := []FleetDevice{
			{Device: model.Device{ID: "x", PowerW: 1}, Slots: 1 + rng.Intn(3)},
			{Device: model.Device{ID: "y", PowerW: 0.5}, Slots: 1 + rng.Intn(3)},
		}
		plan, err := newFleet().Optimize(context.Background(), devs, prices, solar)
		require.NoError(t, err)

		active := make([][]int, len(devs))
		for i, d := range devs {
			a, ok := plan.Lookup(d.Device.ID)
			require.True(t, ok)
			assert.Len(t, a.Active, d.Slots)
			active[i] = a.Active
		}
		for slot, l := range GridLoad([]model.Device{devs[0].Device, devs[1].Device}, active, solar) {
			assert.GreaterOrEqual(t, l, -1e-9, "trial %d slot %d", trial, slot)
		}
	}
}

// fleetOptimum enumerates which devices run in each solar slot and fills the
// remaining slots of every device with its cheapest non-solar ones.
func fleetOptimum(devs []FleetDevice, prices model.PriceSeries, solar model.SolarSeries) float64 {
	var sunny []int
	isSunny := make([]bool, len(prices))
	for t, s := range solar {
		if s > 0 {
			sunny = append(sunny, t)
			isSunny[t] = true
		}
	}
	var shade []float64
	for _, t := range rankSlots(prices, isSunny) {
		shade = append(shade, prices[t])
	}
	var offset float64
	for t, s := range solar {
		offset -= prices[t] * s
	}

	best := math.Inf(1)
	subsets := 1 << len(sunny)
	choice := make([]int, len(devs))
	var walk func(i int)
	walk = func(i int) {
		if i == len(devs) {
			cost := offset
			for t, slot := range sunny {
				var power float64
				for k, d := range devs {
					if choice[k]&(1<<t) != 0 {
						power += d.Device.Power()
					}
				}
				if power < solar[slot]-1e-9 {
					return
				}
			}
			for k, d := range devs {
				n := 0
				for t, slot := range sunny {
					if choice[k]&(1<<t) != 0 {
						cost += prices[slot] * d.Device.Power()
						n++
					}
				}
				for _, p := range shade[:d.Slots-n] {
					cost += p * d.Device.Power()
				}
			}
			best = math.Min(best, cost)
			return
		}
		for mask := 0; mask < subsets; mask++ {
			n := 0
			for t := range sunny {
				if mask&(1<<t) != 0 {
					n++
				}
			}
			if n > devs[i].Slots || devs[i].Slots-n > len(shade) {
				continue
			}
			choice[i] = mask
			walk(i + 1)
		}
	}
	walk(0)
	return best
}

func TestFleetHouseholdDayProvenOptimal(t *testing.T) {
	prices := make(model.PriceSeries, 24)
	for h := range prices {
		prices[h] = 0.2 + 0.1*math.Sin(float64(h)/3)
	}
	solar := make(model.SolarSeries, 24)
	solar[10], solar[11] = 300, 400
	devs := []FleetDevice{
		{Device: model.Device{ID: "switch.washer", PowerW: 1500}, Slots: 2},
		{Device: model.Device{ID: "switch.dishwasher", PowerW: 500}, Slots: 2},
		{Device: model.Device{ID: "switch.espee_dryer", PowerW: 2000}, Slots: 2},
		{Device: model.Device{ID: "fan.esp_bedroom_hvac", PowerW: 60}, Slots: 2},
		{Device: model.Device{ID: "switch.ev_charger", PowerW: 7000}, Slots: 2},
	}

	plan, err := newFleet().Optimize(context.Background(), devs, prices, solar)
	require.NoError(t, err)
	assert.True(t, plan.Optimal)

	active := make([][]int, len(devs))
	models := make([]model.Device, len(devs))
	for i, d := range devs {
		a, ok := plan.Lookup(d.Device.ID)
		require.True(t, ok)
		assert.Len(t, a.Active, d.Slots)
		active[i], models[i] = a.Active, d.Device
	}
	for slot, l := range GridLoad(models, active, solar) {
		assert.GreaterOrEqual(t, l, -1e-9, "slot %d", slot)
	}
	assert.InDelta(t, fleetOptimum(devs, prices, solar), plan.Cost, 1e-6)
}

func TestFleetRandomDaysMatchEnumeration(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 6; trial++ {
		prices := make(model.PriceSeries, 24)
		for h := range prices {
			prices[h] = math.Round(rng.Float64()*40) / 100
		}
		solar := make(model.SolarSeries, 24)
		for _, h := range rng.Perm(24)[:3] {
			solar[h] = float64(100 + rng.Intn(900))
		}
		devs := make([]FleetDevice, 4)
		for i := range devs {
			devs[i] = FleetDevice{Device: model.Device{ID: string(rune('a' + i)), PowerW: float64(200 + rng.Intn(3000))}, Slots: 1 + rng.Intn(4)}
		}
		plan, err := newFleet().Optimize(context.Background(), devs, prices, solar)
		want := fleetOptimum(devs, prices, solar)
		if math.IsInf(want, 1) {
			assert.ErrorIs(t, err, ErrInfeasible, "trial %d", trial)
			continue
		}
		require.NoError(t, err, "trial %d", trial)
		assert.True(t, plan.Optimal, "trial %d", trial)
		assert.InDelta(t, want, plan.Cost, 1e-6, "trial %d", trial)
	}
}

func TestFleetSolarOnMostSlots(t *testing.T) {
	// Only one shaded slot: the device must take two sunny ones.
	devs := []FleetDevice{{Device: model.Device{ID: "a", PowerW: 1}, Slots: 3}}
	plan, err := newFleet().Optimize(context.Background(), devs, model.PriceSeries{3, 2, 1}, model.SolarSeries{0.5, 0.5, 0})
	require.NoError(t, err)
	a, _ := plan.Lookup("a")
	assert.Equal(t, []int{0, 1, 2}, a.Active)
	assert.True(t, plan.Optimal)
}

func TestRankSlots(t *testing.T) {
	prices := model.PriceSeries{0.3, 0.1, 0.2, 0.1}
	assert.Equal(t, []int{1, 3, 2, 0}, rankSlots(prices, nil))
	assert.Equal(t, []int{3, 2, 0}, rankSlots(prices, []bool{false, true, false, false}))
}

func TestFleetRejectsBadDurations(t *testing.T) {
	prices := model.PriceSeries{1, 1, 1}
	solar := model.SolarSeries{0, 0, 0}
	_, err := newFleet().Optimize(context.Background(), []FleetDevice{{Device: model.Device{ID: "a"}, Slots: 4}}, prices, solar)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	_, err = newFleet().Optimize(context.Background(), []FleetDevice{{Device: model.Device{ID: "a"}, Slots: -1}}, prices, solar)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestFleetInfeasibleSolar(t *testing.T) {
	devs := []FleetDevice{{Device: model.Device{ID: "a", PowerW: 1}, Slots: 2}}
	_, err := newFleet().Optimize(context.Background(), devs, model.PriceSeries{1, 1, 1}, model.SolarSeries{0, 5, 0})
	assert.ErrorIs(t, err, ErrInfeasible)

	// Two slots need covering but the device runs only once.
	devs = []FleetDevice{{Device: model.Device{ID: "a", PowerW: 1}, Slots: 1}}
	_, err = newFleet().Optimize(context.Background(), devs, model.PriceSeries{1, 1, 1}, model.SolarSeries{0.5, 0.5, 0})
	assert.ErrorIs(t, err, ErrInfeasible)

	_, err = newFleet().Optimize(context.Background(), nil, model.PriceSeries{1}, model.SolarSeries{0.2})
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestFleetLengthMismatch(t *testing.T) {
	_, err := newFleet().Optimize(context.Background(), nil, model.PriceSeries{1, 2}, model.SolarSeries{0})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInfeasible))
}

func TestFleetClocksWrap(t *testing.T) {
	a := Assignment{Start: 22, End: 24}
	start, end := a.Clocks(timeslot.Hourly())
	assert.Equal(t, "22:00", start)
	assert.Equal(t, "00:00", end)
}

func TestGridCost(t *testing.T) {
	load := GridLoad([]model.Device{{ID: "a", PowerW: 2}}, [][]int{{0, 2}}, model.SolarSeries{1, 0, 0.5})
	assert.InDeltaSlice(t, []float64{1, 0, 1.5}, load, 1e-12)
	assert.InDelta(t, 0.1*1+0.3*1.5, GridCost(model.PriceSeries{0.1, 0.2, 0.3}, load), 1e-12)
}

func TestDecodeConfig(t *testing.T) {
	yml := `
grid:
  origin_minutes: 420
  width_minutes: 30
solver:
  time_limit: 2s
  node_limit: 500
`
	cfg, err := DecodeConfig(strings.NewReader(yml), "yaml")
	require.NoError(t, err)
	assert.Equal(t, 420, cfg.Grid.Origin)
	assert.Equal(t, 2*time.Second, cfg.Solver.TimeLimit)
	assert.Equal(t, 500, cfg.Solver.NodeLimit)
	assert.Equal(t, timeslot.Hourly(), cfg.FleetGrid)

	cfg, err = DecodeConfig(strings.NewReader(`{"fleet_grid":{"width_minutes":60,"slots":12}}`), "json")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.FleetGrid.Slots)
	assert.Equal(t, 480, cfg.Grid.Origin)

	_, err = DecodeConfig(strings.NewReader(""), "toml")
	assert.Error(t, err)

	_, err = DecodeConfig(strings.NewReader(`{"fleet_grid":{"width_minutes":-5}}`), "json")
	assert.Error(t, err)
}
