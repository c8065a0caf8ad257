package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/smartwatt/core/logger"
	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/solver"
	"github.com/kilianp07/smartwatt/core/timeslot"
)

// FleetDevice is a device together with the exact number of slots it must run.
type FleetDevice struct {
	Device model.Device
	Slots  int
}

// Assignment holds the active slots of one device and their envelope.
type Assignment struct {
	Device string `json:"device"`
	Active []int  `json:"active"`
	// Start and End delimit the envelope [min active, max active + 1).
	Start int `json:"start"`
	End   int `json:"end"`
}

// Clocks converts the envelope to wall-clock start and end times on g.
func (a Assignment) Clocks(g timeslot.Grid) (string, string) {
	return g.Clock(a.Start), g.Clock(a.End)
}

// Plan is the fleet optimizer output. Devices without active slots are absent.
type Plan struct {
	Assignments []Assignment `json:"assignments"`
	// Cost is sum of price[t]*grid_load[t] over the horizon.
	Cost    float64 `json:"cost"`
	Optimal bool    `json:"optimal"`
	Nodes   int     `json:"nodes"`
}

// Lookup returns the assignment of a device.
func (p Plan) Lookup(device string) (Assignment, bool) {
	for _, a := range p.Assignments {
		if a.Device == device {
			return a, true
		}
	}
	return Assignment{}, false
}

// FleetOptimizer assigns active slots to several devices so that the total
// grid cost is minimal, every device runs exactly its required slot count and
// the grid load never goes negative.
type FleetOptimizer struct {
	opts solver.Options
	log  logger.Logger
}

// NewFleetOptimizer returns an optimizer using the given solver limits.
func NewFleetOptimizer(opts solver.Options, log logger.Logger) *FleetOptimizer {
	return &FleetOptimizer{opts: opts, log: logger.OrNop(log)}
}

// Optimize solves the fleet problem over T = len(prices) slots.
//
//gocyclo:ignore
func (o *FleetOptimizer) Optimize(ctx context.Context, devices []FleetDevice, prices model.PriceSeries, solar model.SolarSeries) (Plan, error) {
	T := len(prices)
	if T == 0 || len(solar) != T {
		return Plan{}, fmt.Errorf("optimizer: price and solar series must share a non-zero length (got %d and %d)", T, len(solar))
	}
	var capacity float64
	for _, fd := range devices {
		if fd.Slots < 0 || fd.Slots > T {
			return Plan{}, fmt.Errorf("%w: device %s needs %d slots, horizon is %d", ErrInvalidDuration, fd.Device.ID, fd.Slots, T)
		}
		if fd.Slots > 0 {
			capacity += fd.Device.Power()
		}
	}

	var covered []int
	for t, s := range solar {
		if s > 0 {
			if s > capacity+1e-9 {
				return Plan{}, fmt.Errorf("%w: solar %.2f W at slot %d exceeds fleet capacity %.2f W", ErrInfeasible, s, t, capacity)
			}
			covered = append(covered, t)
		}
	}

	// Devices with nothing to run take no variables.
	var running []int
	for i, fd := range devices {
		if fd.Slots > 0 {
			running = append(running, i)
		}
	}

	var active [][]int
	plan := Plan{Optimal: true}
	if len(running) > 0 && len(covered) > 0 {
		var err error
		active, plan, err = o.solve(ctx, devices, running, covered, prices, solar)
		if err != nil {
			return Plan{}, err
		}
	} else {
		if len(covered) > 0 {
			return Plan{}, fmt.Errorf("%w: solar must be absorbed but no device runs", ErrInfeasible)
		}
		active = make([][]int, len(devices))
		for _, i := range running {
			active[i] = cheapest(prices, devices[i].Slots)
		}
	}

	models := make([]model.Device, len(devices))
	for i, fd := range devices {
		models[i] = fd.Device
	}
	plan.Cost = GridCost(prices, GridLoad(models, active, solar))
	for i, slots := range active {
		if len(slots) == 0 {
			continue
		}
		plan.Assignments = append(plan.Assignments, Assignment{
			Device: devices[i].Device.ID,
			Active: slots,
			Start:  slots[0],
			End:    slots[len(slots)-1] + 1,
		})
	}
	o.log.Debugw("fleet plan", map[string]any{"devices": len(plan.Assignments), "cost": plan.Cost, "nodes": plan.Nodes, "optimal": plan.Optimal})
	return plan, nil
}

func (o *FleetOptimizer) solve(ctx context.Context, devices []FleetDevice, running, covered []int, prices model.PriceSeries, solar model.SolarSeries) ([][]int, Plan, error) {
	m := buildFleetModel(devices, running, covered, prices, solar)
	if m.problem.Start == nil {
		o.log.Debugw("no greedy start", map[string]any{"vars": len(m.vars)})
	}
	sol, err := solver.Solve(ctx, m.problem, o.opts)
	switch {
	case errors.Is(err, solver.ErrInfeasible):
		return nil, Plan{}, fmt.Errorf("%w: %v", ErrInfeasible, err)
	case err != nil:
		return nil, Plan{}, err
	}
	return m.active(sol.X, len(devices)), Plan{Optimal: sol.Optimal, Nodes: sol.Nodes}, nil
}

// cheapest returns the n lowest-priced slots in ascending slot order. Equal
// prices prefer the earlier slot.
func cheapest(prices model.PriceSeries, n int) []int {
	out := append([]int(nil), rankSlots(prices, nil)[:n]...)
	sort.Ints(out)
	return out
}
