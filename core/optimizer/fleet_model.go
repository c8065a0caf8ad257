package optimizer

import (
	"fmt"
	"sort"

	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/solver"
)

// fleetVar is one binary variable of the fleet model: device dev runs in slot.
type fleetVar struct {
	dev  int
	slot int
}

// fleetModel is the binary program of a fleet day.
//
// Only solar slots couple devices, so a device never needs a non-solar slot
// outside its Slots cheapest ones: any plan can swap a pricier non-solar slot
// for an unused cheaper one without touching a solar constraint. Each running
// device therefore gets variables for every solar slot plus its cheapest
// non-solar slots, which keeps the search space small without losing the
// optimum.
type fleetModel struct {
	vars    []fleetVar
	problem solver.Problem
}

func buildFleetModel(devices []FleetDevice, running, covered []int, prices model.PriceSeries, solar model.SolarSeries) fleetModel {
	isSolar := make([]bool, len(prices))
	for _, t := range covered {
		isSolar[t] = true
	}
	ranked := rankSlots(prices, isSolar)

	var m fleetModel
	for _, i := range running {
		slots := append([]int(nil), covered...)
		slots = append(slots, ranked[:min(devices[i].Slots, len(ranked))]...)
		sort.Ints(slots)
		for _, t := range slots {
			m.vars = append(m.vars, fleetVar{dev: i, slot: t})
		}
	}

	n := len(m.vars)
	p := solver.Problem{Objective: make([]float64, n)}
	for j, v := range m.vars {
		p.Objective[j] = prices[v.slot] * devices[v.dev].Device.Power()
	}
	for _, t := range covered {
		c := solver.Constraint{Name: fmt.Sprintf("grid_load_%d", t), Coef: make([]float64, n), Sense: solver.GE, RHS: solar[t]}
		for j, v := range m.vars {
			if v.slot == t {
				c.Coef[j] = devices[v.dev].Device.Power()
			}
		}
		p.Constraints = append(p.Constraints, c)
	}
	for _, i := range running {
		c := solver.Constraint{Name: "duration_" + devices[i].Device.ID, Coef: make([]float64, n), Sense: solver.EQ, RHS: float64(devices[i].Slots)}
		for j, v := range m.vars {
			if v.dev == i {
				c.Coef[j] = 1
			}
		}
		p.Constraints = append(p.Constraints, c)
	}
	p.Start = m.greedy(devices, running, covered, ranked, prices, solar)
	m.problem = p
	return m
}

// greedy covers the solar slots, largest first, with the devices that add
// the least cost per covered watt. It returns nil when it cannot cover a
// slot.
//
//gocyclo:ignore
func (m fleetModel) greedy(devices []FleetDevice, running, covered, ranked []int, prices model.PriceSeries, solar model.SolarSeries) []bool {
	type state struct {
		dev     int
		kept    []int // cheapest non-solar slots, by price
		onSolar map[int]bool
	}
	states := make([]*state, len(running))
	for k, i := range running {
		states[k] = &state{dev: i, kept: ranked[:min(devices[i].Slots, len(ranked))], onSolar: map[int]bool{}}
	}
	// dropped returns the price saved when s takes one more solar slot.
	dropped := func(s *state) float64 {
		idx := devices[s.dev].Slots - len(s.onSolar) - 1
		if idx < len(s.kept) {
			return prices[s.kept[idx]]
		}
		return 0
	}

	order := append([]int(nil), covered...)
	sort.SliceStable(order, func(a, b int) bool { return solar[order[a]] > solar[order[b]] })
	for _, t := range order {
		need := solar[t]
		for need > 1e-9 {
			var pick *state
			var pickScore float64
			for _, s := range states {
				pw := devices[s.dev].Device.Power()
				if pw <= 0 || s.onSolar[t] || len(s.onSolar) >= devices[s.dev].Slots {
					continue
				}
				score := pw * (prices[t] - dropped(s)) / min(pw, need)
				if pick == nil || score < pickScore {
					pick, pickScore = s, score
				}
			}
			if pick == nil {
				return nil
			}
			pick.onSolar[t] = true
			need -= devices[pick.dev].Device.Power()
		}
	}

	// Devices with fewer non-solar candidates than slots fill up on the
	// cheapest remaining solar slots.
	bySolarPrice := append([]int(nil), covered...)
	sort.SliceStable(bySolarPrice, func(a, b int) bool { return prices[bySolarPrice[a]] < prices[bySolarPrice[b]] })
	for _, s := range states {
		for _, t := range bySolarPrice {
			if devices[s.dev].Slots-len(s.onSolar) <= len(s.kept) {
				break
			}
			s.onSolar[t] = true
		}
		if devices[s.dev].Slots-len(s.onSolar) > len(s.kept) {
			return nil
		}
	}

	on := make(map[fleetVar]bool)
	for _, s := range states {
		for t := range s.onSolar {
			on[fleetVar{dev: s.dev, slot: t}] = true
		}
		for _, t := range s.kept[:devices[s.dev].Slots-len(s.onSolar)] {
			on[fleetVar{dev: s.dev, slot: t}] = true
		}
	}
	x := make([]bool, len(m.vars))
	for j, v := range m.vars {
		x[j] = on[v]
	}
	return x
}

// active maps a solver assignment back to per-device slot lists.
func (m fleetModel) active(x []bool, nDevices int) [][]int {
	out := make([][]int, nDevices)
	for j, v := range m.vars {
		if x[j] {
			out[v.dev] = append(out[v.dev], v.slot)
		}
	}
	return out
}

// rankSlots returns the slots not marked in skip, cheapest first. Equal
// prices keep the earlier slot first.
func rankSlots(prices model.PriceSeries, skip []bool) []int {
	idx := make([]int, 0, len(prices))
	for t := range prices {
		if skip == nil || !skip[t] {
			idx = append(idx, t)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return prices[idx[a]] < prices[idx[b]] })
	return idx
}
