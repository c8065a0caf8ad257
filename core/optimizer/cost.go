package optimizer

import "github.com/kilianp07/smartwatt/core/model"

// BlockWeight sums weights over [start, start+length).
func BlockWeight(weights []float64, start, length int) float64 {
	var sum float64
	for t := start; t < start+length && t < len(weights); t++ {
		sum += weights[t]
	}
	return sum
}

// GridLoad returns the net grid draw per slot for a set of active slots:
// the summed power of every running device minus solar production.
func GridLoad(devices []model.Device, active [][]int, solar model.SolarSeries) []float64 {
	load := make([]float64, len(solar))
	for t := range load {
		load[t] = -solar[t]
	}
	for i, slots := range active {
		if i >= len(devices) {
			break
		}
		p := devices[i].Power()
		for _, t := range slots {
			if t >= 0 && t < len(load) {
				load[t] += p
			}
		}
	}
	return load
}

// GridCost prices a load profile: sum of price[t]*load[t].
func GridCost(prices model.PriceSeries, load []float64) float64 {
	var sum float64
	n := min(len(prices), len(load))
	for t := 0; t < n; t++ {
		sum += prices[t] * load[t]
	}
	return sum
}
