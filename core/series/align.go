// Package series turns upstream price and solar data into the aligned,
// strongly typed sequences consumed by the optimizers. Unavailable upstream
// data is replaced by constant fallbacks here so the optimizers only ever see
// well-formed, equal-length, non-empty series.
package series

import (
	"math"

	"github.com/kilianp07/smartwatt/core/model"
)

// Fallback configures the substitutes used when a source is unavailable.
type Fallback struct {
	// Price is the constant price used when no price data is available.
	Price float64 `json:"price" yaml:"price"`
	// Length is the number of slots of a substituted series.
	Length int `json:"length" yaml:"length"`
}

// DefaultFallback mirrors the historical behaviour: 48 half-hour slots at 0.30.
func DefaultFallback() Fallback {
	return Fallback{Price: 0.30, Length: 48}
}

func (f Fallback) withDefaults() Fallback {
	d := DefaultFallback()
	if f.Price <= 0 {
		f.Price = d.Price
	}
	if f.Length <= 0 {
		f.Length = d.Length
	}
	return f
}

// ConstantPrices returns a price series of n identical values.
func ConstantPrices(n int, v float64) model.PriceSeries {
	out := make(model.PriceSeries, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Align substitutes fallbacks for empty inputs and for non-finite readings,
// then truncates both series to the shorter length. Extending a short series is a forecasting concern and is
// never attempted here.
func Align(prices model.PriceSeries, solar model.SolarSeries, fb Fallback) model.Aligned {
	fb = fb.withDefaults()
	out := model.Aligned{}
	prices = sanitizePrices(prices, fb.Price)
	solar = sanitizeSolar(solar)
	if len(prices) == 0 {
		prices = ConstantPrices(fb.Length, fb.Price)
		out.PriceFallback = true
	}
	if len(solar) == 0 {
		solar = make(model.SolarSeries, fb.Length)
		out.SolarFallback = true
	}
	n := len(prices)
	if len(solar) < n {
		n = len(solar)
	}
	out.Prices = prices[:n:n].Clone()
	out.Solar = solar[:n:n].Clone()
	return out
}

// Weights returns max(0, price[t]-solar[t]) for every slot: the grid cost proxy
// used to rank candidate blocks. Excess solar never yields a negative weight.
func Weights(a model.Aligned) []float64 {
	w := make([]float64, a.Len())
	for t := range w {
		w[t] = math.Max(0, a.Prices[t]-a.Solar[t])
	}
	return w
}

// sanitizePrices replaces non-finite readings with the fallback price and
// clamps negative prices to zero. Slot positions never move.
func sanitizePrices(in model.PriceSeries, fallback float64) model.PriceSeries {
	out := make(model.PriceSeries, len(in))
	for t, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = fallback
		}
		out[t] = math.Max(0, v)
	}
	return out
}

// sanitizeSolar reads a non-finite forecast as no production.
func sanitizeSolar(in model.SolarSeries) model.SolarSeries {
	out := make(model.SolarSeries, len(in))
	for t, v := range in {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[t] = v
		}
	}
	return out
}
