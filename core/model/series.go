package model

// PriceSeries holds the grid price per slot (EUR per kWh-equivalent).
type PriceSeries []float64

// SolarSeries holds the expected solar production per slot in watts.
type SolarSeries []float64

// Clone returns a copy of the series.
func (p PriceSeries) Clone() PriceSeries {
	if p == nil {
		return nil
	}
	cp := make(PriceSeries, len(p))
	copy(cp, p)
	return cp
}

// Clone returns a copy of the series.
func (s SolarSeries) Clone() SolarSeries {
	if s == nil {
		return nil
	}
	cp := make(SolarSeries, len(s))
	copy(cp, s)
	return cp
}

// Aligned is a price and solar pair of identical length.
type Aligned struct {
	Prices PriceSeries `json:"prices"`
	Solar  SolarSeries `json:"solar"`
	// PriceFallback and SolarFallback record whether a constant substitute
	// replaced an unavailable upstream series.
	PriceFallback bool `json:"price_fallback,omitempty"`
	SolarFallback bool `json:"solar_fallback,omitempty"`
}

// Len returns the horizon length T.
func (a Aligned) Len() int { return len(a.Prices) }
