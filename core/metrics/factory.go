package metrics

import (
	"fmt"

	"github.com/kilianp07/smartwatt/core/factory"
)

// sinks maps a configured sink type (nop, prometheus, influx) to its
// constructor. infra/metrics fills it from init.
var sinks = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink makes a sink type available to NewMetricsSink.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinks.Register(name, f)
}

// NewMetricsSink builds the sink described by the metrics.sinks list. Each
// type may appear once. Sinks that come back as NopSink, such as an
// unreachable InfluxDB, are left out of the fan-out and an empty list yields
// a NopSink.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	seen := make(map[string]bool, len(cfgs))
	var live []MetricsSink
	for i, c := range cfgs {
		if seen[c.Type] {
			return nil, fmt.Errorf("metrics sink %d: duplicate type %q", i, c.Type)
		}
		seen[c.Type] = true
		s, err := sinks.Create(c)
		if err != nil {
			return nil, fmt.Errorf("metrics sink %d (%s): %w", i, c.Type, err)
		}
		if _, nop := s.(NopSink); nop {
			continue
		}
		live = append(live, s)
	}
	switch len(live) {
	case 0:
		return NopSink{}, nil
	case 1:
		return live[0], nil
	default:
		return NewMultiSink(live...), nil
	}
}
