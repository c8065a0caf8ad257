package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/smartwatt/core/metrics"
)

// PromSink records optimization events in Prometheus metrics.
type PromSink struct {
	optimizations *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	nodes         *prometheus.HistogramVec
	cost          *prometheus.GaugeVec
	fallbacks     *prometheus.CounterVec
	changes       *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer. The
// /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		optimizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartwatt_optimizations_total",
			Help: "Optimization requests by kind and status",
		}, []string{"kind", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartwatt_optimization_seconds",
			Help:    "Wall-clock time of one optimization",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		nodes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartwatt_solver_nodes",
			Help:    "Branch and bound nodes evaluated per optimization",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"kind"}),
		cost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartwatt_expected_cost",
			Help: "Objective value of the latest accepted plan per device",
		}, []string{"device"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartwatt_series_fallbacks_total",
			Help: "Upstream series replaced by their fallback",
		}, []string{"source"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartwatt_schedule_changes_total",
			Help: "Persisted schedule entries by origin",
		}, []string{"origin"}),
	}
	var err error
	if s.optimizations, err = register(reg, s.optimizations); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.nodes, err = register(reg, s.nodes); err != nil {
		return nil, err
	}
	if s.cost, err = register(reg, s.cost); err != nil {
		return nil, err
	}
	if s.fallbacks, err = register(reg, s.fallbacks); err != nil {
		return nil, err
	}
	if s.changes, err = register(reg, s.changes); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordOptimization counts the request and observes latency and nodes.
func (s *PromSink) RecordOptimization(ev coremetrics.OptimizationEvent) error {
	kind := ev.Kind.String()
	s.optimizations.WithLabelValues(kind, string(ev.Status)).Inc()
	s.latency.WithLabelValues(kind).Observe(ev.Latency.Seconds())
	s.nodes.WithLabelValues(kind).Observe(float64(ev.Nodes))
	if ev.Status.Accepted() && ev.Device != "" {
		s.cost.WithLabelValues(ev.Device).Set(ev.Cost)
	}
	return nil
}

// RecordFallback counts a series fallback.
func (s *PromSink) RecordFallback(ev coremetrics.FallbackEvent) error {
	s.fallbacks.WithLabelValues(ev.Source).Inc()
	return nil
}

// RecordScheduleChange counts a persisted entry.
func (s *PromSink) RecordScheduleChange(ev coremetrics.ScheduleChangeEvent) error {
	s.changes.WithLabelValues(ev.Origin).Inc()
	return nil
}
