package metrics

import (
	"time"

	"github.com/kilianp07/smartwatt/core/model"
)

// OptimizationEvent describes one finished optimization request.
type OptimizationEvent struct {
	ResultID string
	Device   string
	Kind     model.Kind
	Status   model.Status
	Cost     float64
	// Nodes is the number of relaxations the solver evaluated.
	Nodes   int
	Latency time.Duration
	Time    time.Time
}

// MetricsSink records optimization outcomes for observability purposes.
type MetricsSink interface {
	RecordOptimization(ev OptimizationEvent) error
}

// FallbackEvent records that an upstream series was replaced by its fallback.
type FallbackEvent struct {
	// Source is "prices" or "solar".
	Source string
	Slots  int
	Time   time.Time
}

// FallbackRecorder records series fallbacks.
type FallbackRecorder interface {
	RecordFallback(ev FallbackEvent) error
}

// ScheduleChangeEvent records a persisted schedule entry.
type ScheduleChangeEvent struct {
	Device string
	Start  string
	End    string
	// Origin is "optimizer", "plan" or "manual".
	Origin string
	Time   time.Time
}

// ScheduleRecorder records schedule changes.
type ScheduleRecorder interface {
	RecordScheduleChange(ev ScheduleChangeEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordOptimization(OptimizationEvent) error     { return nil }
func (NopSink) RecordFallback(FallbackEvent) error             { return nil }
func (NopSink) RecordScheduleChange(ScheduleChangeEvent) error { return nil }

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordOptimization forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordOptimization(ev OptimizationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordOptimization(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordFallback forwards fallback events to sinks supporting them.
func (m *MultiSink) RecordFallback(ev FallbackEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FallbackRecorder); ok {
			if err := rec.RecordFallback(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordScheduleChange forwards schedule changes to sinks supporting them.
func (m *MultiSink) RecordScheduleChange(ev ScheduleChangeEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ScheduleRecorder); ok {
			if err := rec.RecordScheduleChange(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
