package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/smartwatt/core/events"
	coremetrics "github.com/kilianp07/smartwatt/core/metrics"
	"github.com/kilianp07/smartwatt/infra/logger"
	"github.com/kilianp07/smartwatt/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled or the bus is closed. The returned
// channel is closed once the collector has exited.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.OptimizationEvent:
		return sink.RecordOptimization(coremetrics.OptimizationEvent{
			ResultID: e.Result.ID,
			Device:   e.Result.Device,
			Kind:     e.Result.Kind,
			Status:   e.Result.Status,
			Cost:     e.Result.Cost,
			Nodes:    e.Nodes,
			Latency:  e.Latency,
			Time:     e.Result.CreatedAt,
		})
	case events.FallbackEvent:
		if r, ok := sink.(coremetrics.FallbackRecorder); ok {
			return r.RecordFallback(coremetrics.FallbackEvent{Source: e.Source, Slots: e.Slots, Time: time.Now()})
		}
	case events.ScheduleChangedEvent:
		if r, ok := sink.(coremetrics.ScheduleRecorder); ok {
			return r.RecordScheduleChange(coremetrics.ScheduleChangeEvent{
				Device: e.Device, Start: e.Start, End: e.End, Origin: e.Origin, Time: e.Time,
			})
		}
	}
	return nil
}
