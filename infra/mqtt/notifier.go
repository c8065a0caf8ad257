package mqtt

import (
	"context"

	"github.com/kilianp07/smartwatt/core/events"
	coremqtt "github.com/kilianp07/smartwatt/core/mqtt"
	"github.com/kilianp07/smartwatt/infra/logger"
	"github.com/kilianp07/smartwatt/internal/eventbus"
)

// StartNotifier forwards every ScheduleChangedEvent on the bus to pub. It
// stops when the context is canceled or the bus is closed; the returned
// channel is closed once it has exited. Publish failures are logged and the
// next event is processed.
func StartNotifier(ctx context.Context, bus eventbus.EventBus, pub coremqtt.Publisher) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || pub == nil {
		close(done)
		return done
	}
	log := logger.New("mqtt-notifier")
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
				e, ok := ev.(events.ScheduleChangedEvent)
				if !ok {
					continue
				}
				msg := coremqtt.ScheduleMessage{Device: e.Device, Start: e.Start, End: e.End, Origin: e.Origin, Time: e.Time}
				if err := pub.PublishSchedule(ctx, msg); err != nil {
					log.Warnf("notify %s: %v", e.Device, err)
				}
			}
		}
	}()
	return done
}
