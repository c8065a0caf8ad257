// Package events defines the events emitted on the event bus.
//
// Available event types:
//   - OptimizationEvent: an optimization finished, successfully or not
//   - FallbackEvent: an upstream series was replaced by its fallback
//   - ScheduleChangedEvent: a schedule entry was persisted
package events
