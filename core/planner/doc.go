// Package planner ties the series adapter, the optimizers and the schedule
// store together. It turns single-device and fleet requests into recorded
// OptimizationResults, persists accepted schedules and announces changes on
// the event bus.
package planner
