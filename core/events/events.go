package events

import (
	"time"

	"github.com/kilianp07/smartwatt/core/model"
)

// OptimizationEvent is published once per optimization request.
type OptimizationEvent struct {
	Result  model.OptimizationResult
	Nodes   int
	Latency time.Duration
}

// FallbackEvent is published when the series adapter substitutes a constant
// series for an unavailable upstream one.
type FallbackEvent struct {
	Source string
	Slots  int
}

// ScheduleChangedEvent is published after a schedule entry is written.
type ScheduleChangedEvent struct {
	Device string
	Start  string
	End    string
	// Origin is "optimizer", "plan" or "manual".
	Origin string
	Time   time.Time
}
