package mqtt

import (
	"context"
	"time"
)

// ScheduleMessage is the retained payload announcing the current window of a
// device to the control loop.
type ScheduleMessage struct {
	Device string    `json:"device"`
	Start  string    `json:"start"`
	End    string    `json:"end"`
	Origin string    `json:"origin"`
	Time   time.Time `json:"time"`
}

// Publisher represents an MQTT client capable of announcing schedule changes.
type Publisher interface {
	// PublishSchedule sends msg on the device topic. The message is retained
	// so a control loop connecting later receives the latest window.
	PublishSchedule(ctx context.Context, msg ScheduleMessage) error
}
