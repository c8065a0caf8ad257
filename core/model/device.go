package model

import (
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultPowerW is used when a device has no measured draw.
	DefaultPowerW = 0.3
	// DefaultDurationHours is the run time assumed when none is configured.
	DefaultDurationHours = 2.0
)

// Device is a controllable household load.
type Device struct {
	ID            string  `json:"id" yaml:"id"`
	Name          string  `json:"name" yaml:"name"`
	PowerW        float64 `json:"power_w" yaml:"power_w"`               // rated draw in watts
	DurationHours float64 `json:"duration_hours" yaml:"duration_hours"` // required run time per horizon
	// Sensor is the entity reporting the measured draw, if any.
	Sensor string `json:"sensor,omitempty" yaml:"sensor,omitempty"`
}

// Power returns the rated draw or the conservative default.
func (d Device) Power() float64 {
	if d.PowerW <= 0 || math.IsNaN(d.PowerW) || math.IsInf(d.PowerW, 0) {
		return DefaultPowerW
	}
	return d.PowerW
}

// Duration returns the required run time or the default.
func (d Device) Duration() float64 {
	if d.DurationHours <= 0 {
		return DefaultDurationHours
	}
	return d.DurationHours
}

// Domain returns the entity domain prefix (for example "switch").
func (d Device) Domain() string {
	if i := strings.IndexByte(d.ID, '.'); i > 0 {
		return d.ID[:i]
	}
	return ""
}

// DisplayName returns Name or falls back to the identifier.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Validate ensures the device has an identity.
func (d Device) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("device id is required")
	}
	if d.PowerW < 0 {
		return fmt.Errorf("device %s: negative power %.2f", d.ID, d.PowerW)
	}
	return nil
}

// Window is a half-open slot range [Start, End).
type Window struct {
	Start int `json:"start_slot"`
	End   int `json:"end_slot"`
}

// Len returns the number of slots in the window, or 0 when it is empty.
func (w Window) Len() int {
	if w.End <= w.Start {
		return 0
	}
	return w.End - w.Start
}

// Valid reports whether Start < End.
func (w Window) Valid() bool { return w.Start < w.End }

// Contains reports whether slot s falls in the window.
func (w Window) Contains(s int) bool { return s >= w.Start && s < w.End }
