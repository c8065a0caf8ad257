// Package optimizer places controllable loads on a slot grid. The window
// optimizer picks the cheapest contiguous block for one device; the fleet
// optimizer assigns active slots to several devices at once.
package optimizer

import "errors"

var (
	// ErrInvalidWindow is returned when start_slot >= end_slot. No solve is
	// attempted.
	ErrInvalidWindow = errors.New("optimizer: invalid window")
	// ErrInfeasible is returned when no assignment satisfies the constraints.
	ErrInfeasible = errors.New("optimizer: infeasible")
	// ErrInvalidDuration is returned for negative durations or durations
	// longer than the horizon.
	ErrInvalidDuration = errors.New("optimizer: invalid duration")
)
