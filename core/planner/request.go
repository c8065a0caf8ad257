package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/optimizer"
	"github.com/kilianp07/smartwatt/core/schedule"
	"github.com/kilianp07/smartwatt/core/timeslot"
)

// ErrBadRequest marks malformed input that never reaches an optimizer.
var ErrBadRequest = errors.New("planner: bad request")

// Schedule change origins.
const (
	OriginOptimizer = "optimizer"
	OriginPlan      = "plan"
	OriginManual    = "manual"
)

// FleetDeviceID is the device name under which fleet runs are summarised.
const FleetDeviceID = "fleet"

// DeviceRequest asks for the cheapest run of one device inside a window.
type DeviceRequest struct {
	Device string `json:"device"`
	// DurationHours is the requested run time; zero selects the default.
	DurationHours float64 `json:"duration"`
	Start         string  `json:"start"`
	End           string  `json:"end"`
	Priority      string  `json:"priority,omitempty"`
}

// Validate checks the identity, the clocks and the duration sign.
func (r DeviceRequest) Validate() error {
	if strings.TrimSpace(r.Device) == "" {
		return fmt.Errorf("%w: device is required", ErrBadRequest)
	}
	if _, err := timeslot.ParseClock(r.Start); err != nil {
		return fmt.Errorf("%w: start: %v", ErrBadRequest, err)
	}
	if _, err := timeslot.ParseClock(r.End); err != nil {
		return fmt.Errorf("%w: end: %v", ErrBadRequest, err)
	}
	if r.DurationHours < 0 {
		return fmt.Errorf("%w: negative duration", ErrBadRequest)
	}
	return nil
}

func (r DeviceRequest) hours() float64 {
	if r.DurationHours <= 0 {
		return model.DefaultDurationHours
	}
	return r.DurationHours
}

// FleetResult is the outcome of one fleet run.
type FleetResult struct {
	ID     string       `json:"id"`
	Status model.Status `json:"status"`
	// Schedule holds the recommended window of every device with active
	// slots.
	Schedule schedule.Schedule `json:"schedule"`
	Plan     optimizer.Plan    `json:"plan"`
	Applied  bool              `json:"applied"`
	// Reason explains an invalid or infeasible status.
	Reason string `json:"reason,omitempty"`
}
