// Package timeslot maps wall-clock times of day onto a fixed grid of equal
// width slots and back. A Grid is fixed for one planning run.
package timeslot

import (
	"errors"
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

var (
	// ErrBadClock is returned when a time-of-day string is not HH:MM.
	ErrBadClock = errors.New("clock must be HH:MM")
	// ErrBadGrid is returned by Validate for unusable grids.
	ErrBadGrid = errors.New("invalid slot grid")
)

// Grid describes the slot layout of a planning horizon.
type Grid struct {
	// Origin is the time of day of slot 0, in minutes after midnight.
	Origin int `json:"origin_minutes" yaml:"origin_minutes"`
	// Width is the slot width in minutes.
	Width int `json:"width_minutes" yaml:"width_minutes"`
	// Slots is the horizon length T.
	Slots int `json:"slots" yaml:"slots"`
}

// HalfHourly returns the 30 minute grid starting at 08:00 used for ad-hoc
// single device requests.
func HalfHourly(slots int) Grid {
	return Grid{Origin: 8 * 60, Width: 30, Slots: slots}
}

// Hourly returns the 24 slot day grid starting at midnight used by the fleet
// optimizer.
func Hourly() Grid {
	return Grid{Origin: 0, Width: 60, Slots: 24}
}

// Validate checks the grid parameters.
func (g Grid) Validate() error {
	if g.Width <= 0 {
		return fmt.Errorf("%w: width %d", ErrBadGrid, g.Width)
	}
	if g.Slots <= 0 {
		return fmt.Errorf("%w: %d slots", ErrBadGrid, g.Slots)
	}
	if g.Origin < 0 || g.Origin >= minutesPerDay {
		return fmt.Errorf("%w: origin %d", ErrBadGrid, g.Origin)
	}
	return nil
}

// WithSlots returns a copy of g with a different horizon length.
func (g Grid) WithSlots(n int) Grid {
	g.Slots = n
	return g
}

// SlotWidth returns the slot width as a duration.
func (g Grid) SlotWidth() time.Duration {
	return time.Duration(g.Width) * time.Minute
}

// DurationSlots converts a run time in hours to a number of slots, rounding
// up so a device never runs shorter than requested.
func (g Grid) DurationSlots(hours float64) int {
	if hours <= 0 || g.Width <= 0 {
		return 0
	}
	minutes := hours * 60
	n := int(minutes) / g.Width
	if float64(n*g.Width) < minutes {
		n++
	}
	return n
}

// SlotOfMinutes maps minutes after midnight to a slot, clamped to [0, T-1].
func (g Grid) SlotOfMinutes(minutes int) int {
	offset := minutes - g.Origin
	s := 0
	if offset > 0 {
		s = offset / g.Width
	}
	return g.clamp(s)
}

// SlotOf parses an HH:MM string and maps it to a slot.
func (g Grid) SlotOf(clock string) (int, error) {
	m, err := ParseClock(clock)
	if err != nil {
		return 0, err
	}
	return g.SlotOfMinutes(m), nil
}

// SlotAt maps the time of day of t to a slot.
func (g Grid) SlotAt(t time.Time) int {
	return g.SlotOfMinutes(t.Hour()*60 + t.Minute())
}

// Minutes returns the start of slot s in minutes after midnight, wrapped to
// one day.
func (g Grid) Minutes(s int) int {
	return (g.Origin + s*g.Width) % minutesPerDay
}

// Clock returns the HH:MM time of day at which slot s starts. s may equal T to
// express the end of the last slot.
func (g Grid) Clock(s int) string {
	return FormatClock(g.Minutes(s))
}

func (g Grid) clamp(s int) int {
	if s < 0 {
		return 0
	}
	if s > g.Slots-1 {
		if g.Slots <= 0 {
			return 0
		}
		return g.Slots - 1
	}
	return s
}

// ParseClock parses HH:MM into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes after midnight as HH:MM.
func FormatClock(minutes int) string {
	minutes %= minutesPerDay
	if minutes < 0 {
		minutes += minutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
