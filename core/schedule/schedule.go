// Package schedule defines the persisted device schedule and the log of recent
// optimizations. The schedule is a mapping from device identity to a daily
// [start, end] time-of-day window; the external control loop compares the
// current time against it on every tick.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/timeslot"
)

// ErrNotFound is returned by Get for devices without an entry.
var ErrNotFound = errors.New("schedule: device not found")

// Entry is the time-of-day window of one device.
type Entry struct {
	Start string `json:"start"`
	End   string `json:"end"`
	// Duration overrides the device run time in hours for fleet planning.
	Duration *float64 `json:"duration,omitempty"`
}

// Validate checks that both ends are HH:MM clocks.
func (e Entry) Validate() error {
	if _, err := timeslot.ParseClock(e.Start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if _, err := timeslot.ParseClock(e.End); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if e.Duration != nil && *e.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// Active reports whether the clock time of now falls inside the entry. Windows
// whose end is before their start wrap past midnight.
func (e Entry) Active(now time.Time) bool {
	start, err := timeslot.ParseClock(e.Start)
	if err != nil {
		return false
	}
	end, err := timeslot.ParseClock(e.End)
	if err != nil {
		return false
	}
	m := now.Hour()*60 + now.Minute()
	if start <= end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// Schedule maps device identities to entries.
type Schedule map[string]Entry

// Devices returns the device identities in lexical order.
func (s Schedule) Devices() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Merge overwrites the start and end of every device in other, keeping a
// stored duration override when other carries none. Devices absent from
// other are untouched.
func (s Schedule) Merge(other Schedule) {
	for dev, e := range other {
		if e.Duration == nil {
			if prev, ok := s[dev]; ok {
				e.Duration = prev.Duration
			}
		}
		s[dev] = e
	}
}

// Clone returns a copy of s.
func (s Schedule) Clone() Schedule {
	out := make(Schedule, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Store persists the schedule. Put and PutAll are read-modify-write
// operations against the full mapping and must not lose concurrent updates of
// unrelated devices.
type Store interface {
	Get(ctx context.Context, device string) (Entry, error)
	Put(ctx context.Context, device string, e Entry) error
	PutAll(ctx context.Context, s Schedule) error
	All(ctx context.Context) (Schedule, error)
	Close() error
}

// RecentCap is the number of results kept by a RecentLog.
const RecentCap = 5

// RecentLog keeps the most recent optimization results, newest first.
type RecentLog interface {
	Record(ctx context.Context, r model.OptimizationResult) error
	List(ctx context.Context) ([]model.OptimizationResult, error)
	Close() error
}

// HistoryQuery filters the optimization history. Zero fields match all.
type HistoryQuery struct {
	Start  time.Time
	End    time.Time
	Device string
	Status model.Status
}

// Match reports whether r satisfies q.
func (q HistoryQuery) Match(r model.OptimizationResult) bool {
	if !q.Start.IsZero() && r.CreatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.CreatedAt.After(q.End) {
		return false
	}
	if q.Device != "" && r.Device != q.Device {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	return true
}

// History is an unbounded append-only record of every optimization.
type History interface {
	Append(ctx context.Context, r model.OptimizationResult) error
	Query(ctx context.Context, q HistoryQuery) ([]model.OptimizationResult, error)
	Close() error
}

// Prepend inserts r at the head of list and truncates to RecentCap entries.
func Prepend(list []model.OptimizationResult, r model.OptimizationResult) []model.OptimizationResult {
	out := make([]model.OptimizationResult, 0, min(len(list)+1, RecentCap))
	out = append(out, r)
	for _, x := range list {
		if len(out) == RecentCap {
			break
		}
		out = append(out, x)
	}
	return out
}
