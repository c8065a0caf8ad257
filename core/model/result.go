package model

import (
	"fmt"
	"time"
)

// Markers written in place of a time when no schedule could be produced.
const (
	MarkerInvalid    = "Invalid"
	MarkerInfeasible = "N/A"
)

// Kind identifies which optimizer produced a result.
type Kind int

const (
	KindDevice Kind = iota
	KindFleet
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindFleet:
		return "fleet"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "device":
		*k = KindDevice
	case "fleet":
		*k = KindFleet
	default:
		return fmt.Errorf("unknown kind %q", b)
	}
	return nil
}

// Status is the outcome of one optimization.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInvalid    Status = "invalid"
	StatusInfeasible Status = "infeasible"
	// StatusIncumbent marks a feasible plan returned when the solver hit its
	// time or node limit before proving optimality.
	StatusIncumbent Status = "incumbent"
)

// Accepted reports whether the status carries a usable schedule.
func (s Status) Accepted() bool {
	return s == StatusOptimal || s == StatusIncumbent
}

// OptimizationResult records one optimization request and its outcome.
type OptimizationResult struct {
	ID            string    `json:"id"`
	Device        string    `json:"device"`
	Kind          Kind      `json:"kind"`
	DurationHours float64   `json:"duration"`
	Start         string    `json:"start"`
	End           string    `json:"end"`
	Priority      string    `json:"priority,omitempty"`
	OptimalStart  string    `json:"optimal_start"`
	OptimalEnd    string    `json:"optimal_end"`
	Status        Status    `json:"status"`
	Cost          float64   `json:"cost"`
	CreatedAt     time.Time `json:"created_at"`
}

// MarkInvalid fills the optimal fields with the Invalid marker.
func (r *OptimizationResult) MarkInvalid() {
	r.Status = StatusInvalid
	r.OptimalStart = MarkerInvalid
	r.OptimalEnd = MarkerInvalid
}

// MarkInfeasible fills the optimal fields with the N/A marker.
func (r *OptimizationResult) MarkInfeasible() {
	r.Status = StatusInfeasible
	r.OptimalStart = MarkerInfeasible
	r.OptimalEnd = MarkerInfeasible
}
