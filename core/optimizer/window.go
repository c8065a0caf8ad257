package optimizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/smartwatt/core/logger"
	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/solver"
	"github.com/kilianp07/smartwatt/core/timeslot"
)

// tieTol is the weight difference under which two blocks are considered equal.
const tieTol = 1e-9

// Block is the contiguous run chosen for one device.
type Block struct {
	Start  int
	End    int
	Weight float64
	// Optimal is false when the solver stopped on a limit and returned its
	// best assignment so far.
	Optimal bool
	Nodes   int
}

// Len returns the number of slots in the block.
func (b Block) Len() int { return b.End - b.Start }

// Clocks converts the block to wall-clock start and end times on g.
func (b Block) Clocks(g timeslot.Grid) (string, string) {
	return g.Clock(b.Start), g.Clock(b.End)
}

// WindowOptimizer finds the cheapest contiguous block of a given length inside
// a user window.
type WindowOptimizer struct {
	opts solver.Options
	log  logger.Logger
}

// NewWindowOptimizer returns an optimizer using the given solver limits.
func NewWindowOptimizer(opts solver.Options, log logger.Logger) *WindowOptimizer {
	return &WindowOptimizer{opts: opts, log: logger.OrNop(log)}
}

// Optimize picks a block of durationSlots slots inside w minimising the summed
// weight. A window reaching past the horizon is cut at len(weights). The
// duration is clamped to the window length. Among equally cheap blocks the
// lowest start wins.
func (o *WindowOptimizer) Optimize(ctx context.Context, weights []float64, w model.Window, durationSlots int) (Block, error) {
	if !w.Valid() {
		return Block{}, fmt.Errorf("%w: start %d >= end %d", ErrInvalidWindow, w.Start, w.End)
	}
	if w.Start < 0 {
		w.Start = 0
	}
	if w.End > len(weights) {
		w.End = len(weights)
	}
	if !w.Valid() {
		return Block{}, fmt.Errorf("%w: window outside the %d slot horizon", ErrInvalidWindow, len(weights))
	}
	if durationSlots <= 0 {
		return Block{}, fmt.Errorf("%w: %d slots", ErrInvalidDuration, durationSlots)
	}
	d := min(durationSlots, w.Len())
	if d < durationSlots {
		o.log.Debugw("duration clamped to window", map[string]any{"requested": durationSlots, "slots": d})
	}

	starts := w.End - d - w.Start + 1
	p := solver.Problem{Objective: make([]float64, starts)}
	one := solver.Constraint{Name: "one_block", Coef: make([]float64, starts), Sense: solver.EQ, RHS: 1}
	for k := 0; k < starts; k++ {
		p.Objective[k] = BlockWeight(weights, w.Start+k, d)
		one.Coef[k] = 1
	}
	p.Constraints = []solver.Constraint{one}

	sol, err := solver.Solve(ctx, p, o.opts)
	switch {
	case errors.Is(err, solver.ErrInfeasible):
		return Block{}, fmt.Errorf("%w: %v", ErrInfeasible, err)
	case err != nil:
		return Block{}, err
	}
	ones := sol.Ones()
	if len(ones) != 1 {
		return Block{}, fmt.Errorf("%w: solver selected %d blocks", ErrInfeasible, len(ones))
	}

	k := ones[0]
	for j := 0; j < k; j++ {
		if p.Objective[j] <= p.Objective[k]+tieTol {
			k = j
			break
		}
	}
	start := w.Start + k
	return Block{
		Start:   start,
		End:     start + d,
		Weight:  p.Objective[k],
		Optimal: sol.Optimal,
		Nodes:   sol.Nodes,
	}, nil
}
