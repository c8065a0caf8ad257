package solver

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Sense is the direction of a linear constraint.
type Sense int

const (
	LE Sense = iota // a·x <= rhs
	GE              // a·x >= rhs
	EQ              // a·x == rhs
)

// String returns the operator of the sense.
func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	case EQ:
		return "=="
	default:
		return "?"
	}
}

// Constraint is one dense linear row over all problem variables.
type Constraint struct {
	Name  string
	Coef  []float64
	Sense Sense
	RHS   float64
}

// Problem is a pure binary program: minimize Objective·x subject to the
// constraints with every x in {0,1}. Equality rows must be linearly
// independent.
type Problem struct {
	Objective   []float64
	Constraints []Constraint
	// Start is an optional assignment seeded as the first incumbent. It is
	// ignored when it violates a constraint.
	Start []bool
}

// NumVars returns the number of binary variables.
func (p Problem) NumVars() int { return len(p.Objective) }

// Validate checks the dimensions of the problem.
func (p Problem) Validate() error {
	n := p.NumVars()
	if n == 0 {
		return errors.New("solver: problem has no variables")
	}
	for i, c := range p.Constraints {
		if len(c.Coef) != n {
			return fmt.Errorf("solver: constraint %d (%s) has %d coefficients, want %d", i, c.Name, len(c.Coef), n)
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("solver: constraint %d (%s) has non-finite rhs", i, c.Name)
		}
	}
	for j, v := range p.Objective {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("solver: objective coefficient %d is not finite", j)
		}
	}
	if p.Start != nil && len(p.Start) != n {
		return fmt.Errorf("solver: start has %d values, want %d", len(p.Start), n)
	}
	return nil
}

// Cost evaluates the objective for an assignment.
func (p Problem) Cost(x []bool) float64 {
	var sum float64
	for j, on := range x {
		if on {
			sum += p.Objective[j]
		}
	}
	return sum
}

// Feasible reports whether the assignment satisfies every constraint.
func (p Problem) Feasible(x []bool) bool {
	for _, c := range p.Constraints {
		var act float64
		for j, on := range x {
			if on {
				act += c.Coef[j]
			}
		}
		tol := feasTol(c.RHS)
		switch c.Sense {
		case LE:
			if act > c.RHS+tol {
				return false
			}
		case GE:
			if act < c.RHS-tol {
				return false
			}
		case EQ:
			if math.Abs(act-c.RHS) > tol {
				return false
			}
		}
	}
	return true
}

// Options bounds the search.
type Options struct {
	// TimeLimit caps the wall-clock time of one Solve call.
	TimeLimit time.Duration `json:"time_limit" yaml:"time_limit"`
	// NodeLimit caps the number of relaxations solved.
	NodeLimit int `json:"node_limit" yaml:"node_limit"`
	// Tol is the simplex optimality tolerance.
	Tol float64 `json:"tol" yaml:"tol"`
}

// DefaultOptions returns limits suitable for the interactive request path.
func DefaultOptions() Options {
	return Options{TimeLimit: 5 * time.Second, NodeLimit: 20000, Tol: 1e-9}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TimeLimit <= 0 {
		o.TimeLimit = d.TimeLimit
	}
	if o.NodeLimit <= 0 {
		o.NodeLimit = d.NodeLimit
	}
	if o.Tol <= 0 {
		o.Tol = d.Tol
	}
	return o
}

// Solution is the best assignment found.
type Solution struct {
	X         []bool
	Objective float64
	// Optimal is false when a limit stopped the search early.
	Optimal bool
	Nodes   int
	Elapsed time.Duration
}

// Ones returns the indices of the variables set to 1.
func (s Solution) Ones() []int {
	var idx []int
	for j, on := range s.X {
		if on {
			idx = append(idx, j)
		}
	}
	return idx
}

var (
	// ErrInfeasible indicates no binary assignment satisfies the constraints.
	ErrInfeasible = errors.New("solver: infeasible")
	// ErrLimit indicates a limit was reached before any feasible assignment was found.
	ErrLimit = errors.New("solver: limit reached without a feasible assignment")
)

type node struct {
	fixed []int8 // -1 free, 0 or 1 fixed
	// bound is the relaxation bound of the parent, a lower bound for the node.
	bound float64
	depth int
}

func (n node) with(j int, v int8, bound float64) node {
	f := make([]int8, len(n.fixed))
	copy(f, n.fixed)
	f[j] = v
	return node{fixed: f, bound: bound, depth: n.depth + 1}
}

// frontier orders open nodes by bound, deeper nodes first on ties so the
// search still dives towards integral points.
type frontier []node

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(a, b int) bool {
	if f[a].bound != f[b].bound {
		return f[a].bound < f[b].bound
	}
	return f[a].depth > f[b].depth
}
func (f frontier) Swap(a, b int) { f[a], f[b] = f[b], f[a] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(node)) }
func (f *frontier) Pop() any {
	old := *f
	n := old[len(old)-1]
	*f = old[:len(old)-1]
	return n
}

// Solve runs best-bound branch and bound on p. A feasible p.Start becomes
// the first incumbent.
//
//gocyclo:ignore
func Solve(ctx context.Context, p Problem, opts Options) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{}, err
	}
	opts = opts.withDefaults()
	started := time.Now()

	root := node{fixed: make([]int8, p.NumVars()), bound: math.Inf(-1)}
	for j := range root.fixed {
		root.fixed[j] = -1
	}
	open := &frontier{root}
	best := math.Inf(1)
	var bestX []bool
	if p.Start != nil && p.Feasible(p.Start) {
		best, bestX = p.Cost(p.Start), append([]bool(nil), p.Start...)
	}
	nodes := 0
	limited := false
	var ctxErr error

	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			limited, ctxErr = true, err
			break
		}
		nd := heap.Pop(open).(node)
		if nd.bound >= best-pruneTol(best) {
			continue
		}
		if nodes >= opts.NodeLimit || time.Since(started) > opts.TimeLimit {
			limited = true
			break
		}
		nodes++

		bound, x, err := relax(p, nd.fixed, opts.Tol)
		if errors.Is(err, errNodeInfeasible) {
			continue
		}
		if err != nil {
			return Solution{}, fmt.Errorf("solver: relaxation: %w", err)
		}
		if bound >= best-pruneTol(best) {
			continue
		}

		j := branchVar(x, nd.fixed)
		if j < 0 {
			cand := round(x)
			if p.Feasible(cand) {
				if obj := p.Cost(cand); obj < best-pruneTol(best) {
					best, bestX = obj, cand
				}
				continue
			}
			// The relaxation rounded onto an infeasible point; keep
			// branching so the tree still terminates at full depth.
			if j = firstFree(nd.fixed); j < 0 {
				continue
			}
		}
		heap.Push(open, nd.with(j, 0, bound))
		heap.Push(open, nd.with(j, 1, bound))
	}

	sol := Solution{Nodes: nodes, Elapsed: time.Since(started)}
	if bestX == nil {
		if limited {
			if ctxErr != nil {
				return sol, fmt.Errorf("%w: %v", ErrLimit, ctxErr)
			}
			return sol, ErrLimit
		}
		return sol, ErrInfeasible
	}
	sol.X = bestX
	sol.Objective = best
	sol.Optimal = !limited
	return sol, nil
}

// branchVar returns the free variable whose relaxed value is farthest from
// integral, lowest index first, or -1 when every free value is integral.
func branchVar(x []float64, fixed []int8) int {
	best, bestFrac := -1, intTol
	for j, f := range fixed {
		if f >= 0 {
			continue
		}
		frac := math.Abs(x[j] - math.Round(x[j]))
		if frac > bestFrac+1e-12 {
			best, bestFrac = j, frac
		}
	}
	return best
}

func firstFree(fixed []int8) int {
	for j, f := range fixed {
		if f < 0 {
			return j
		}
	}
	return -1
}

func round(x []float64) []bool {
	out := make([]bool, len(x))
	for j, v := range x {
		out[j] = v >= 0.5
	}
	return out
}

const intTol = 1e-6

func feasTol(rhs float64) float64 {
	return 1e-6 * math.Max(1, math.Abs(rhs))
}

func pruneTol(best float64) float64 {
	if math.IsInf(best, 0) {
		return 0
	}
	return 1e-9 * math.Max(1, math.Abs(best))
}
