package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

var errNodeInfeasible = errors.New("node infeasible")

// simplex points to the LP routine used for node relaxations. It can be
// overridden in tests to simulate solver failures.
var simplex = lp.Simplex

type reducedRow struct {
	coef  []float64 // over free variables
	sense Sense
	rhs   float64
}

// relax solves the linear relaxation of p with the given variables fixed. It
// returns the relaxation bound and a full-length point holding the fixed
// values and the relaxed free values.
//
//gocyclo:ignore
func relax(p Problem, fixed []int8, tol float64) (float64, []float64, error) {
	n := p.NumVars()
	x := make([]float64, n)
	free := make([]int, 0, n)
	var base float64
	for j, f := range fixed {
		switch f {
		case -1:
			free = append(free, j)
		case 1:
			x[j] = 1
			base += p.Objective[j]
		}
	}

	var rows []reducedRow
	for _, c := range p.Constraints {
		rhs := c.RHS
		for j, f := range fixed {
			if f == 1 {
				rhs -= c.Coef[j]
			}
		}
		coef := make([]float64, len(free))
		var minAct, maxAct float64
		nonzero := false
		for k, j := range free {
			a := c.Coef[j]
			coef[k] = a
			if a < 0 {
				minAct += a
			} else {
				maxAct += a
			}
			if a != 0 {
				nonzero = true
			}
		}
		tol := feasTol(rhs)
		switch c.Sense {
		case GE:
			if maxAct < rhs-tol {
				return 0, nil, errNodeInfeasible
			}
			if minAct >= rhs-tol {
				continue
			}
		case LE:
			if minAct > rhs+tol {
				return 0, nil, errNodeInfeasible
			}
			if maxAct <= rhs+tol {
				continue
			}
		case EQ:
			if rhs < minAct-tol || rhs > maxAct+tol {
				return 0, nil, errNodeInfeasible
			}
			if !nonzero {
				continue
			}
		}
		rows = append(rows, reducedRow{coef: coef, sense: c.Sense, rhs: rhs})
	}
	if len(free) == 0 {
		return base, x, nil
	}

	c, A, b, err := standardForm(p, free, rows)
	if err != nil {
		return 0, nil, err
	}
	opt, sol, err := simplex(c, A, b, tol, nil)
	if errors.Is(err, lp.ErrInfeasible) {
		return 0, nil, errNodeInfeasible
	}
	if err != nil {
		return 0, nil, err
	}
	for k, j := range free {
		x[j] = math.Min(1, math.Max(0, sol[k]))
	}
	return base + opt, x, nil
}

// standardForm lays the reduced node out as min c·z s.t. A z = b, z >= 0 with
// columns [x_free | upper-bound slacks | inequality slacks]. Each free
// variable gets a row x + u = 1. Rows with a negative rhs are negated.
func standardForm(p Problem, free []int, rows []reducedRow) ([]float64, *mat.Dense, []float64, error) {
	nF := len(free)
	nIneq, nEq := 0, 0
	for _, r := range rows {
		if r.sense == EQ {
			nEq++
		} else {
			nIneq++
		}
	}
	if nEq > nF {
		return nil, nil, nil, fmt.Errorf("%d equality rows over %d free variables", nEq, nF)
	}
	nRows := nF + nIneq + nEq
	nCols := 2*nF + nIneq

	c := make([]float64, nCols)
	for k, j := range free {
		c[k] = p.Objective[j]
	}
	A := mat.NewDense(nRows, nCols, nil)
	b := make([]float64, nRows)
	for k := 0; k < nF; k++ {
		A.Set(k, k, 1)
		A.Set(k, nF+k, 1)
		b[k] = 1
	}

	r, slack := nF, 2*nF
	for _, row := range rows {
		sign := 1.0
		if row.rhs < 0 {
			sign = -1
		}
		for k, a := range row.coef {
			if a != 0 {
				A.Set(r, k, sign*a)
			}
		}
		switch row.sense {
		case LE:
			A.Set(r, slack, sign)
			slack++
		case GE:
			A.Set(r, slack, -sign)
			slack++
		}
		b[r] = sign * row.rhs
		r++
	}
	return c, A, b, nil
}
