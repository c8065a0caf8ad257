// Package solver solves small pure binary linear programs by best-bound
// branch and bound, optionally seeded with a caller supplied incumbent. Each
// node relaxes the integrality requirement and solves
// the resulting linear program with gonum's simplex implementation. Node
// relaxations substitute fixed variables, drop rows that can no longer bind
// and reject nodes whose rows cannot be satisfied before calling the simplex.
//
// Solve is synchronous and performs no I/O. It is bounded by a wall-clock time
// limit and a node limit; when a limit is hit after a feasible assignment has
// been found the best assignment is returned with Optimal set to false.
package solver
