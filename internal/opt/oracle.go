// Package opt provides the solver oracle used by the planner and the
// metaheuristic optimizer used to probe the uncertainty set.
package opt

import (
	"context"
	"errors"
	"time"

	"github.com/cwbudde/arotnep/internal/lp"
)

// ErrParametric is returned when a model still depends on uncertainty
// indicators. Call lp.Model.Instantiate first.
var ErrParametric = errors.New("model has uncertain coefficients")

// Status is the termination status reported by an oracle.
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	StatusTimeLimit
	StatusIterationLimit
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimeLimit:
		return "time_limit"
	case StatusIterationLimit:
		return "iteration_limit"
	}
	return "unknown"
}

// Options controls a single solve.
type Options struct {
	// RelativeGap is the MIP optimality gap at which the solver may stop.
	RelativeGap float64

	// TimeLimit caps the solve; zero means none.
	TimeLimit time.Duration
}

// Result is the outcome of a solve.
type Result struct {
	Status    Status
	Objective float64

	// Primal holds one value per model column when a solution is available.
	Primal []float64

	// Dual holds one value per model row for LPs when the backend reports
	// duals; it is nil otherwise.
	Dual []float64
}

// HasSolution reports whether a primal solution came back, which may be
// the case on a limit status too.
func (r *Result) HasSolution() bool { return r != nil && r.Primal != nil }

// Oracle solves a numeric LP or MILP. Sense is carried by the model.
type Oracle interface {
	Solve(ctx context.Context, m *lp.Model, opts Options) (*Result, error)
}
