package plan

import (
	"errors"
	"fmt"

	"github.com/cwbudde/arotnep/internal/opt"
)

// ErrSolverInfeasible matches any *SolverInfeasibleError via errors.Is.
var ErrSolverInfeasible = &SolverInfeasibleError{}

// SolverInfeasibleError aborts a run: some master or subproblem had no
// feasible point. Report holds the partial results gathered so far.
type SolverInfeasibleError struct {
	Stage  string
	Outer  int
	Year   int
	Inner  int
	Status opt.Status
	Report *Report
}

func (e *SolverInfeasibleError) Error() string {
	if e.Stage == "" {
		return "solver reported infeasibility"
	}
	return fmt.Sprintf("%s infeasible (outer %d, year %d, inner %d): %s",
		e.Stage, e.Outer, e.Year, e.Inner, e.Status)
}

func (e *SolverInfeasibleError) Is(target error) bool {
	_, ok := target.(*SolverInfeasibleError)
	return ok
}

// ErrBoundsCrossed matches any *BoundsCrossedError via errors.Is.
var ErrBoundsCrossed = &BoundsCrossedError{}

// BoundsCrossedError aborts a run when a relaxed master returns an upper
// bound below a certified lower bound. The relaxation was not valid, so
// neither bound can be trusted.
type BoundsCrossedError struct {
	Level string
	Outer int
	Year  int
	Inner int
	Lower float64
	Upper float64
}

func (e *BoundsCrossedError) Error() string {
	if e.Level == "" {
		return "upper bound fell below lower bound"
	}
	return fmt.Sprintf("%s bounds crossed (outer %d, year %d, inner %d): lower %g, upper %g",
		e.Level, e.Outer, e.Year, e.Inner, e.Lower, e.Upper)
}

func (e *BoundsCrossedError) Is(target error) bool {
	_, ok := target.(*BoundsCrossedError)
	return ok
}

// ErrNonConvergence marks warnings raised when a loop hits its iteration cap
// before the gap closes. It is never returned from Run.
var ErrNonConvergence = errors.New("iteration cap reached before the gap closed")

// Warning is a non-fatal condition recorded in a Report.
type Warning struct {
	Level   string  `json:"level"`
	Outer   int     `json:"outer"`
	Year    int     `json:"year,omitempty"`
	Gap     float64 `json:"gap"`
	Message string  `json:"message"`
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s loop (outer %d, year %d): %s", w.Level, w.Outer, w.Year, w.Message)
}

func (w Warning) Unwrap() error { return ErrNonConvergence }
