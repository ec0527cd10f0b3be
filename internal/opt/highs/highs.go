//go:build !nohighs

// Package highs adapts the HiGHS solver (through github.com/lanl/highs) to
// the opt.Oracle interface. It requires cgo and a HiGHS installation; build
// with the nohighs tag to leave it out.
package highs

import (
	"context"
	"fmt"
	"math"

	"github.com/lanl/highs"

	"github.com/cwbudde/arotnep/internal/lp"
	"github.com/cwbudde/arotnep/internal/opt"
)

// Oracle solves models with HiGHS.
type Oracle struct {
	// Threads limits HiGHS worker threads; 0 keeps the solver default.
	Threads int
}

// New returns a HiGHS oracle.
func New() *Oracle { return &Oracle{} }

// Solve implements opt.Oracle.
func (o *Oracle) Solve(ctx context.Context, m *lp.Model, opts opt.Options) (*opt.Result, error) {
	if m.Parametric() {
		return nil, fmt.Errorf("highs %s: %w", m.Name, opt.ErrParametric)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := toHighs(m).ToRawModel()
	if err != nil {
		return nil, fmt.Errorf("failed to build highs model %s: %w", m.Name, err)
	}
	if err := raw.SetBoolOption("output_flag", false); err != nil {
		return nil, fmt.Errorf("failed to set output_flag: %w", err)
	}
	if opts.RelativeGap > 0 {
		if err := raw.SetFloat64Option("mip_rel_gap", opts.RelativeGap); err != nil {
			return nil, fmt.Errorf("failed to set mip_rel_gap: %w", err)
		}
	}
	if opts.TimeLimit > 0 {
		if err := raw.SetFloat64Option("time_limit", opts.TimeLimit.Seconds()); err != nil {
			return nil, fmt.Errorf("failed to set time_limit: %w", err)
		}
	}
	if o.Threads > 0 {
		if err := raw.SetIntOption("threads", o.Threads); err != nil {
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}

	solution, err := raw.Solve()
	if err != nil {
		return nil, fmt.Errorf("highs %s: %w", m.Name, err)
	}

	res := &opt.Result{Status: status(solution.Status)}
	if res.Status == opt.StatusOptimal || len(solution.ColumnPrimal) == len(m.Cols) {
		res.Objective = solution.Objective
		res.Primal = solution.ColumnPrimal
	}
	if m.Integers() == 0 && len(solution.RowDual) == len(m.Rows) {
		res.Dual = solution.RowDual
	}
	if res.Status != opt.StatusOptimal && res.Status != opt.StatusTimeLimit && res.Status != opt.StatusIterationLimit {
		res.Primal = nil
	}
	return res, nil
}

func toHighs(m *lp.Model) *highs.Model {
	model := &highs.Model{
		Maximize: m.Sense == lp.Maximize,
		Offset:   m.Offset.Const,
		ColCosts: make([]float64, len(m.Cols)),
		ColLower: make([]float64, len(m.Cols)),
		ColUpper: make([]float64, len(m.Cols)),
		RowLower: make([]float64, len(m.Rows)),
		RowUpper: make([]float64, len(m.Rows)),
	}
	integers := m.Integers() > 0
	if integers {
		model.VarTypes = make([]highs.VariableType, len(m.Cols))
	}
	for j, c := range m.Cols {
		model.ColCosts[j] = c.Cost.Const
		model.ColLower[j] = c.Lower
		model.ColUpper[j] = c.Upper
		if c.Integer {
			model.VarTypes[j] = highs.IntegerType
		}
	}
	for i, r := range m.Rows {
		lower, upper := math.Inf(-1), math.Inf(1)
		switch r.Sense {
		case lp.LE:
			upper = r.RHS.Const
		case lp.GE:
			lower = r.RHS.Const
		default:
			lower, upper = r.RHS.Const, r.RHS.Const
		}
		model.RowLower[i] = lower
		model.RowUpper[i] = upper
		for _, e := range r.Entries {
			model.ConstMatrix = append(model.ConstMatrix, highs.Nonzero{Row: i, Col: e.Col, Val: e.Coef})
		}
	}
	return model
}

func status(s highs.ModelStatus) opt.Status {
	switch s {
	case highs.Optimal:
		return opt.StatusOptimal
	case highs.Infeasible, highs.UnboundedOrInfeasible:
		// Planning models are bounded below, so the ambiguous status means
		// no feasible point exists.
		return opt.StatusInfeasible
	case highs.Unbounded:
		return opt.StatusUnbounded
	case highs.TimeLimit:
		return opt.StatusTimeLimit
	case highs.IterationLimit:
		return opt.StatusIterationLimit
	}
	return opt.StatusUnknown
}
