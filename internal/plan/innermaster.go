package plan

import (
	"context"
	"fmt"
	"math"

	"github.com/cwbudde/arotnep/internal/grid"
	"github.com/cwbudde/arotnep/internal/lp"
)

// innerMaster is the exact relaxed master of the inner loop:
//
//	max ξ  s.t.  ξ ≤ b_k(z)'π_k + o(z)   for every cut k in the window
//	             π_k dual feasible for the dispatch with policy k at z
//	             Σ_{q in class} z_q ≤ Γ_class,  z binary
//
// Products z_q·π_ki are replaced by exact McCormick envelopes, which needs
// finite dual bounds; each cut gets a box sized from its own dispatch model.
func (p *Planner) innerMaster(ctx context.Context, at site, d grid.Decision, cuts []InnerCut) (float64, grid.Realization, error) {
	y := at.year
	m := lp.New(fmt.Sprintf("imaster:y%d:j%d:k%d:w%d", y, at.outer, at.inner, len(cuts)), lp.Maximize)
	xi := m.AddColumn("xi", math.Inf(-1), math.Inf(1), lp.Constant(1))

	zOffset := len(m.Cols)
	for _, qt := range p.unc.Quantities() {
		m.AddBinary(fmt.Sprintf("z[%s,%s]", qt.Class, qt.ID), lp.Affine{})
	}
	addBudgetRows(m, p.unc, zOffset)
	zCol := func(q int) int { return zOffset + q }

	for k, cut := range cuts {
		primal, _, err := p.builder.DispatchModel(
			fmt.Sprintf("dispatch:y%d:cut%d", y, k),
			Context{Year: y, Decision: &d, Policy: cut.Policy},
		)
		if err != nil {
			return 0, grid.Realization{}, fmt.Errorf("failed to build cut %d: %w", k, err)
		}
		box := dualBox(primal, p.cfg.DualBound)
		if math.IsInf(box, 1) || math.IsNaN(box) {
			return 0, grid.Realization{}, fmt.Errorf("inner master needs a finite dual bound for cut %d", k)
		}
		dual, err := lp.Dual(primal, box)
		if err != nil {
			return 0, grid.Realization{}, fmt.Errorf("failed to dualize cut %d: %w", k, err)
		}

		piOffset := len(m.Cols)
		for i, c := range dual.Cols {
			m.AddColumn(fmt.Sprintf("c%d:pi%d", k, i), c.Lower, c.Upper, lp.Affine{})
		}

		// ξ - Σ b0_i π_i - Σ B_iq w_iq - Σ O_q z_q ≤ O_0
		value := []lp.Entry{{Col: xi, Coef: 1}}
		for q := 0; q < p.unc.Len(); q++ {
			if o := dual.Offset.Coef(q); o != 0 {
				value = append(value, lp.Entry{Col: zCol(q), Coef: -o})
			}
		}
		for i, c := range dual.Cols {
			pi := piOffset + i
			value = append(value, lp.Entry{Col: pi, Coef: -c.Cost.Const})
			for _, t := range c.Cost.Terms {
				w := m.AddColumn(fmt.Sprintf("c%d:w%d,%d", k, i, t.Index),
					math.Min(0, c.Lower), math.Max(0, c.Upper), lp.Affine{})
				addMcCormick(m, fmt.Sprintf("c%d:mc%d,%d", k, i, t.Index), w, pi, zCol(t.Index), c.Lower, c.Upper)
				value = append(value, lp.Entry{Col: w, Coef: -t.Coef})
			}
		}
		m.AddRow(fmt.Sprintf("cut%d", k), lp.LE, lp.Constant(dual.Offset.Const), value...)

		// Dual feasibility: Σ a π (sense) c0 + Σ C z
		for _, r := range dual.Rows {
			entries := make([]lp.Entry, 0, len(r.Entries)+len(r.RHS.Terms))
			for _, e := range r.Entries {
				entries = append(entries, lp.Entry{Col: piOffset + e.Col, Coef: e.Coef})
			}
			for _, t := range r.RHS.Terms {
				entries = append(entries, lp.Entry{Col: zCol(t.Index), Coef: -t.Coef})
			}
			m.AddRow(fmt.Sprintf("c%d:%s", k, r.Name), r.Sense, lp.Constant(r.RHS.Const), entries...)
		}
	}

	at.stage = "inner-master"
	res, err := p.solve(ctx, m, at)
	if err != nil {
		return 0, grid.Realization{}, err
	}
	point := p.unc.Forecast(y)
	for q := range point.At {
		point.At[q] = res.Primal[zCol(q)] > 0.5
	}
	return res.Objective, point, nil
}

// dualMargin widens the dual box beyond the largest priced quantity.
const dualMargin = 2

// dualBox bounds the duals of a dispatch model from its data. A balance
// dual never exceeds the dearest way to serve or shed one unit, which is the
// largest cost a column can take over the uncertainty box; rows that mix
// coefficients of different size (susceptances, durations, efficiencies)
// can scale a dual up by their coefficient ratio. The result is never below
// floor.
func dualBox(primal *lp.Model, floor float64) float64 {
	cost := 0.0
	for _, c := range primal.Cols {
		v := math.Abs(c.Cost.Const)
		for _, t := range c.Cost.Terms {
			v += math.Abs(t.Coef)
		}
		cost = math.Max(cost, v)
	}
	ratio := 1.0
	for _, r := range primal.Rows {
		lo, hi := math.Inf(1), 0.0
		for _, e := range r.Entries {
			if a := math.Abs(e.Coef); a > 0 {
				lo, hi = math.Min(lo, a), math.Max(hi, a)
			}
		}
		if hi > 0 {
			ratio = math.Max(ratio, hi/lo)
		}
	}
	return math.Max(floor, dualMargin*cost*ratio)
}

// addMcCormick linearizes w = z·π for binary z and π in [lo, hi].
func addMcCormick(m *lp.Model, name string, w, pi, z int, lo, hi float64) {
	m.AddRow(name+":a", lp.LE, lp.Affine{}, lp.Entry{Col: w, Coef: 1}, lp.Entry{Col: z, Coef: -hi})
	m.AddRow(name+":b", lp.GE, lp.Affine{}, lp.Entry{Col: w, Coef: 1}, lp.Entry{Col: z, Coef: -lo})
	m.AddRow(name+":c", lp.LE, lp.Constant(-lo),
		lp.Entry{Col: w, Coef: 1}, lp.Entry{Col: pi, Coef: -1}, lp.Entry{Col: z, Coef: -lo})
	m.AddRow(name+":d", lp.GE, lp.Constant(-hi),
		lp.Entry{Col: w, Coef: 1}, lp.Entry{Col: pi, Coef: -1}, lp.Entry{Col: z, Coef: -hi})
}
