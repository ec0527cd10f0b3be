package plan

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/arotnep/internal/grid"
	"github.com/cwbudde/arotnep/internal/lp"
	"github.com/cwbudde/arotnep/internal/opt"
)

// alternation is one pass of the dual alternation: the value of the dual LP
// at the current point (XiP) and the value of the linearized worst case over
// the relaxed uncertainty set at the dual found (XiQ).
type alternation struct {
	XiP  float64
	XiQ  float64
	Dual []float64
	Next grid.Realization
}

// Converged reports whether both values agree within tol.
func (a *alternation) Converged(tol float64) bool {
	return spread(a.XiP, a.XiQ) < tol
}

// alternate runs one dual alternation pair around an evaluation. LP1 is
// the dual of the dispatch LP with the evaluation's binaries fixed; LP2
// keeps LP1's duals and the evaluation's dispatch fixed and moves the
// realization within the budget polytope.
func (p *Planner) alternate(ctx context.Context, at site, d grid.Decision, ev *Evaluation) (*alternation, error) {
	y := ev.Year
	primal, _, err := p.builder.DispatchModel(
		fmt.Sprintf("dispatch:y%d:j%d:k%d", y, at.outer, at.inner),
		Context{Year: y, Decision: &d, Policy: ev.Policy},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build alternation primal: %w", err)
	}
	// The dispatch at the evaluation point is feasible and bounded, so its
	// dual attains its optimum without a box.
	dual, err := lp.Dual(primal, math.Inf(1))
	if err != nil {
		return nil, fmt.Errorf("failed to dualize alternation primal: %w", err)
	}

	z0 := ev.Point.Indicators()
	at.stage = "alternation-dual"
	res, err := p.solve(ctx, dual.Instantiate(z0), at)
	if err != nil {
		return nil, err
	}
	pi := res.Primal
	step := &alternation{XiP: res.Objective, Dual: pi}

	zlp, err := p.linearizedWorstCase(primal, dual, pi, ev)
	if err != nil {
		return nil, err
	}
	at.stage = "alternation-point"
	res, err = p.solve(ctx, zlp, at)
	if err != nil {
		return nil, err
	}
	step.Next = roundToBudget(p.unc, y, res.Primal, 0.5)
	step.XiQ = zlp.Objective(step.Next.Indicators(), nil)

	slog.Debug("Dual alternation",
		"year", y,
		"outer", at.outer,
		"inner", at.inner,
		"xiP", step.XiP,
		"xiQ", step.XiQ,
		"next", step.Next.Key(),
	)
	return step, nil
}

// warmStart repeats alternation pairs from ev until xiP and xiQ agree, the
// point stops moving or ADAMaxIter pairs ran. Pairs after the first price
// the evaluation's policy at the moved point. The returned duals are those
// of the first pair, taken at the evaluation point.
func (p *Planner) warmStart(ctx context.Context, at site, d grid.Decision, ev *Evaluation) (*alternation, []float64, error) {
	cur := ev
	var first []float64
	for t := 1; ; t++ {
		step, err := p.alternate(ctx, at, d, cur)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = step.Dual
		}
		if step.Converged(p.cfg.Tolerance) || step.Next.Key() == cur.Point.Key() {
			return step, first, nil
		}
		if t >= p.cfg.ADAMaxIter {
			p.warn(Warning{
				Level:   "alternation",
				Outer:   at.outer,
				Year:    at.year,
				Gap:     spread(step.XiP, step.XiQ),
				Message: "dual alternation hit its iteration cap",
			})
			return step, first, nil
		}
		next, ok, err := p.dispatchAt(ctx, at, d, ev.Policy, step.Next)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			slog.Debug("Policy cannot serve the alternation point",
				"year", at.year,
				"outer", at.outer,
				"point", step.Next.Key(),
			)
			return step, first, nil
		}
		cur = next
	}
}

// dispatchAt prices a fixed policy at point. ok is false when the policy
// cannot serve that realization.
func (p *Planner) dispatchAt(ctx context.Context, at site, d grid.Decision, policy Policy, point grid.Realization) (*Evaluation, bool, error) {
	name := fmt.Sprintf("dispatch:y%d:j%d:k%d:%s", point.Year, at.outer, at.inner, point.Key())
	m, _, err := p.builder.DispatchModel(name, Context{Year: point.Year, Decision: &d, Point: &point, Policy: policy})
	if err != nil {
		return nil, false, fmt.Errorf("failed to build %s: %w", name, err)
	}
	res, err := p.oracle.Solve(ctx, m, opt.Options{RelativeGap: p.cfg.RelativeGap, TimeLimit: p.cfg.TimeLimit})
	if err != nil {
		return nil, false, fmt.Errorf("failed to solve %s: %w", name, err)
	}
	if res.Status != opt.StatusOptimal {
		return nil, false, nil
	}
	ev := &Evaluation{
		Year:     point.Year,
		Point:    point,
		Value:    res.Objective,
		Policy:   policy,
		Dispatch: make(map[string]float64, len(m.Cols)),
	}
	for j, c := range m.Cols {
		ev.Dispatch[c.Name] = res.Primal[j]
	}
	return ev, true, nil
}

// linearizedWorstCase builds LP2: maximize over z in [0,1] with the class
// budgets the value b(z)'π + o(z) + Σ_j (c_j(z) - c_j(z0))·x̄_j, which equals
// the dual value at z0 and is linear in z for fixed π and x̄.
func (p *Planner) linearizedWorstCase(primal, dual *lp.Model, pi []float64, ev *Evaluation) (*lp.Model, error) {
	nq := p.unc.Len()
	z0 := ev.Point.Indicators()

	rhs := make([]float64, len(dual.Cols))
	for i, c := range dual.Cols {
		rhs[i] = c.Cost.Const
	}
	constant := floats.Dot(rhs, pi) + dual.Offset.Const
	coef := make([]float64, nq)
	for q := range coef {
		coef[q] = dual.Offset.Coef(q)
	}
	for i, c := range dual.Cols {
		for _, t := range c.Cost.Terms {
			coef[t.Index] += t.Coef * pi[i]
		}
	}
	for _, c := range primal.Cols {
		if c.Cost.IsConstant() {
			continue
		}
		x, ok := ev.Dispatch[c.Name]
		if !ok {
			return nil, fmt.Errorf("dispatch value of %s missing from evaluation", c.Name)
		}
		constant += (c.Cost.Const - c.Cost.Eval(z0)) * x
		for _, t := range c.Cost.Terms {
			coef[t.Index] += t.Coef * x
		}
	}

	m := lp.New(fmt.Sprintf("worstcase:y%d", ev.Year), lp.Maximize)
	m.Offset = lp.Constant(constant)
	for q, qt := range p.unc.Quantities() {
		m.AddColumn(fmt.Sprintf("z[%s,%s]", qt.Class, qt.ID), 0, 1, lp.Constant(coef[q]))
	}
	addBudgetRows(m, p.unc, 0)
	return m, nil
}

// addBudgetRows adds Σ z ≤ Γ for every class with members; z columns start
// at offset in m.
func addBudgetRows(m *lp.Model, u *grid.Uncertainty, offset int) {
	for _, c := range grid.Classes {
		members := u.Members(c)
		if len(members) == 0 {
			continue
		}
		entries := make([]lp.Entry, len(members))
		for i, q := range members {
			entries[i] = lp.Entry{Col: offset + q, Coef: 1}
		}
		m.AddRow("budget["+c.String()+"]", lp.LE, lp.Constant(float64(u.Budget(c))), entries...)
	}
}
