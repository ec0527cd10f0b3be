package plan

import (
	"context"
	"log/slog"
	"math"

	"github.com/cwbudde/arotnep/internal/grid"
)

// InnerResult is the worst case found for one year under a fixed plan.
type InnerResult struct {
	Year       int
	WorstCase  float64
	Point      grid.Realization
	Converged  bool
	Iterations int
	History    *YearHistory
}

// RunInner searches the worst-case realization of year y for decision d.
// Sub-loop A alternates evaluations with dual alternation passes; sub-loop B
// refines with the exact relaxed master. Evaluations certify the lower
// bound; only the exact master provides an upper bound.
func (p *Planner) RunInner(ctx context.Context, j, y int, d grid.Decision) (*InnerResult, error) {
	hist := &YearHistory{Outer: j, Year: y}
	tracker := NewBoundTracker("inner", p.cfg.Tolerance)
	res := &InnerResult{Year: y, History: hist}

	var best *Evaluation
	record := func(ev *Evaluation, stage string, k int) int {
		if tracker.RaiseLower(ev.Value) || best == nil {
			best = ev
		}
		return hist.Append(InnerCut{Iteration: k, Stage: stage, Point: ev.Point, Policy: ev.Policy, Value: ev.Value})
	}

	point := p.unc.Forecast(y)
	if p.prober != nil && !p.unc.Singleton() {
		seed, err := p.probe(ctx, site{outer: j, year: y}, d)
		if err != nil {
			return nil, err
		}
		record(seed, "probe", 0)
		point = seed.Point
	}

	// Sub-loop A. The upper bound here is the alternation's estimate, so an
	// evaluation that reaches it ends the sub-loop.
	k := 0
	for {
		k++
		tracker.Begin()
		at := site{outer: j, year: y, inner: k}
		ev, err := p.evaluate(ctx, at, d, point)
		if err != nil {
			tracker.Abort()
			return nil, err
		}
		idx := record(ev, "alternation", k)

		if p.unc.Singleton() {
			tracker.LowerUpper(tracker.Lower())
			p.observe(tracker.Record(j, y, k))
			res.Converged = true
			res.Iterations = k
			res.WorstCase, res.Point = best.Value, best.Point
			slog.Debug("Singleton uncertainty set, inner loop done", "outer", j, "year", y)
			return res, nil
		}

		tracker.FloorUpper()
		state := tracker.Check(k, p.cfg.InnerMaxIter)
		p.observe(tracker.Record(j, y, k))
		if state == StateConverged || state == StateCapReached {
			break
		}

		step, dual, err := p.warmStart(ctx, at, d, ev)
		if err != nil {
			tracker.Abort()
			return nil, err
		}
		hist.Cuts[idx].Dual = dual
		tracker.SetUpper(math.Max(step.XiP, step.XiQ))
		if step.Next.Key() == ev.Point.Key() {
			slog.Debug("Alternation point unchanged, leaving sub-loop A", "outer", j, "year", y, "inner", k)
			break
		}
		point = step.Next
	}
	res.Iterations = k

	// Sub-loop B.
	tracker.ResetUpper()
	for kb := 1; ; kb++ {
		k++
		tracker.Begin()
		at := site{outer: j, year: y, inner: k}
		ev, err := p.evaluate(ctx, at, d, point)
		if err != nil {
			tracker.Abort()
			return nil, err
		}
		record(ev, "exact", k)

		ub, next, window, err := p.relaxInner(ctx, at, d, hist, tracker.Upper())
		if err != nil {
			tracker.Abort()
			return nil, err
		}
		tracker.LowerUpper(ub)
		if tracker.Crossed(p.cfg.Tolerance + p.cfg.RelativeGap) {
			tracker.Abort()
			return nil, &BoundsCrossedError{
				Level: "inner",
				Outer: j,
				Year:  y,
				Inner: k,
				Lower: tracker.Lower(),
				Upper: tracker.Upper(),
			}
		}
		p.observe(tracker.Record(j, y, k))
		slog.Debug("Inner master solved",
			"outer", j,
			"year", y,
			"inner", k,
			"window", window,
			"lower", tracker.Lower(),
			"upper", tracker.Upper(),
		)

		state := tracker.Check(kb, p.cfg.InnerMaxIter)
		if state == StateConverged {
			res.Converged = true
			break
		}
		if state == StateCapReached {
			p.warn(Warning{
				Level:   "inner",
				Outer:   j,
				Year:    y,
				Gap:     tracker.Gap(),
				Message: ErrNonConvergence.Error(),
			})
			break
		}
		point = next
	}

	res.Iterations = k
	res.WorstCase, res.Point = best.Value, best.Point
	slog.Info("Inner loop finished",
		"outer", j,
		"year", y,
		"worst_case", res.WorstCase,
		"upper", tracker.Upper(),
		"iterations", k,
		"converged", res.Converged,
	)
	return res, nil
}

// relaxInner solves the exact inner master over growing windows of the most
// recent cuts and accepts the first that falls below the current bound.
func (p *Planner) relaxInner(ctx context.Context, at site, d grid.Decision, hist *YearHistory, ub float64) (float64, grid.Realization, int, error) {
	obj, point, ro, err := relaxWindow(p.cfg.Window, hist.Len(),
		func(obj float64) bool { return obj < ub },
		func(ro int) (float64, grid.Realization, error) {
			return p.innerMaster(ctx, at, d, hist.Recent(ro))
		})
	return obj, point, ro, err
}
