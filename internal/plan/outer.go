package plan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/arotnep/internal/grid"
)

// Run executes the outer loop until the gap closes, the decision repeats or
// the iteration cap is reached. On a fatal error the partial report is
// attached to a *SolverInfeasibleError, or returned alongside ctx errors.
func (p *Planner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	years := p.sys.Settings.Years
	tracker := NewBoundTracker("outer", p.cfg.Tolerance)

	report := &Report{Case: p.sys.Name}
	var (
		incumbent grid.Decision
		haveInc   bool
		previous  grid.Decision
		havePrev  bool
	)

	finish := func(reason string, converged bool) *Report {
		report.Reason = reason
		report.Converged = converged
		report.LowerBound = finiteOr(tracker.Lower(), 0)
		// -1 when no upper bound was ever found.
		report.Gap = finiteOr(tracker.Gap(), -1)
		if haveInc {
			report.Decision = incumbent
			report.Schedule = p.sys.Schedule(incumbent)
			report.InvestmentCost = p.sys.InvestmentCost(incumbent)
		}
		report.TotalCost = finiteOr(tracker.Upper(), 0)
		report.OperatingCost = report.TotalCost - report.InvestmentCost
		p.mu.Lock()
		report.Bounds = append([]BoundSample{}, p.bounds...)
		report.Warnings = append([]Warning{}, p.warnings...)
		p.mu.Unlock()
		report.Elapsed = time.Since(start)
		return report
	}
	fail := func(err error) (*Report, error) {
		tracker.Abort()
		r := finish(ReasonAborted, false)
		var inf *SolverInfeasibleError
		if errors.As(err, &inf) {
			inf.Report = r
		}
		slog.Error("Planning aborted", "outer", report.Iterations, "error", err)
		return r, err
	}

	slog.Info("Starting planning run",
		"case", p.sys.Name,
		"years", years,
		"candidates", len(p.sys.Candidates()),
		"uncertain", p.unc.Len(),
		"window", p.cfg.Window.Name(),
		"parallel_years", p.cfg.ParallelYears,
	)

	for j := 1; ; j++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		report.Iterations = j
		tracker.Begin()

		lb, d, window, err := p.solveRelaxedMaster(ctx, j, tracker.Lower())
		if err != nil {
			return fail(err)
		}
		tracker.RaiseLower(lb)
		slog.Info("Outer master solved",
			"outer", j,
			"window", window,
			"scenarios", p.store.Scenarios(),
			"lower", tracker.Lower(),
			"schedule", p.sys.Schedule(d),
		)

		if havePrev && d.Equal(previous) {
			p.observe(tracker.Record(j, 0, j))
			slog.Info("Outer decision unchanged, stopping", "outer", j)
			return finish(ReasonDecisionUnchanged, true), nil
		}
		previous, havePrev = d, true

		results, err := p.innerYears(ctx, j, d)
		if err != nil {
			return fail(err)
		}

		scenario := make([]grid.Realization, years)
		costs := make([]float64, years)
		ub := p.sys.InvestmentCost(d)
		for y, r := range results {
			p.store.Publish(r.History)
			scenario[y] = r.Point
			costs[y] = r.WorstCase
			ub += p.sys.Discount(y+1) * r.WorstCase
		}
		if tracker.LowerUpper(ub) || !haveInc {
			incumbent, haveInc = d, true
			report.YearCosts = costs
			report.WorstCase = scenario
		}
		p.store.AppendOuter(OuterCut{
			Iteration:  j,
			Decision:   d,
			Scenario:   scenario,
			YearCosts:  costs,
			LowerBound: tracker.Lower(),
			UpperBound: ub,
		})
		p.observe(tracker.Record(j, 0, j))

		switch tracker.Check(j, p.cfg.OuterMaxIter) {
		case StateConverged:
			slog.Info("Outer loop converged", "outer", j, "gap", tracker.Gap())
			return finish(ReasonGap, true), nil
		case StateCapReached:
			p.warn(Warning{
				Level:   "outer",
				Outer:   j,
				Gap:     tracker.Gap(),
				Message: ErrNonConvergence.Error(),
			})
			return finish(ReasonIterationCap, false), nil
		}
	}
}

// innerYears runs the inner loop of every year for decision d. Each year
// owns its history; nothing is shared until the caller publishes them.
func (p *Planner) innerYears(ctx context.Context, j int, d grid.Decision) ([]*InnerResult, error) {
	years := p.sys.Settings.Years
	results := make([]*InnerResult, years)
	if !p.cfg.ParallelYears {
		for y := 1; y <= years; y++ {
			r, err := p.RunInner(ctx, j, y, d)
			if err != nil {
				return nil, err
			}
			results[y-1] = r
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for y := 1; y <= years; y++ {
		g.Go(func() error {
			r, err := p.RunInner(gctx, j, y, d)
			if err != nil {
				return err
			}
			results[y-1] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
