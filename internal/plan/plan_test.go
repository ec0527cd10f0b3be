package plan

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/arotnep/internal/grid"
	"github.com/cwbudde/arotnep/internal/opt"
)

// Generator at A serves a load at B only once line AB is built.
const twoBusCase = `
name: two-bus
buses:
  - id: A
  - id: B
lines:
  - id: AB
    from: A
    to: B
    reactance: 0.1
    capacity: 100
    investment_cost: 1000
loads:
  - id: D1
    bus: B
    peak_forecast: 50
    shedding_cost: 1000
generators:
  - id: G1
    bus: A
    capacity_forecast: 100
    cost_forecast: 10
days:
  - id: d1
    weight: 1
    periods:
      - duration: 1
settings:
  years: 1
  investment_budget: 5000
`

// Demand may rise from 40 to 60 with a budget of one deviation.
const oneBusCase = `
name: one-bus
buses:
  - id: A
loads:
  - id: D1
    bus: A
    peak_forecast: 40
    peak_deviation: 20
    shedding_cost: 1000
generators:
  - id: G1
    bus: A
    capacity_forecast: 100
    cost_forecast: 10
days:
  - id: d1
    weight: 1
    periods:
      - duration: 1
budgets:
  demand: 1
settings:
  years: 1
  dual_bound: 5000
`

func loadCase(t *testing.T, text string, edit func(*grid.System)) *grid.System {
	t.Helper()
	sys, err := grid.Decode(strings.NewReader(text))
	require.NoError(t, err)
	if edit != nil {
		edit(sys)
		require.NoError(t, sys.Validate())
	}
	return sys
}

func newPlanner(t *testing.T, sys *grid.System, options ...Option) *Planner {
	t.Helper()
	cfg, err := ConfigFromSettings(sys.Settings)
	require.NoError(t, err)
	return New(sys, opt.NewSimplex(), cfg, options...)
}

func TestRunDeterministicBuildsLine(t *testing.T) {
	sys := loadCase(t, twoBusCase, nil)
	p := newPlanner(t, sys)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Converged)
	assert.Equal(t, ReasonGap, report.Reason)
	assert.Equal(t, 1, report.Iterations)
	assert.InDelta(t, 1500, report.TotalCost, 1e-6)
	assert.InDelta(t, 1000, report.InvestmentCost, 1e-6)
	assert.InDelta(t, 500, report.OperatingCost, 1e-6)
	require.Len(t, report.Schedule, 1)
	assert.Equal(t, "AB", report.Schedule[0].ID)
	assert.Equal(t, 1, report.Schedule[0].Year)
	assert.LessOrEqual(t, report.LowerBound, report.TotalCost+1e-6)

	_, err = json.Marshal(report)
	assert.NoError(t, err)
}

func TestRunParallelYearsMatchesSequential(t *testing.T) {
	edit := func(parallel bool) func(*grid.System) {
		return func(s *grid.System) {
			s.Settings.Years = 2
			s.Settings.ParallelYears = parallel
		}
	}
	seq, err := newPlanner(t, loadCase(t, twoBusCase, edit(false))).Run(context.Background())
	require.NoError(t, err)
	par, err := newPlanner(t, loadCase(t, twoBusCase, edit(true))).Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 2000, seq.TotalCost, 1e-6)
	assert.InDelta(t, seq.TotalCost, par.TotalCost, 1e-6)
	assert.True(t, seq.Decision.Equal(par.Decision))
	assert.Len(t, par.YearCosts, 2)
}

func TestRunAddsWorstCaseScenario(t *testing.T) {
	sys := loadCase(t, oneBusCase, nil)
	p := newPlanner(t, sys)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonDecisionUnchanged, report.Reason)
	assert.Equal(t, 2, report.Iterations)
	assert.InDelta(t, 600, report.TotalCost, 1e-6)
	assert.InDelta(t, 600, report.LowerBound, 1e-6)
	require.Len(t, report.WorstCase, 1)
	assert.Equal(t, "y1:100", report.WorstCase[0].Key())

	outer := p.Store().Outer()
	require.Len(t, outer, 1)
	assert.InDelta(t, 400, outer[0].LowerBound, 1e-6)
	assert.InDelta(t, 600, outer[0].UpperBound, 1e-6)
	assert.Equal(t, 2, p.Store().Scenarios())

	hist, ok := p.Store().Inner(1, 1)
	require.True(t, ok)
	assert.NotEmpty(t, hist.Cuts)
}

func TestRunInfeasibleCriticalLoad(t *testing.T) {
	sys := loadCase(t, oneBusCase, func(s *grid.System) {
		s.Loads[0].Critical = true
		s.Generators[0].CapacityForecast = 10
		s.Budgets = grid.Budgets{}
	})
	p := newPlanner(t, sys)

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSolverInfeasible))

	var inf *SolverInfeasibleError
	require.True(t, errors.As(err, &inf))
	assert.Equal(t, "outer-master", inf.Stage)
	assert.Equal(t, 1, inf.Outer)
	require.NotNil(t, inf.Report)
	assert.Same(t, report, inf.Report)
	assert.Equal(t, ReasonAborted, report.Reason)
	assert.False(t, report.Converged)
}

func TestRunZeroBudgetCannotServeLoad(t *testing.T) {
	sys := loadCase(t, twoBusCase, func(s *grid.System) {
		s.Loads[0].Critical = true
		s.Settings.InvestmentBudget = 0
	})

	report, err := newPlanner(t, sys).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSolverInfeasible)
	require.NotNil(t, report)
	assert.Empty(t, report.Schedule)
}

func TestRunCancelled(t *testing.T) {
	sys := loadCase(t, twoBusCase, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newPlanner(t, sys).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, ReasonAborted, report.Reason)
}

func TestRunObserverSeesOuterBounds(t *testing.T) {
	sys := loadCase(t, twoBusCase, nil)
	var samples []BoundSample
	p := newPlanner(t, sys, WithObserver(func(s BoundSample) { samples = append(samples, s) }))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, samples)
	assert.Equal(t, len(report.Bounds), len(samples))

	last := samples[len(samples)-1]
	assert.Equal(t, "outer", last.Level)
	assert.InDelta(t, 1500, last.Upper, 1e-6)
}

func TestRunIterationCapWarns(t *testing.T) {
	sys := loadCase(t, oneBusCase, func(s *grid.System) {
		s.Settings.OuterMaxIter = 1
	})
	report, err := newPlanner(t, sys).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReasonIterationCap, report.Reason)
	assert.False(t, report.Converged)
	require.Len(t, report.Warnings, 1)
	assert.True(t, errors.Is(report.Warnings[0], ErrNonConvergence))
	assert.Equal(t, "outer", report.Warnings[0].Level)
}

func TestOuterMasterGrowsWithWindow(t *testing.T) {
	sys := loadCase(t, twoBusCase, func(s *grid.System) {
		s.Loads[0].PeakDeviation = 30
		s.Budgets.Demand = 1
		s.Settings.RelativeGap = 0
	})
	p := newPlanner(t, sys)

	high := p.Uncertainty().Forecast(1)
	high.At[0] = true
	p.Store().AppendOuter(OuterCut{Iteration: 1, Scenario: []grid.Realization{high}})
	p.Store().AppendOuter(OuterCut{Iteration: 2, Scenario: []grid.Realization{p.Uncertainty().Forecast(1)}})
	require.Equal(t, 3, p.Store().Scenarios())

	var objectives []float64
	prev := math.Inf(-1)
	for ro := 1; ro <= p.Store().Scenarios(); ro++ {
		m, _, err := p.outerMaster(3, p.Store().RecentScenarios(ro))
		require.NoError(t, err)
		res, err := p.solve(context.Background(), m, site{stage: "outer-master", outer: 3})
		require.NoError(t, err)
		require.Equal(t, opt.StatusOptimal, res.Status)
		assert.GreaterOrEqual(t, res.Objective, prev-1e-6, "window %d", ro)
		prev = res.Objective
		objectives = append(objectives, res.Objective)
	}

	// The forecast alone needs 50 units over the line; the window holding
	// the high scenario must carry 80.
	assert.InDelta(t, 1500, objectives[0], 1e-6)
	assert.InDelta(t, 1800, objectives[1], 1e-6)
	assert.InDelta(t, 1800, objectives[2], 1e-6)
}
