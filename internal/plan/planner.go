// Package plan solves multi-year robust expansion planning by nested
// column-and-constraint generation: an outer loop over investment plans and,
// per year, an inner loop that searches for the worst-case realization.
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/arotnep/internal/grid"
	"github.com/cwbudde/arotnep/internal/lp"
	"github.com/cwbudde/arotnep/internal/opt"
)

// Config holds the solution controls of a run.
type Config struct {
	Tolerance     float64
	OuterMaxIter  int
	InnerMaxIter  int
	ADAMaxIter    int
	RelativeGap   float64
	TimeLimit     time.Duration
	DualBound     float64
	Window        CutWindow
	ParallelYears bool
}

// ConfigFromSettings derives a Config from case settings.
func ConfigFromSettings(s grid.Settings) (Config, error) {
	w, err := NewCutWindow(s.Window, s.MaxLookback)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Tolerance:     s.Tolerance,
		OuterMaxIter:  s.OuterMaxIter,
		InnerMaxIter:  s.InnerMaxIter,
		ADAMaxIter:    s.ADAMaxIter,
		RelativeGap:   s.RelativeGap,
		TimeLimit:     s.TimeLimit(),
		DualBound:     s.DualBound,
		Window:        w,
		ParallelYears: s.ParallelYears,
	}, nil
}

// Observer receives every bound sample as it is recorded. It may be called
// from several goroutines when years run in parallel; calls are serialized.
type Observer func(BoundSample)

// Option customizes a Planner.
type Option func(*Planner)

// WithObserver streams bound samples to fn.
func WithObserver(fn Observer) Option {
	return func(p *Planner) { p.observer = fn }
}

// WithProbe seeds each inner loop with the best realization a metaheuristic
// finds within its budget of evaluations.
func WithProbe(o opt.Optimizer) Option {
	return func(p *Planner) { p.prober = o }
}

// Planner runs the nested decomposition for one case.
type Planner struct {
	sys     *grid.System
	unc     *grid.Uncertainty
	builder *Builder
	oracle  opt.Oracle
	cfg     Config
	store   *ScenarioStore

	observer Observer
	prober   opt.Optimizer

	mu       sync.Mutex
	bounds   []BoundSample
	warnings []Warning
}

// New creates a planner. The case must already be validated.
func New(sys *grid.System, oracle opt.Oracle, cfg Config, options ...Option) *Planner {
	unc := grid.NewUncertainty(sys)
	forecast := make([]grid.Realization, sys.Settings.Years)
	for y := range forecast {
		forecast[y] = unc.Forecast(y + 1)
	}
	if cfg.Window == nil {
		cfg.Window = SlidingWindow{}
	}
	p := &Planner{
		sys:     sys,
		unc:     unc,
		builder: NewBuilder(sys, unc),
		oracle:  oracle,
		cfg:     cfg,
		store:   NewScenarioStore(forecast),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Store exposes the scenario store of the run.
func (p *Planner) Store() *ScenarioStore { return p.store }

// Uncertainty exposes the indexed uncertainty set.
func (p *Planner) Uncertainty() *grid.Uncertainty { return p.unc }

func (p *Planner) observe(s BoundSample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bounds = append(p.bounds, s)
	if p.observer != nil {
		p.observer(s)
	}
}

func (p *Planner) warn(w Warning) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.Gap = finiteOr(w.Gap, -1)
	p.warnings = append(p.warnings, w)
	slog.Warn("Loop stopped without convergence",
		"level", w.Level,
		"outer", w.Outer,
		"year", w.Year,
		"gap", w.Gap,
		"message", w.Message,
	)
}

// site identifies where in the nested loops a solve happens.
type site struct {
	stage string
	outer int
	year  int
	inner int
}

// solve runs the oracle and turns infeasibility into a fatal error. Limit
// statuses with an incumbent are accepted.
func (p *Planner) solve(ctx context.Context, m *lp.Model, at site) (*opt.Result, error) {
	res, err := p.oracle.Solve(ctx, m, opt.Options{RelativeGap: p.cfg.RelativeGap, TimeLimit: p.cfg.TimeLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to solve %s: %w", m.Name, err)
	}
	switch res.Status {
	case opt.StatusOptimal:
		return res, nil
	case opt.StatusInfeasible:
		return nil, &SolverInfeasibleError{
			Stage:  at.stage,
			Outer:  at.outer,
			Year:   at.year,
			Inner:  at.inner,
			Status: res.Status,
		}
	case opt.StatusTimeLimit, opt.StatusIterationLimit:
		if res.HasSolution() {
			slog.Warn("Solver stopped at a limit, using incumbent",
				"model", m.Name,
				"status", res.Status.String(),
			)
			return res, nil
		}
	}
	return nil, fmt.Errorf("failed to solve %s: status %s", m.Name, res.Status)
}

// Report is the outcome of a run.
type Report struct {
	Case           string             `json:"case"`
	Decision       grid.Decision      `json:"decision"`
	Schedule       []grid.Commission  `json:"schedule"`
	InvestmentCost float64            `json:"investmentCost"`
	OperatingCost  float64            `json:"operatingCost"`
	TotalCost      float64            `json:"totalCost"`
	LowerBound     float64            `json:"lowerBound"`
	Gap            float64            `json:"gap"`
	YearCosts      []float64          `json:"yearCosts"`
	WorstCase      []grid.Realization `json:"worstCase"`
	Iterations     int                `json:"iterations"`
	Converged      bool               `json:"converged"`
	Reason         string             `json:"reason"`
	Warnings       []Warning          `json:"warnings,omitempty"`
	Bounds         []BoundSample      `json:"bounds"`
	Elapsed        time.Duration      `json:"elapsed"`
}

// Termination reasons.
const (
	ReasonDecisionUnchanged = "decision_unchanged"
	ReasonGap               = "gap"
	ReasonIterationCap      = "iteration_cap"
	ReasonAborted           = "aborted"
)

func finiteOr(v, fallback float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fallback
	}
	return v
}
