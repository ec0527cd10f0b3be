package plan

import (
	"context"
	"fmt"
	"math"

	"github.com/cwbudde/arotnep/internal/grid"
	"github.com/cwbudde/arotnep/internal/lp"
)

// masterCols indexes the investment and epigraph columns of an outer master.
type masterCols struct {
	build [][]int // build-now, per candidate and year
	built [][]int // built-so-far, per candidate and year
	rho   []int   // operating cost epigraph per year
}

// outerMaster builds the relaxed outer master over the given scenarios:
//
//	min Σ_y disc_y·(Σ_c IC_c·v_cy + ρ_y)
//	s.t. Σ_y v_cy ≤ 1, b_cy = Σ_{t≤y} v_ct, Σ disc·IC·v ≤ budget
//	     ρ_y ≥ dispatch cost of year y under scenario s, for every s
func (p *Planner) outerMaster(j int, scenarios [][]grid.Realization) (*lp.Model, *masterCols, error) {
	sys := p.sys
	years := sys.Settings.Years
	cands := sys.Candidates()
	m := lp.New(fmt.Sprintf("master:j%d:w%d", j, len(scenarios)), lp.Minimize)
	cols := &masterCols{
		build: make([][]int, len(cands)),
		built: make([][]int, len(cands)),
		rho:   make([]int, years),
	}

	budget := make([]lp.Entry, 0, len(cands)*years)
	for c, cand := range cands {
		cols.build[c] = make([]int, years)
		cols.built[c] = make([]int, years)
		once := make([]lp.Entry, 0, years)
		for y := 1; y <= years; y++ {
			disc := sys.Discount(y)
			v := m.AddBinary(fmt.Sprintf("build[%s,%d]", cand.ID, y), lp.Constant(disc*cand.Cost))
			cols.build[c][y-1] = v
			cols.built[c][y-1] = m.AddColumn(fmt.Sprintf("built[%s,%d]", cand.ID, y), 0, 1, lp.Affine{})
			once = append(once, lp.Entry{Col: v, Coef: 1})
			budget = append(budget, lp.Entry{Col: v, Coef: disc * cand.Cost})

			prefix := []lp.Entry{{Col: cols.built[c][y-1], Coef: 1}}
			for t := 0; t < y; t++ {
				prefix = append(prefix, lp.Entry{Col: cols.build[c][t], Coef: -1})
			}
			m.AddRow(fmt.Sprintf("prefix[%s,%d]", cand.ID, y), lp.EQ, lp.Affine{}, prefix...)
		}
		m.AddRow(fmt.Sprintf("once[%s]", cand.ID), lp.LE, lp.Constant(1), once...)
	}
	if len(budget) > 0 {
		m.AddRow("budget", lp.LE, lp.Constant(sys.Settings.InvestmentBudget), budget...)
	}

	for y := 1; y <= years; y++ {
		cols.rho[y-1] = m.AddColumn(fmt.Sprintf("rho[%d]", y), math.Inf(-1), math.Inf(1), lp.Constant(sys.Discount(y)))
	}

	for s, scenario := range scenarios {
		for y := 1; y <= years; y++ {
			point := scenario[y-1]
			buildCols := make([]int, len(cands))
			for c := range cands {
				buildCols[c] = cols.built[c][y-1]
			}
			ctx := Context{
				Year:      y,
				BuildCols: buildCols,
				Point:     &point,
				Prefix:    fmt.Sprintf("s%d:y%d:", s, y),
			}
			blk, err := p.builder.Dispatch(m, ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to build master block: %w", err)
			}
			if err := blk.Epigraph(m, fmt.Sprintf("epi[s%d,y%d]", s, y), cols.rho[y-1]); err != nil {
				return nil, nil, err
			}
		}
	}
	return m, cols, nil
}

// solveRelaxedMaster solves the outer master over growing windows of the
// most recent scenarios. A window is accepted when it holds every scenario
// or when its objective exceeds the current lower bound.
func (p *Planner) solveRelaxedMaster(ctx context.Context, j int, lb float64) (float64, grid.Decision, int, error) {
	at := site{stage: "outer-master", outer: j}
	return relaxWindow(p.cfg.Window, p.store.Scenarios(),
		func(obj float64) bool { return obj > lb },
		func(ro int) (float64, grid.Decision, error) {
			m, cols, err := p.outerMaster(j, p.store.RecentScenarios(ro))
			if err != nil {
				return 0, grid.Decision{}, err
			}
			res, err := p.solve(ctx, m, at)
			if err != nil {
				return 0, grid.Decision{}, err
			}
			d := grid.NewDecision(len(cols.build), p.sys.Settings.Years)
			for c := range cols.build {
				for y, col := range cols.build[c] {
					d.Build[c][y] = res.Primal[col] > 0.5
				}
			}
			return res.Objective, d, nil
		})
}
