package plan

import (
	"context"
	"log/slog"
	"math"

	"github.com/cwbudde/arotnep/internal/grid"
)

// probe searches the uncertainty set with the metaheuristic. Each candidate
// position in [0,1]^n is rounded to a budget-feasible realization and scored
// by its dispatch cost; the best evaluation seeds the inner loop.
func (p *Planner) probe(ctx context.Context, at site, d grid.Decision) (*Evaluation, error) {
	y := at.year
	cache := make(map[string]*Evaluation)
	var (
		best     *Evaluation
		firstErr error
	)
	eval := func(x []float64) float64 {
		if firstErr != nil {
			return math.Inf(1)
		}
		if err := ctx.Err(); err != nil {
			firstErr = err
			return math.Inf(1)
		}
		point := roundToBudget(p.unc, y, x, 0.5)
		key := point.Key()
		ev, ok := cache[key]
		if !ok {
			var err error
			ev, err = p.evaluate(ctx, site{stage: "probe", outer: at.outer, year: y}, d, point)
			if err != nil {
				firstErr = err
				return math.Inf(1)
			}
			cache[key] = ev
		}
		if best == nil || ev.Value > best.Value {
			best = ev
		}
		return -ev.Value
	}

	if _, _, err := p.prober.Minimize(eval, 0, 1, p.unc.Len()); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if best == nil {
		return p.evaluate(ctx, site{stage: "probe", outer: at.outer, year: y}, d, p.unc.Forecast(y))
	}
	slog.Debug("Probe finished",
		"outer", at.outer,
		"year", y,
		"distinct", len(cache),
		"best", best.Value,
		"point", best.Point.Key(),
	)
	return best, nil
}
