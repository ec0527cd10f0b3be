package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwbudde/arotnep/internal/grid"
)

// Evaluation is the optimal dispatch of one year for a fixed plan and
// realization. Its value is a certified lower bound on the worst case.
type Evaluation struct {
	Year   int
	Point  grid.Realization
	Value  float64
	Policy Policy

	// Dispatch holds the continuous column values by name.
	Dispatch map[string]float64
}

// Evaluate solves the full dispatch MILP of year y under decision d at the
// given realization.
func (p *Planner) Evaluate(ctx context.Context, d grid.Decision, point grid.Realization) (*Evaluation, error) {
	return p.evaluate(ctx, site{stage: "evaluation", year: point.Year}, d, point)
}

func (p *Planner) evaluate(ctx context.Context, at site, d grid.Decision, point grid.Realization) (*Evaluation, error) {
	y := point.Year
	name := fmt.Sprintf("ilsp:y%d:j%d:k%d", y, at.outer, at.inner)
	m, blk, err := p.builder.DispatchModel(name, Context{Year: y, Decision: &d, Point: &point})
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", name, err)
	}

	at.stage = "evaluation"
	res, err := p.solve(ctx, m, at)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{
		Year:     y,
		Point:    point,
		Value:    res.Objective,
		Policy:   blk.Policy(res.Primal),
		Dispatch: make(map[string]float64, len(m.Cols)),
	}
	for j, c := range m.Cols {
		if !c.Integer {
			ev.Dispatch[c.Name] = res.Primal[j]
		}
	}
	slog.Debug("Evaluated realization",
		"year", y,
		"outer", at.outer,
		"inner", at.inner,
		"point", point.Key(),
		"value", ev.Value,
	)
	return ev, nil
}
