//go:build highs

package highs

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/arotnep/internal/lp"
	"github.com/cwbudde/arotnep/internal/opt"
)

func TestToHighsBounds(t *testing.T) {
	m := lp.New("conv", lp.Minimize)
	x := m.AddColumn("x", math.Inf(-1), math.Inf(1), lp.Constant(1))
	u := m.AddBinary("u", lp.Constant(2))
	m.AddRow("ge", lp.GE, lp.Constant(1), lp.Entry{Col: x, Coef: 1}, lp.Entry{Col: u, Coef: 1})
	m.AddRow("eq", lp.EQ, lp.Constant(3), lp.Entry{Col: x, Coef: 2})

	h := toHighs(m)
	if !math.IsInf(h.RowUpper[0], 1) || h.RowLower[0] != 1 {
		t.Errorf("GE row bounds wrong: [%v, %v]", h.RowLower[0], h.RowUpper[0])
	}
	if h.RowLower[1] != 3 || h.RowUpper[1] != 3 {
		t.Errorf("EQ row bounds wrong: [%v, %v]", h.RowLower[1], h.RowUpper[1])
	}
	if len(h.ConstMatrix) != 3 {
		t.Errorf("Expected 3 nonzeros, got %d", len(h.ConstMatrix))
	}
}

func TestSolveKnapsack(t *testing.T) {
	m := lp.New("knap", lp.Maximize)
	a := m.AddBinary("a", lp.Constant(5))
	b := m.AddBinary("b", lp.Constant(4))
	m.AddRow("w", lp.LE, lp.Constant(3), lp.Entry{Col: a, Coef: 2}, lp.Entry{Col: b, Coef: 2})

	res, err := New().Solve(context.Background(), m, opt.Options{RelativeGap: 1e-6})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if res.Status != opt.StatusOptimal || math.Abs(res.Objective-5) > 1e-6 {
		t.Errorf("Expected optimal 5, got %s %v", res.Status, res.Objective)
	}
}

func TestSolveWithLimits(t *testing.T) {
	m := lp.New("limits", lp.Minimize)
	x := m.AddColumn("x", 0, 10, lp.Constant(1))
	u := m.AddBinary("u", lp.Constant(3))
	m.AddRow("cover", lp.GE, lp.Constant(4), lp.Entry{Col: x, Coef: 1}, lp.Entry{Col: u, Coef: 5})

	res, err := New().Solve(context.Background(), m, opt.Options{RelativeGap: 1e-4, TimeLimit: 5 * time.Second})
	if err != nil {
		t.Fatalf("Solve with gap and time limit failed: %v", err)
	}
	if res.Status != opt.StatusOptimal || math.Abs(res.Objective-3) > 1e-6 {
		t.Errorf("Expected optimal 3, got %s %v", res.Status, res.Objective)
	}
}
