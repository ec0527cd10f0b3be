package opt

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/arotnep/internal/lp"
)

var inf = math.Inf(1)

func solve(t *testing.T, m *lp.Model) *Result {
	t.Helper()
	res, err := NewSimplex().Solve(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	return res
}

func TestSimplexMinimize(t *testing.T) {
	m := lp.New("small", lp.Minimize)
	x := m.AddColumn("x", 0, inf, lp.Constant(2))
	y := m.AddColumn("y", 0, inf, lp.Constant(3))
	m.AddRow("cover", lp.GE, lp.Constant(4), lp.Entry{Col: x, Coef: 1}, lp.Entry{Col: y, Coef: 1})
	m.AddRow("capx", lp.LE, lp.Constant(3), lp.Entry{Col: x, Coef: 1})

	res := solve(t, m)
	if res.Status != StatusOptimal {
		t.Fatalf("Expected optimal, got %s", res.Status)
	}
	if math.Abs(res.Objective-9) > 1e-6 {
		t.Errorf("Expected objective 9, got %v", res.Objective)
	}
	if math.Abs(res.Primal[x]-3) > 1e-6 || math.Abs(res.Primal[y]-1) > 1e-6 {
		t.Errorf("Expected (3,1), got %v", res.Primal)
	}
}

func TestSimplexMaximizeWithOffset(t *testing.T) {
	m := lp.New("max", lp.Maximize)
	m.Offset = lp.Constant(10)
	x := m.AddColumn("x", 0, inf, lp.Constant(1))
	y := m.AddColumn("y", 0, inf, lp.Constant(1))
	m.AddRow("r1", lp.LE, lp.Constant(4), lp.Entry{Col: x, Coef: 1}, lp.Entry{Col: y, Coef: 2})
	m.AddRow("r2", lp.LE, lp.Constant(6), lp.Entry{Col: x, Coef: 3}, lp.Entry{Col: y, Coef: 1})

	res := solve(t, m)
	if math.Abs(res.Objective-12.8) > 1e-6 {
		t.Errorf("Expected objective 12.8, got %v", res.Objective)
	}
}

func TestSimplexFreeAndBoundedColumns(t *testing.T) {
	m := lp.New("free", lp.Minimize)
	x := m.AddColumn("x", math.Inf(-1), inf, lp.Constant(1))
	y := m.AddColumn("y", -2, 5, lp.Constant(-1))
	m.AddRow("fix", lp.EQ, lp.Constant(-3), lp.Entry{Col: x, Coef: 1})
	m.AddRow("link", lp.LE, lp.Constant(10), lp.Entry{Col: x, Coef: 1}, lp.Entry{Col: y, Coef: 1})

	res := solve(t, m)
	if res.Status != StatusOptimal {
		t.Fatalf("Expected optimal, got %s", res.Status)
	}
	if math.Abs(res.Primal[x]+3) > 1e-6 || math.Abs(res.Primal[y]-5) > 1e-6 {
		t.Errorf("Expected (-3,5), got %v", res.Primal)
	}
	if math.Abs(res.Objective+8) > 1e-6 {
		t.Errorf("Expected objective -8, got %v", res.Objective)
	}
}

func TestSimplexKnapsack(t *testing.T) {
	m := lp.New("knap", lp.Maximize)
	a := m.AddBinary("a", lp.Constant(5))
	b := m.AddBinary("b", lp.Constant(4))
	c := m.AddBinary("c", lp.Constant(3))
	m.AddRow("weight", lp.LE, lp.Constant(5),
		lp.Entry{Col: a, Coef: 2}, lp.Entry{Col: b, Coef: 3}, lp.Entry{Col: c, Coef: 1})

	res := solve(t, m)
	if res.Status != StatusOptimal {
		t.Fatalf("Expected optimal, got %s", res.Status)
	}
	if math.Abs(res.Objective-9) > 1e-6 {
		t.Errorf("Expected objective 9, got %v", res.Objective)
	}
	for j, v := range res.Primal {
		if v != 0 && v != 1 {
			t.Errorf("Column %d not binary: %v", j, v)
		}
	}
}

func TestSimplexDependentRows(t *testing.T) {
	build := func(rhs2 float64) *lp.Model {
		m := lp.New("dep", lp.Minimize)
		x := m.AddColumn("x", 0, inf, lp.Constant(1))
		y := m.AddColumn("y", 0, inf, lp.Constant(0))
		m.AddRow("r1", lp.EQ, lp.Constant(2), lp.Entry{Col: x, Coef: 1}, lp.Entry{Col: y, Coef: 1})
		m.AddRow("r2", lp.EQ, lp.Constant(rhs2), lp.Entry{Col: x, Coef: 2}, lp.Entry{Col: y, Coef: 2})
		return m
	}

	if res := solve(t, build(4)); res.Status != StatusOptimal || math.Abs(res.Objective) > 1e-6 {
		t.Errorf("Consistent duplicate rows: got %s %v", res.Status, res.Objective)
	}
	if res := solve(t, build(5)); res.Status != StatusInfeasible {
		t.Errorf("Inconsistent duplicate rows: expected infeasible, got %s", res.Status)
	}
}

// Candidate line AB with a big-M switched flow equation and free angles.
func TestSimplexBigMLineSwitch(t *testing.T) {
	m := lp.New("switch", lp.Minimize)
	beta := m.AddBinary("beta", lp.Constant(1000))
	pG := m.AddColumn("pG", 0, 100, lp.Constant(10))
	pLS := m.AddColumn("pLS", 0, inf, lp.Constant(1000))
	pL := m.AddColumn("pL", math.Inf(-1), inf, lp.Affine{})
	thA := m.AddColumn("thetaA", math.Inf(-1), inf, lp.Affine{})
	thB := m.AddColumn("thetaB", math.Inf(-1), inf, lp.Affine{})
	flow := []lp.Entry{{Col: pL, Coef: 1}, {Col: thA, Coef: -10}, {Col: thB, Coef: 10}}

	m.AddRow("balA", lp.EQ, lp.Constant(0), lp.Entry{Col: pG, Coef: 1}, lp.Entry{Col: pL, Coef: -1})
	m.AddRow("balB", lp.EQ, lp.Constant(50), lp.Entry{Col: pL, Coef: 1}, lp.Entry{Col: pLS, Coef: 1})
	m.AddRow("ref", lp.EQ, lp.Constant(0), lp.Entry{Col: thA, Coef: 1})
	m.AddRow("flowhi", lp.LE, lp.Constant(1e4), append(flow, lp.Entry{Col: beta, Coef: 1e4})...)
	m.AddRow("flowlo", lp.GE, lp.Constant(-1e4), append(flow, lp.Entry{Col: beta, Coef: -1e4})...)
	m.AddRow("caphi", lp.LE, lp.Constant(0), lp.Entry{Col: pL, Coef: 1}, lp.Entry{Col: beta, Coef: -100})
	m.AddRow("caplo", lp.GE, lp.Constant(0), lp.Entry{Col: pL, Coef: 1}, lp.Entry{Col: beta, Coef: 100})
	m.AddRow("shed", lp.LE, lp.Constant(50), lp.Entry{Col: pLS, Coef: 1})

	res := solve(t, m)
	if res.Status != StatusOptimal {
		t.Fatalf("Expected optimal, got %s", res.Status)
	}
	if math.Abs(res.Objective-1500) > 1e-6 {
		t.Errorf("Expected objective 1500, got %v", res.Objective)
	}
	if math.Abs(res.Primal[beta]-1) > 1e-9 || math.Abs(res.Primal[pL]-50) > 1e-6 {
		t.Errorf("Expected line built carrying 50, got beta=%v pL=%v", res.Primal[beta], res.Primal[pL])
	}
	if math.Abs(res.Primal[thB]+5) > 1e-6 {
		t.Errorf("Expected thetaB -5, got %v", res.Primal[thB])
	}
}

func TestSimplexUnboxedDual(t *testing.T) {
	primal := lp.New("dispatch", lp.Minimize)
	pG := primal.AddColumn("pG", 0, 100, lp.Constant(10))
	pLS := primal.AddColumn("pLS", 0, inf, lp.Constant(1000))
	primal.AddRow("bal", lp.EQ, lp.Constant(50), lp.Entry{Col: pG, Coef: 1}, lp.Entry{Col: pLS, Coef: 1})

	// The simplex backend leaves row duals empty; callers solve the dual model.
	if res := solve(t, primal); len(res.Dual) != 0 {
		t.Errorf("Expected no row duals from the simplex backend, got %v", res.Dual)
	}

	dual, err := lp.Dual(primal, inf)
	if err != nil {
		t.Fatalf("Dual failed: %v", err)
	}
	res := solve(t, dual)
	if res.Status != StatusOptimal {
		t.Fatalf("Expected optimal, got %s", res.Status)
	}
	if math.Abs(res.Objective-500) > 1e-6 {
		t.Errorf("Expected dual value 500, got %v", res.Objective)
	}
}

func TestSimplexInfeasibleAndUnbounded(t *testing.T) {
	m := lp.New("infeasible", lp.Minimize)
	x := m.AddColumn("x", 0, inf, lp.Constant(1))
	m.AddRow("lo", lp.GE, lp.Constant(5), lp.Entry{Col: x, Coef: 1})
	m.AddRow("hi", lp.LE, lp.Constant(3), lp.Entry{Col: x, Coef: 1})
	if res := solve(t, m); res.Status != StatusInfeasible {
		t.Errorf("Expected infeasible, got %s", res.Status)
	}

	u := lp.New("unbounded", lp.Minimize)
	z := u.AddColumn("z", 0, inf, lp.Constant(-1))
	u.AddRow("lo", lp.GE, lp.Constant(1), lp.Entry{Col: z, Coef: 1})
	if res := solve(t, u); res.Status != StatusUnbounded {
		t.Errorf("Expected unbounded, got %s", res.Status)
	}
}

func TestSimplexIntegerInfeasible(t *testing.T) {
	m := lp.New("parity", lp.Minimize)
	a := m.AddBinary("a", lp.Constant(1))
	b := m.AddBinary("b", lp.Constant(1))
	m.AddRow("half", lp.EQ, lp.Constant(1), lp.Entry{Col: a, Coef: 2}, lp.Entry{Col: b, Coef: 2})
	if res := solve(t, m); res.Status != StatusInfeasible {
		t.Errorf("Expected infeasible, got %s", res.Status)
	}
}

func TestSimplexRejectsParametric(t *testing.T) {
	m := lp.New("param", lp.Minimize)
	m.AddColumn("x", 0, inf, lp.Constant(1).With(0, 1))
	_, err := NewSimplex().Solve(context.Background(), m, Options{})
	if !errors.Is(err, ErrParametric) {
		t.Errorf("Expected ErrParametric, got %v", err)
	}
}

func TestInstrumentPassesThrough(t *testing.T) {
	m := lp.New("ilsp:y1", lp.Minimize)
	x := m.AddColumn("x", 0, inf, lp.Constant(1))
	m.AddRow("lo", lp.GE, lp.Constant(2), lp.Entry{Col: x, Coef: 1})

	res, err := Instrument("simplex", NewSimplex()).Solve(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if math.Abs(res.Objective-2) > 1e-6 {
		t.Errorf("Expected objective 2, got %v", res.Objective)
	}
	if got := modelKind("dual:ilsp:y1"); got != "ilsp" {
		t.Errorf("Expected kind ilsp, got %s", got)
	}
}
