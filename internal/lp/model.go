package lp

import (
	"fmt"
	"math"
)

// Sense is the optimization direction of a model.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "max"
	}
	return "min"
}

// RowSense is the relation between a row's activity and its right-hand side.
type RowSense int

const (
	LE RowSense = iota
	GE
	EQ
)

func (s RowSense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	}
	return "="
}

// Column is a decision variable. Integer columns with bounds [0,1] are
// binaries.
type Column struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
	Cost    Affine
}

// Entry is a nonzero coefficient of a row.
type Entry struct {
	Col  int
	Coef float64
}

// Row is a linear constraint Σ Entries (Sense) RHS.
type Row struct {
	Name    string
	Entries []Entry
	Sense   RowSense
	RHS     Affine
}

// Model is a linear or mixed-integer program. Costs, offset and right-hand
// sides may depend affinely on uncertainty indicators; coefficients may not.
type Model struct {
	Name   string
	Sense  Sense
	Offset Affine
	Cols   []Column
	Rows   []Row

	byName map[string]int
}

// New returns an empty model.
func New(name string, sense Sense) *Model {
	return &Model{Name: name, Sense: sense, byName: make(map[string]int)}
}

// AddColumn appends a continuous column and returns its index.
func (m *Model) AddColumn(name string, lower, upper float64, cost Affine) int {
	return m.add(Column{Name: name, Lower: lower, Upper: upper, Cost: cost})
}

// AddBinary appends a 0/1 column and returns its index.
func (m *Model) AddBinary(name string, cost Affine) int {
	return m.add(Column{Name: name, Lower: 0, Upper: 1, Integer: true, Cost: cost})
}

func (m *Model) add(c Column) int {
	if m.byName == nil {
		m.byName = make(map[string]int)
	}
	idx := len(m.Cols)
	m.Cols = append(m.Cols, c)
	m.byName[c.Name] = idx
	return idx
}

// Column looks up a column by name.
func (m *Model) Column(name string) (int, bool) {
	idx, ok := m.byName[name]
	return idx, ok
}

// AddCost adds c to the cost of column col.
func (m *Model) AddCost(col int, c Affine) {
	m.Cols[col].Cost = m.Cols[col].Cost.Add(c)
}

// AddRow appends a constraint, dropping zero coefficients, and returns its
// index.
func (m *Model) AddRow(name string, sense RowSense, rhs Affine, entries ...Entry) int {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Coef != 0 {
			kept = append(kept, e)
		}
	}
	m.Rows = append(m.Rows, Row{Name: name, Entries: kept, Sense: sense, RHS: rhs})
	return len(m.Rows) - 1
}

// Integers returns the number of integer columns.
func (m *Model) Integers() int {
	n := 0
	for _, c := range m.Cols {
		if c.Integer {
			n++
		}
	}
	return n
}

// Parametric reports whether any cost or right-hand side depends on z.
func (m *Model) Parametric() bool {
	if !m.Offset.IsConstant() {
		return true
	}
	for _, c := range m.Cols {
		if !c.Cost.IsConstant() {
			return true
		}
	}
	for _, r := range m.Rows {
		if !r.RHS.IsConstant() {
			return true
		}
	}
	return false
}

// Instantiate returns a copy of m with every affine value evaluated at z.
func (m *Model) Instantiate(z []float64) *Model {
	out := New(m.Name, m.Sense)
	out.Offset = Constant(m.Offset.Eval(z))
	for _, c := range m.Cols {
		c.Cost = Constant(c.Cost.Eval(z))
		out.add(c)
	}
	out.Rows = make([]Row, len(m.Rows))
	for i, r := range m.Rows {
		out.Rows[i] = Row{Name: r.Name, Entries: r.Entries, Sense: r.Sense, RHS: Constant(r.RHS.Eval(z))}
	}
	return out
}

// Objective evaluates the objective of x at z.
func (m *Model) Objective(x, z []float64) float64 {
	v := m.Offset.Eval(z)
	for j, c := range m.Cols {
		v += c.Cost.Eval(z) * x[j]
	}
	return v
}

// Check verifies that x satisfies bounds, integrality and rows at z within
// tol. It returns the first violation found.
func (m *Model) Check(x, z []float64, tol float64) error {
	if len(x) != len(m.Cols) {
		return fmt.Errorf("expected %d values, got %d", len(m.Cols), len(x))
	}
	for j, c := range m.Cols {
		if x[j] < c.Lower-tol || x[j] > c.Upper+tol {
			return fmt.Errorf("column %s = %g outside [%g, %g]", c.Name, x[j], c.Lower, c.Upper)
		}
		if c.Integer && math.Abs(x[j]-math.Round(x[j])) > tol {
			return fmt.Errorf("column %s = %g not integral", c.Name, x[j])
		}
	}
	for _, r := range m.Rows {
		act := 0.0
		for _, e := range r.Entries {
			act += e.Coef * x[e.Col]
		}
		rhs := r.RHS.Eval(z)
		scale := tol * math.Max(1, math.Abs(rhs))
		switch {
		case r.Sense == LE && act > rhs+scale,
			r.Sense == GE && act < rhs-scale,
			r.Sense == EQ && math.Abs(act-rhs) > scale:
			return fmt.Errorf("row %s: %g %s %g violated", r.Name, act, r.Sense, rhs)
		}
	}
	return nil
}
