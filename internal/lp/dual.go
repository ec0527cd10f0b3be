package lp

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotDualizable is returned by Dual for models it cannot dualize.
var ErrNotDualizable = errors.New("model cannot be dualized")

// DualPrefix is prepended to primal row names to name dual columns.
const DualPrefix = "dual:"

// Dual returns the LP dual of a minimization model without integer columns.
//
// Every row is first written as a ≥ or = row; finite column bounds other
// than a zero lower bound become extra ≥ rows. For
//
//	min c'x + o  s.t.  A_ge x ≥ b_ge,  A_eq x = b_eq,  x_N ≥ 0, x_F free
//
// the dual is
//
//	max b'π + o  s.t.  (A'π)_j ≤ c_j for j in N,  (A'π)_j = c_j for j in F,
//	π_ge ≥ 0, π_eq free.
//
// Dual columns are boxed to [-bound, bound] (or [0, bound]); bound may be
// +Inf. Dual row j carries the name of primal column j, so a primal solution
// can be matched to the dual constraints it prices. Affine right-hand sides
// become affine dual costs and affine primal costs become affine dual
// right-hand sides.
func Dual(m *Model, bound float64) (*Model, error) {
	if m.Sense != Minimize {
		return nil, fmt.Errorf("%w: %s is not a minimization", ErrNotDualizable, m.Name)
	}
	if m.Integers() > 0 {
		return nil, fmt.Errorf("%w: %s has %d integer columns", ErrNotDualizable, m.Name, m.Integers())
	}

	type normRow struct {
		name    string
		entries []Entry
		rhs     Affine
		free    bool
	}
	rows := make([]normRow, 0, len(m.Rows))
	for _, r := range m.Rows {
		nr := normRow{name: r.Name, entries: r.Entries, rhs: r.RHS, free: r.Sense == EQ}
		if r.Sense == LE {
			neg := make([]Entry, len(r.Entries))
			for i, e := range r.Entries {
				neg[i] = Entry{Col: e.Col, Coef: -e.Coef}
			}
			nr.entries = neg
			nr.rhs = r.RHS.Scale(-1)
		}
		rows = append(rows, nr)
	}

	nonneg := make([]bool, len(m.Cols))
	for j, c := range m.Cols {
		switch {
		case c.Lower == 0:
			nonneg[j] = true
		case !math.IsInf(c.Lower, -1):
			rows = append(rows, normRow{
				name:    "lb:" + c.Name,
				entries: []Entry{{Col: j, Coef: 1}},
				rhs:     Constant(c.Lower),
			})
		}
		if !math.IsInf(c.Upper, 1) {
			rows = append(rows, normRow{
				name:    "ub:" + c.Name,
				entries: []Entry{{Col: j, Coef: -1}},
				rhs:     Constant(-c.Upper),
			})
		}
	}

	d := New(DualPrefix+m.Name, Maximize)
	d.Offset = m.Offset

	// Transposed coefficients: per primal column, the dual entries.
	byCol := make([][]Entry, len(m.Cols))
	for i, r := range rows {
		lower := 0.0
		if r.free {
			lower = -bound
		}
		d.AddColumn(DualPrefix+r.name, lower, bound, r.rhs)
		for _, e := range r.entries {
			byCol[e.Col] = append(byCol[e.Col], Entry{Col: i, Coef: e.Coef})
		}
	}

	for j, c := range m.Cols {
		sense := LE
		if !nonneg[j] {
			sense = EQ
		}
		if len(byCol[j]) == 0 && c.Cost.IsConstant() {
			// 0 ≤ c_j holds or the primal is unbounded along x_j.
			if (sense == LE && c.Cost.Const < 0) || (sense == EQ && c.Cost.Const != 0) {
				return nil, fmt.Errorf("%w: column %s is unbounded in %s", ErrNotDualizable, c.Name, m.Name)
			}
			continue
		}
		d.AddRow(c.Name, sense, c.Cost, byCol[j]...)
	}
	return d, nil
}
