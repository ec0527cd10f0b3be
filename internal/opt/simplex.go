package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	golp "gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/cwbudde/arotnep/internal/lp"
)

const (
	intTol   = 1e-6
	fixedTol = 1e-12
	rankTol  = 1e-9
	checkTol = 1e-6
	feasTol  = 1e-9

	penaltyStart = 1e3
	penaltyStep  = 1e2
	penaltyMax   = 1e7
)

// Simplex is a pure-Go oracle: gonum's simplex method for LPs and a
// depth-first branch and bound on top of it for MILPs. It reports no duals
// and suits small models; large cases belong on the HiGHS backend.
type Simplex struct {
	// Tol is handed to the simplex iterations.
	Tol float64

	// MaxNodes bounds the branch-and-bound tree.
	MaxNodes int
}

// NewSimplex returns a simplex oracle with default limits.
func NewSimplex() *Simplex {
	return &Simplex{Tol: 1e-10, MaxNodes: 20000}
}

type bbNode struct {
	lo, hi []float64
}

// Solve implements Oracle.
func (s *Simplex) Solve(ctx context.Context, m *lp.Model, opts Options) (*Result, error) {
	if m.Parametric() {
		return nil, fmt.Errorf("simplex %s: %w", m.Name, ErrParametric)
	}
	sign := 1.0
	if m.Sense == lp.Maximize {
		sign = -1
	}

	lo := make([]float64, len(m.Cols))
	hi := make([]float64, len(m.Cols))
	for j, c := range m.Cols {
		lo[j], hi[j] = c.Lower, c.Upper
		if c.Integer {
			lo[j], hi[j] = math.Ceil(c.Lower-intTol), math.Floor(c.Upper+intTol)
		}
	}

	if m.Integers() == 0 {
		obj, x, status, err := s.relax(m, lo, hi, sign)
		if err != nil {
			return nil, err
		}
		if status != StatusOptimal {
			return &Result{Status: status}, nil
		}
		return &Result{Status: StatusOptimal, Objective: sign * obj, Primal: x}, nil
	}

	var deadline time.Time
	if opts.TimeLimit > 0 {
		deadline = time.Now().Add(opts.TimeLimit)
	}

	best := math.Inf(1)
	var bestX []float64
	stack := NewStack[bbNode]()
	stack.Push(bbNode{lo: lo, hi: hi})

	nodes := 0
	limit := StatusOptimal
	for stack.Size() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			limit = StatusTimeLimit
			break
		}
		if nodes >= s.MaxNodes {
			limit = StatusIterationLimit
			break
		}
		node := stack.Pop()
		nodes++

		obj, x, status, err := s.relax(m, node.lo, node.hi, sign)
		if err != nil {
			return nil, err
		}
		switch status {
		case StatusInfeasible:
			continue
		case StatusUnbounded:
			return &Result{Status: StatusUnbounded}, nil
		}
		if bestX != nil && obj >= best-opts.RelativeGap*math.Abs(best)-1e-9 {
			continue
		}

		branch, frac := -1, 0.0
		for j, c := range m.Cols {
			if !c.Integer {
				continue
			}
			f := math.Abs(x[j] - math.Round(x[j]))
			if f > intTol && f > frac {
				branch, frac = j, f
			}
		}
		if branch < 0 {
			for j, c := range m.Cols {
				if c.Integer {
					x[j] = math.Round(x[j])
				}
			}
			best, bestX = obj, x
			continue
		}

		down := bbNode{lo: append([]float64(nil), node.lo...), hi: append([]float64(nil), node.hi...)}
		down.hi[branch] = math.Floor(x[branch])
		up := bbNode{lo: append([]float64(nil), node.lo...), hi: append([]float64(nil), node.hi...)}
		up.lo[branch] = math.Ceil(x[branch])
		// Explore the side nearer the relaxation first.
		if x[branch]-math.Floor(x[branch]) < 0.5 {
			stack.Push(up)
			stack.Push(down)
		} else {
			stack.Push(down)
			stack.Push(up)
		}
	}

	slog.Debug("Branch and bound finished",
		"model", m.Name,
		"nodes", nodes,
		"incumbent", sign*best,
	)
	if bestX == nil {
		if limit != StatusOptimal {
			return &Result{Status: limit}, nil
		}
		return &Result{Status: StatusInfeasible}, nil
	}
	return &Result{Status: limit, Objective: sign * best, Primal: bestX}, nil
}

// stdVar maps a model column onto standard-form variables:
// x = shift + dir·x[pos] - x[neg].
type stdVar struct {
	shift    float64
	dir      float64
	pos, neg int
}

// stdRow is a model row over standard-form variables.
type stdRow struct {
	coef  map[int]float64
	rhs   float64
	sense lp.RowSense
}

// relax solves the LP relaxation of m within the given column bounds and
// returns sign times the model objective.
func (s *Simplex) relax(m *lp.Model, lo, hi []float64, sign float64) (obj float64, x []float64, status Status, err error) {
	vars := make([]stdVar, len(m.Cols))
	nStd := 0
	type boundRow struct {
		v   int
		rhs float64
	}
	var ubRows []boundRow
	for j := range m.Cols {
		l, u := lo[j], hi[j]
		switch {
		case l > u+fixedTol:
			return 0, nil, StatusInfeasible, nil
		case !math.IsInf(l, -1) && math.Abs(u-l) <= fixedTol:
			vars[j] = stdVar{shift: l, pos: -1, neg: -1}
		case !math.IsInf(l, -1):
			vars[j] = stdVar{shift: l, dir: 1, pos: nStd, neg: -1}
			nStd++
			if !math.IsInf(u, 1) {
				ubRows = append(ubRows, boundRow{v: vars[j].pos, rhs: u - l})
			}
		case !math.IsInf(u, 1):
			vars[j] = stdVar{shift: u, dir: -1, pos: nStd, neg: -1}
			nStd++
		default:
			vars[j] = stdVar{dir: 1, pos: nStd, neg: nStd + 1}
			nStd += 2
		}
	}

	rows := make([]stdRow, 0, len(m.Rows)+len(ubRows))
	for _, r := range m.Rows {
		sr := stdRow{coef: make(map[int]float64, len(r.Entries)), rhs: r.RHS.Const, sense: r.Sense}
		for _, e := range r.Entries {
			v := vars[e.Col]
			sr.rhs -= e.Coef * v.shift
			if v.pos >= 0 {
				sr.coef[v.pos] += e.Coef * v.dir
			}
			if v.neg >= 0 {
				sr.coef[v.neg] -= e.Coef
			}
		}
		rows = append(rows, sr)
	}
	for _, br := range ubRows {
		rows = append(rows, stdRow{coef: map[int]float64{br.v: 1}, rhs: br.rhs, sense: lp.LE})
	}

	cStd := make([]float64, nStd)
	for j, c := range m.Cols {
		v := vars[j]
		cost := sign * c.Cost.Const
		if v.pos >= 0 {
			cStd[v.pos] += cost * v.dir
		}
		if v.neg >= 0 {
			cStd[v.neg] -= cost
		}
	}

	// Columns absent from every row sit at zero or make the LP unbounded.
	used := make([]bool, nStd)
	for _, r := range rows {
		for k, a := range r.coef {
			if a != 0 {
				used[k] = true
			}
		}
	}
	remap := make([]int, nStd)
	n := 0
	for k := range remap {
		if !used[k] {
			if cStd[k] < 0 {
				return 0, nil, StatusUnbounded, nil
			}
			remap[k] = -1
			continue
		}
		remap[k] = n
		n++
	}

	// Rows without structural entries are checked directly. Dependent
	// equalities are set aside and verified after the solve.
	var dense []stdRow
	var dropped []int
	var basis [][]float64
	for i, r := range rows {
		coef := make(map[int]float64, len(r.coef))
		row := make([]float64, n)
		for k, a := range r.coef {
			if a != 0 && remap[k] >= 0 {
				coef[remap[k]] = a
				row[remap[k]] = a
			}
		}
		if len(coef) == 0 {
			if !rowHolds(0, r.sense, r.rhs) {
				return 0, nil, StatusInfeasible, nil
			}
			continue
		}
		if r.sense == lp.EQ && !independent(&basis, row) {
			dropped = append(dropped, i)
			continue
		}
		dense = append(dense, stdRow{coef: coef, rhs: r.rhs, sense: r.sense})
	}

	var optX []float64
	if len(dense) > 0 {
		std := make([]float64, n)
		for k, to := range remap {
			if to >= 0 {
				std[to] = cStd[k]
			}
		}
		optX, status, err = s.solveRows(std, dense)
		if err != nil {
			return 0, nil, StatusUnknown, fmt.Errorf("simplex %s: %w", m.Name, err)
		}
		if status != StatusOptimal {
			return 0, nil, status, nil
		}
	}

	xs := make([]float64, nStd)
	for k, to := range remap {
		if to >= 0 && optX != nil {
			xs[k] = optX[to]
		}
	}
	x = make([]float64, len(m.Cols))
	for j, v := range vars {
		x[j] = v.shift
		if v.pos >= 0 {
			x[j] += v.dir * xs[v.pos]
		}
		if v.neg >= 0 {
			x[j] -= xs[v.neg]
		}
	}

	for _, i := range dropped {
		act := 0.0
		for k, a := range rows[i].coef {
			act += a * xs[k]
		}
		if math.Abs(act-rows[i].rhs) > checkTol*math.Max(1, math.Abs(rows[i].rhs)) {
			return 0, nil, StatusInfeasible, nil
		}
	}

	obj = sign * m.Offset.Const
	for j, c := range m.Cols {
		obj += sign * c.Cost.Const * x[j]
	}
	return obj, x, StatusOptimal, nil
}

// solveRows minimizes c'x over x ≥ 0 subject to rows. Every row is scaled
// to a largest coefficient of one and oriented to a non-negative right-hand
// side, so an identity start basis exists: the slack of a ≤ row, otherwise
// an artificial column. Artificials are priced with a penalty that grows
// until none is left in the solution; if that never happens a pure phase-one
// solve decides between infeasibility and unboundedness.
func (s *Simplex) solveRows(c []float64, rows []stdRow) ([]float64, Status, error) {
	n, m := len(c), len(rows)
	slackSign := make([]float64, m)
	scale := make([]float64, m)
	slacks, arts := 0, 0
	for i, r := range rows {
		big := 0.0
		for _, a := range r.coef {
			big = math.Max(big, math.Abs(a))
		}
		switch r.sense {
		case lp.LE:
			slackSign[i] = 1
		case lp.GE:
			slackSign[i] = -1
		}
		scale[i] = 1 / big
		if r.rhs < 0 || (r.rhs == 0 && slackSign[i] < 0) {
			scale[i] = -scale[i]
			slackSign[i] = -slackSign[i]
		}
		if slackSign[i] != 0 {
			slacks++
		}
		if slackSign[i] <= 0 {
			arts++
		}
	}

	width := n + slacks + arts
	A := mat.NewDense(m, width, nil)
	b := make([]float64, m)
	start := make([]int, m)
	slack, art := n, n+slacks
	for i, r := range rows {
		for k, a := range r.coef {
			A.Set(i, k, a*scale[i])
		}
		b[i] = r.rhs * scale[i]
		if slackSign[i] != 0 {
			A.Set(i, slack, slackSign[i])
			start[i] = slack
			slack++
		}
		if slackSign[i] <= 0 {
			A.Set(i, art, 1)
			start[i] = art
			art++
		}
	}

	cost := make([]float64, width)
	norm := floats.Norm(c, math.Inf(1))
	if norm == 0 {
		norm = 1
	}
	for k, v := range c {
		cost[k] = v / norm
	}
	if arts == 0 {
		_, x, err := solveStandard(cost, A, b, s.Tol, start)
		if errors.Is(err, golp.ErrUnbounded) {
			return nil, StatusUnbounded, nil
		}
		if err != nil {
			return nil, StatusUnknown, err
		}
		return x[:n], StatusOptimal, nil
	}

	artCost := cost[n+slacks:]
	residual := feasTol * math.Max(1, floats.Norm(b, math.Inf(1)))
	unbounded := false
	for weight := penaltyStart; weight <= penaltyMax; weight *= penaltyStep {
		for k := range artCost {
			artCost[k] = weight
		}
		_, x, err := solveStandard(cost, A, b, math.Max(s.Tol, weight*1e-12), start)
		if errors.Is(err, golp.ErrUnbounded) {
			unbounded = true
			break
		}
		if err != nil {
			return nil, StatusUnknown, err
		}
		if floats.Sum(x[n+slacks:]) <= residual {
			return x[:n], StatusOptimal, nil
		}
	}

	for k := range cost {
		cost[k] = 0
	}
	for k := range artCost {
		artCost[k] = 1
	}
	_, x, err := solveStandard(cost, A, b, s.Tol, start)
	if err != nil {
		return nil, StatusUnknown, fmt.Errorf("phase one: %w", err)
	}
	if floats.Sum(x[n+slacks:]) > residual {
		return nil, StatusInfeasible, nil
	}
	if unbounded {
		return nil, StatusUnbounded, nil
	}
	return nil, StatusUnknown, fmt.Errorf("artificial columns still basic at penalty %g", penaltyMax)
}

// solveStandard wraps golp.Simplex, which panics on malformed input.
func solveStandard(c []float64, A mat.Matrix, b []float64, tol float64, basic []int) (f float64, x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gonum simplex: %v", r)
		}
	}()
	return golp.Simplex(c, A, b, tol, basic)
}

// independent reports whether row is linearly independent of the rows in
// basis and, if so, adds its orthonormalized residual to basis.
func independent(basis *[][]float64, row []float64) bool {
	v := append([]float64(nil), row...)
	for _, q := range *basis {
		floats.AddScaled(v, -floats.Dot(q, v), q)
	}
	norm := floats.Norm(v, 2)
	if norm <= rankTol*math.Max(1, floats.Norm(row, 2)) {
		return false
	}
	floats.Scale(1/norm, v)
	*basis = append(*basis, v)
	return true
}

func rowHolds(act float64, sense lp.RowSense, rhs float64) bool {
	tol := checkTol * math.Max(1, math.Abs(rhs))
	switch sense {
	case lp.LE:
		return act <= rhs+tol
	case lp.GE:
		return act >= rhs-tol
	}
	return math.Abs(act-rhs) <= tol
}
