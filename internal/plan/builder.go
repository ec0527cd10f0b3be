package plan

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/arotnep/internal/grid"
	"github.com/cwbudde/arotnep/internal/lp"
)

// errBilinear is returned when a context would multiply a symbolic
// uncertainty by a binary column.
var errBilinear = errors.New("uncertain coefficient on a binary column")

// Context tells the builder which quantities of a dispatch block are fixed
// and which are model columns. It is never mutated by the builder.
type Context struct {
	Year int

	// Decision fixes the investment plan. When nil, BuildCols holds one
	// built-so-far column per candidate.
	Decision  *grid.Decision
	BuildCols []int

	// Point fixes the realization. When nil, right-hand sides and costs stay
	// affine in the uncertainty indicators.
	Point *grid.Realization

	// Policy fixes commitment and storage-mode binaries. When nil they
	// become binary columns.
	Policy Policy

	// Prefix namespaces column names so several blocks share one model.
	Prefix string
}

// Block is what Dispatch adds to a model: the operating cost of the block
// and the binary columns it created.
type Block struct {
	Cost     []CostTerm
	Constant lp.Affine

	// Binaries holds the policy columns by unprefixed name.
	Binaries map[string]int
}

// CostTerm is an operating-cost coefficient of one column.
type CostTerm struct {
	Col  int
	Coef lp.Affine
}

// SetObjective adds k times the block cost to the model objective.
func (b *Block) SetObjective(m *lp.Model, k float64) {
	for _, t := range b.Cost {
		m.AddCost(t.Col, t.Coef.Scale(k))
	}
	m.Offset = m.Offset.Add(b.Constant.Scale(k))
}

// Epigraph adds the row rho ≥ cost of the block. The block must have been
// built at a fixed point.
func (b *Block) Epigraph(m *lp.Model, name string, rho int) error {
	entries := []lp.Entry{{Col: rho, Coef: 1}}
	for _, t := range b.Cost {
		if !t.Coef.IsConstant() {
			return fmt.Errorf("epigraph %s: %w", name, errBilinear)
		}
		entries = append(entries, lp.Entry{Col: t.Col, Coef: -t.Coef.Const})
	}
	if !b.Constant.IsConstant() {
		return fmt.Errorf("epigraph %s: %w", name, errBilinear)
	}
	m.AddRow(name, lp.GE, b.Constant, entries...)
	return nil
}

// Policy reads the block's binaries from a solution.
func (b *Block) Policy(x []float64) Policy {
	p := make(Policy, len(b.Binaries))
	for name, col := range b.Binaries {
		p[name] = x[col] > 0.5
	}
	return p
}

// Builder emits the dispatch constraints of one year. All model variants
// (evaluation subproblem, alternation LPs, outer master blocks) come from
// the single template in Dispatch.
type Builder struct {
	sys *grid.System
	unc *grid.Uncertainty

	candidate map[grid.CandidateKind]map[int]int
	loadQ     []int
	costQ     []int
	capQ      []int
	renQ      []int
}

// NewBuilder indexes sys for repeated block construction.
func NewBuilder(sys *grid.System, unc *grid.Uncertainty) *Builder {
	b := &Builder{
		sys: sys,
		unc: unc,
		candidate: map[grid.CandidateKind]map[int]int{
			grid.KindLine:    {},
			grid.KindStorage: {},
		},
	}
	for c, cand := range sys.Candidates() {
		b.candidate[cand.Kind][cand.Index] = c
	}
	for i := range sys.Loads {
		b.loadQ = append(b.loadQ, unc.Index(grid.ClassDemand, i))
	}
	for i := range sys.Generators {
		b.costQ = append(b.costQ, unc.Index(grid.ClassGenCost, i))
		b.capQ = append(b.capQ, unc.Index(grid.ClassGenCapacity, i))
	}
	for i, r := range sys.Renewables {
		class := grid.ClassWind
		if r.Technology == grid.Solar {
			class = grid.ClassSolar
		}
		b.renQ = append(b.renQ, unc.Index(class, i))
	}
	return b
}

// DispatchModel returns a stand-alone minimization of the block cost.
func (b *Builder) DispatchModel(name string, ctx Context) (*lp.Model, *Block, error) {
	m := lp.New(name, lp.Minimize)
	blk, err := b.Dispatch(m, ctx)
	if err != nil {
		return nil, nil, err
	}
	blk.SetObjective(m, 1)
	return m, blk, nil
}

// switchVar is a 0/1 quantity that is either fixed or a model column.
type switchVar struct {
	fixed float64
	col   int
}

func fixedSwitch(v float64) switchVar { return switchVar{fixed: v, col: -1} }
func columnSwitch(c int) switchVar    { return switchVar{col: c} }

func (s switchVar) isFixed() bool { return s.col < 0 }

// row accumulates one constraint; switch terms with fixed values move to the
// right-hand side.
type row struct {
	entries []lp.Entry
	rhs     lp.Affine
	err     error
}

func (r *row) add(col int, coef float64) *row {
	r.entries = append(r.entries, lp.Entry{Col: col, Coef: coef})
	return r
}

func (r *row) addSwitch(s switchVar, coef lp.Affine) *row {
	if s.isFixed() {
		r.rhs = r.rhs.Add(coef.Scale(-s.fixed))
		return r
	}
	if !coef.IsConstant() {
		r.err = errBilinear
		return r
	}
	return r.add(s.col, coef.Const)
}

func (r *row) emit(m *lp.Model, name string, sense lp.RowSense) error {
	if r.err != nil {
		return fmt.Errorf("row %s: %w", name, r.err)
	}
	if len(r.entries) == 0 && r.rhs.IsConstant() {
		ok := (sense == lp.LE && r.rhs.Const >= 0) ||
			(sense == lp.GE && r.rhs.Const <= 0) ||
			(sense == lp.EQ && r.rhs.Const == 0)
		if ok {
			return nil
		}
	}
	m.AddRow(name, sense, r.rhs, r.entries...)
	return nil
}

func newRow(rhs lp.Affine) *row { return &row{rhs: rhs} }

// uncertain returns quantity q of year y: a constant at a fixed point,
// otherwise forecast plus deviation times the indicator.
func (b *Builder) uncertain(ctx Context, q int) lp.Affine {
	if ctx.Point != nil {
		return lp.Constant(b.unc.Value(q, ctx.Year, *ctx.Point))
	}
	return lp.Constant(b.unc.Base(q, ctx.Year)).With(q, b.unc.Deviation(q, ctx.Year))
}

func (b *Builder) built(ctx Context, kind grid.CandidateKind, index int) switchVar {
	c, ok := b.candidate[kind][index]
	if !ok {
		return fixedSwitch(1)
	}
	if ctx.Decision != nil {
		if ctx.Decision.BuiltBy(c, ctx.Year) {
			return fixedSwitch(1)
		}
		return fixedSwitch(0)
	}
	return columnSwitch(ctx.BuildCols[c])
}

func (b *Builder) binary(m *lp.Model, ctx Context, blk *Block, name string) switchVar {
	if ctx.Policy != nil {
		if ctx.Policy[name] {
			return fixedSwitch(1)
		}
		return fixedSwitch(0)
	}
	col := m.AddBinary(ctx.Prefix+name, lp.Affine{})
	blk.Binaries[name] = col
	return columnSwitch(col)
}

// Dispatch appends the operating block of ctx.Year to m.
func (b *Builder) Dispatch(m *lp.Model, ctx Context) (*Block, error) {
	if ctx.Decision == nil && len(ctx.BuildCols) != len(b.sys.Candidates()) {
		return nil, fmt.Errorf("dispatch year %d: need %d build columns, got %d",
			ctx.Year, len(b.sys.Candidates()), len(ctx.BuildCols))
	}
	sys := b.sys
	blk := &Block{Binaries: make(map[string]int)}
	inf := math.Inf(1)
	col := func(name string, lower float64) int {
		return m.AddColumn(ctx.Prefix+name, lower, inf, lp.Affine{})
	}
	rowName := func(format string, args ...any) string {
		return ctx.Prefix + fmt.Sprintf(format, args...)
	}
	cost := func(c int, coef lp.Affine) {
		blk.Cost = append(blk.Cost, CostTerm{Col: c, Coef: coef})
	}

	lineBuilt := make([]switchVar, len(sys.Lines))
	for l := range sys.Lines {
		lineBuilt[l] = b.built(ctx, grid.KindLine, l)
	}
	storeBuilt := make([]switchVar, len(sys.Storage))
	for s := range sys.Storage {
		storeBuilt[s] = b.built(ctx, grid.KindStorage, s)
	}

	for _, day := range sys.Days {
		prevGen := make([]int, len(sys.Generators))
		prevEnergy := make([]int, len(sys.Storage))
		for h, period := range day.Periods {
			tag := fmt.Sprintf("%s,%d", day.ID, h+1)
			w := day.Weight * period.Duration

			balance := make(map[string]*row, len(sys.Buses))
			for _, bus := range sys.Buses {
				balance[bus.ID] = newRow(lp.Affine{})
			}

			for g, gen := range sys.Generators {
				pG := col(fmt.Sprintf("pG[%s,%s]", gen.ID, tag), 0)
				u := b.binary(m, ctx, blk, fmt.Sprintf("uG[%s,%s]", gen.ID, tag))
				cost(pG, b.uncertain(ctx, b.costQ[g]).Scale(w))
				balance[gen.Bus].add(pG, 1)

				capacity := b.uncertain(ctx, b.capQ[g])
				if err := newRow(lp.Affine{}).add(pG, 1).addSwitch(u, capacity.Scale(-1)).
					emit(m, rowName("gmax[%s,%s]", gen.ID, tag), lp.LE); err != nil {
					return nil, err
				}
				if gen.MinOutput > 0 {
					if err := newRow(lp.Affine{}).add(pG, 1).addSwitch(u, lp.Constant(-gen.MinOutput)).
						emit(m, rowName("gmin[%s,%s]", gen.ID, tag), lp.GE); err != nil {
						return nil, err
					}
				}
				if h > 0 {
					if gen.RampUp != nil {
						m.AddRow(rowName("rampup[%s,%s]", gen.ID, tag), lp.LE, lp.Constant(*gen.RampUp),
							lp.Entry{Col: pG, Coef: 1}, lp.Entry{Col: prevGen[g], Coef: -1})
					}
					if gen.RampDown != nil {
						m.AddRow(rowName("rampdown[%s,%s]", gen.ID, tag), lp.GE, lp.Constant(-*gen.RampDown),
							lp.Entry{Col: pG, Coef: 1}, lp.Entry{Col: prevGen[g], Coef: -1})
					}
				}
				prevGen[g] = pG
			}

			for r, ren := range sys.Renewables {
				pR := col(fmt.Sprintf("pR[%s,%s]", ren.ID, tag), 0)
				avail := b.uncertain(ctx, b.renQ[r]).Scale(period.CapacityFactor(ren.Zone))
				// Spillage cost w·CR·(avail - pR).
				cost(pR, lp.Constant(-w*ren.SpillageCost))
				blk.Constant = blk.Constant.Add(avail.Scale(w * ren.SpillageCost))
				balance[ren.Bus].add(pR, 1)
				m.AddRow(rowName("avail[%s,%s]", ren.ID, tag), lp.LE, avail, lp.Entry{Col: pR, Coef: 1})
			}

			for d, load := range sys.Loads {
				demand := b.uncertain(ctx, b.loadQ[d]).Scale(period.DemandFactor(load.Zone))
				balance[load.Bus].rhs = balance[load.Bus].rhs.Add(demand)
				pLS := col(fmt.Sprintf("pLS[%s,%s]", load.ID, tag), 0)
				cost(pLS, lp.Constant(w*load.SheddingCost))
				balance[load.Bus].add(pLS, 1)
				limit := demand
				if load.Critical {
					limit = lp.Affine{}
				}
				m.AddRow(rowName("shed[%s,%s]", load.ID, tag), lp.LE, limit, lp.Entry{Col: pLS, Coef: 1})
			}

			theta := make(map[string]int, len(sys.Buses))
			for _, bus := range sys.Buses {
				theta[bus.ID] = col(fmt.Sprintf("theta[%s,%s]", bus.ID, tag), -inf)
			}
			m.AddRow(rowName("ref[%s]", tag), lp.EQ, lp.Affine{}, lp.Entry{Col: theta[sys.Reference()], Coef: 1})

			for l, line := range sys.Lines {
				pL := col(fmt.Sprintf("pL[%s,%s]", line.ID, tag), -inf)
				balance[line.From].add(pL, -1)
				balance[line.To].add(pL, 1)

				beta := lineBuilt[l]
				susceptance := 1 / line.Reactance
				flow := []lp.Entry{
					{Col: pL, Coef: 1},
					{Col: theta[line.From], Coef: -susceptance},
					{Col: theta[line.To], Coef: susceptance},
				}
				switch {
				case !beta.isFixed():
					bigM := sys.Settings.BigM
					m.AddRow(rowName("flowhi[%s,%s]", line.ID, tag), lp.LE, lp.Constant(bigM),
						append(flow, lp.Entry{Col: beta.col, Coef: bigM})...)
					m.AddRow(rowName("flowlo[%s,%s]", line.ID, tag), lp.GE, lp.Constant(-bigM),
						append(flow, lp.Entry{Col: beta.col, Coef: -bigM})...)
				case beta.fixed > 0:
					m.AddRow(rowName("flow[%s,%s]", line.ID, tag), lp.EQ, lp.Affine{}, flow...)
				}
				if err := newRow(lp.Affine{}).add(pL, 1).addSwitch(beta, lp.Constant(-line.Capacity)).
					emit(m, rowName("caphi[%s,%s]", line.ID, tag), lp.LE); err != nil {
					return nil, err
				}
				if err := newRow(lp.Affine{}).add(pL, 1).addSwitch(beta, lp.Constant(line.Capacity)).
					emit(m, rowName("caplo[%s,%s]", line.ID, tag), lp.GE); err != nil {
					return nil, err
				}
			}

			for s, st := range sys.Storage {
				if err := b.storagePeriod(m, ctx, blk, storageStep{
					unit:   st,
					built:  storeBuilt[s],
					tag:    tag,
					tau:    period.Duration,
					first:  h == 0,
					last:   h == len(day.Periods)-1,
					prev:   prevEnergy[s],
					energy: &prevEnergy[s],
				}, balance[st.Bus]); err != nil {
					return nil, err
				}
			}

			for _, bus := range sys.Buses {
				if err := balance[bus.ID].emit(m, rowName("bal[%s,%s]", bus.ID, tag), lp.EQ); err != nil {
					return nil, err
				}
			}
		}
	}
	return blk, nil
}

type storageStep struct {
	unit   grid.Storage
	built  switchVar
	tag    string
	tau    float64
	first  bool
	last   bool
	prev   int
	energy *int
}

// storagePeriod adds charge, discharge and state-of-charge of one unit in
// one period. Every capacity is scaled by the unit's built switch; charge
// and discharge are exclusive through the mode binary.
func (b *Builder) storagePeriod(m *lp.Model, ctx Context, blk *Block, step storageStep, balance *row) error {
	st, beta := step.unit, step.built
	inf := math.Inf(1)
	name := func(kind string) string { return fmt.Sprintf("%s[%s,%s]", kind, st.ID, step.tag) }

	pSC := m.AddColumn(ctx.Prefix+name("pSC"), 0, inf, lp.Affine{})
	pSD := m.AddColumn(ctx.Prefix+name("pSD"), 0, inf, lp.Affine{})
	eS := m.AddColumn(ctx.Prefix+name("eS"), 0, inf, lp.Affine{})
	mode := b.binary(m, ctx, blk, name("uS"))
	balance.add(pSD, 1).add(pSC, -1)

	soc := newRow(lp.Affine{}).
		add(eS, 1).
		add(pSC, -step.tau*st.ChargeEfficiency).
		add(pSD, step.tau/st.DischargeEfficiency)
	if step.first {
		soc.addSwitch(beta, lp.Constant(-st.EnergyInitial))
	} else {
		soc.add(step.prev, -1)
	}
	if err := soc.emit(m, ctx.Prefix+name("soc"), lp.EQ); err != nil {
		return err
	}
	*step.energy = eS

	if step.last {
		if err := newRow(lp.Affine{}).add(eS, 1).addSwitch(beta, lp.Constant(-st.EnergyInitial)).
			emit(m, ctx.Prefix+name("close"), lp.GE); err != nil {
			return err
		}
	}
	if err := newRow(lp.Affine{}).add(eS, 1).addSwitch(beta, lp.Constant(-st.EnergyMax)).
		emit(m, ctx.Prefix+name("emax"), lp.LE); err != nil {
		return err
	}
	if st.EnergyMin > 0 {
		if err := newRow(lp.Affine{}).add(eS, 1).addSwitch(beta, lp.Constant(-st.EnergyMin)).
			emit(m, ctx.Prefix+name("emin"), lp.GE); err != nil {
			return err
		}
	}

	// pSC ≤ PSC·β·u and pSD ≤ PSD·β·(1-u). When both switches are columns
	// the product splits into one row per switch.
	charge := newRow(lp.Affine{}).add(pSC, 1)
	discharge := newRow(lp.Affine{}).add(pSD, 1)
	switch {
	case beta.isFixed():
		charge.addSwitch(mode, lp.Constant(-st.ChargeCapacity*beta.fixed))
		discharge.rhs = lp.Constant(st.DischargeCapacity * beta.fixed)
		discharge.addSwitch(mode, lp.Constant(st.DischargeCapacity*beta.fixed))
	case mode.isFixed():
		charge.addSwitch(beta, lp.Constant(-st.ChargeCapacity*mode.fixed))
		discharge.addSwitch(beta, lp.Constant(-st.DischargeCapacity*(1-mode.fixed)))
	default:
		charge.addSwitch(mode, lp.Constant(-st.ChargeCapacity))
		discharge.rhs = lp.Constant(st.DischargeCapacity)
		discharge.addSwitch(mode, lp.Constant(st.DischargeCapacity))
		if err := newRow(lp.Affine{}).add(pSC, 1).addSwitch(beta, lp.Constant(-st.ChargeCapacity)).
			emit(m, ctx.Prefix+name("chargebuilt"), lp.LE); err != nil {
			return err
		}
		if err := newRow(lp.Affine{}).add(pSD, 1).addSwitch(beta, lp.Constant(-st.DischargeCapacity)).
			emit(m, ctx.Prefix+name("dischargebuilt"), lp.LE); err != nil {
			return err
		}
	}
	if err := charge.emit(m, ctx.Prefix+name("charge"), lp.LE); err != nil {
		return err
	}
	return discharge.emit(m, ctx.Prefix+name("discharge"), lp.LE)
}
