package grid

import (
	"fmt"
	"strings"
)

// Class groups uncertain quantities that share a budget Γ.
type Class int

const (
	ClassDemand Class = iota
	ClassGenCost
	ClassGenCapacity
	ClassSolar
	ClassWind
)

// Classes lists every uncertainty class in index order.
var Classes = []Class{ClassDemand, ClassGenCost, ClassGenCapacity, ClassSolar, ClassWind}

func (c Class) String() string {
	switch c {
	case ClassDemand:
		return "demand"
	case ClassGenCost:
		return "gen_cost"
	case ClassGenCapacity:
		return "gen_capacity"
	case ClassSolar:
		return "solar"
	case ClassWind:
		return "wind"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Quantity identifies one uncertain parameter: the element is an index into
// the table the class refers to (loads, generators or renewables).
type Quantity struct {
	Class   Class
	Element int
	ID      string
}

// Realization fixes the at-upper-bound indicator of every uncertain quantity
// for one year. Indicators are ordered like Uncertainty.Quantities.
type Realization struct {
	Year int    `json:"year"`
	At   []bool `json:"at"`
}

// Indicators returns the realization as a 0/1 vector.
func (r Realization) Indicators() []float64 {
	z := make([]float64, len(r.At))
	for i, on := range r.At {
		if on {
			z[i] = 1
		}
	}
	return z
}

// Equal reports whether both realizations set the same indicators.
func (r Realization) Equal(o Realization) bool {
	if r.Year != o.Year || len(r.At) != len(o.At) {
		return false
	}
	for i := range r.At {
		if r.At[i] != o.At[i] {
			return false
		}
	}
	return true
}

// Key renders the indicators as a compact string, e.g. "y2:0110".
func (r Realization) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "y%d:", r.Year)
	for _, on := range r.At {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Uncertainty indexes the uncertain quantities of a System and evaluates
// their yearly values. Quantities are identical for every year; only the
// forecasts and deviations evolve.
type Uncertainty struct {
	sys        *System
	quantities []Quantity
	index      map[Class][]int
}

// NewUncertainty enumerates the uncertain quantities of sys. Quantities with
// zero deviation are still listed so indices stay stable across cases.
func NewUncertainty(sys *System) *Uncertainty {
	u := &Uncertainty{sys: sys, index: make(map[Class][]int)}
	add := func(c Class, element int, id string) {
		u.index[c] = append(u.index[c], len(u.quantities))
		u.quantities = append(u.quantities, Quantity{Class: c, Element: element, ID: id})
	}
	for i, d := range sys.Loads {
		add(ClassDemand, i, d.ID)
	}
	for i, g := range sys.Generators {
		add(ClassGenCost, i, g.ID)
	}
	for i, g := range sys.Generators {
		add(ClassGenCapacity, i, g.ID)
	}
	for i, r := range sys.Renewables {
		if r.Technology == Solar {
			add(ClassSolar, i, r.ID)
		}
	}
	for i, r := range sys.Renewables {
		if r.Technology == Wind {
			add(ClassWind, i, r.ID)
		}
	}
	return u
}

// Len returns the number of uncertain quantities.
func (u *Uncertainty) Len() int { return len(u.quantities) }

// Quantities returns the quantities in index order.
func (u *Uncertainty) Quantities() []Quantity { return u.quantities }

// Members returns the quantity indices of class c.
func (u *Uncertainty) Members(c Class) []int { return u.index[c] }

// Index maps an element of class c to its quantity index, or -1.
func (u *Uncertainty) Index(c Class, element int) int {
	for _, q := range u.index[c] {
		if u.quantities[q].Element == element {
			return q
		}
	}
	return -1
}

// Budget returns Γ of class c clamped to the class size.
func (u *Uncertainty) Budget(c Class) int {
	g := u.sys.Budgets.Of(c)
	if n := len(u.index[c]); g > n {
		return n
	}
	return g
}

// Singleton reports whether the uncertainty set holds only the forecast.
func (u *Uncertainty) Singleton() bool {
	for _, c := range Classes {
		if u.Budget(c) > 0 {
			return false
		}
	}
	return true
}

// Forecast returns the realization with every indicator off.
func (u *Uncertainty) Forecast(y int) Realization {
	return Realization{Year: y, At: make([]bool, len(u.quantities))}
}

// Active counts the indicators of class c that r switches on.
func (u *Uncertainty) Active(r Realization, c Class) int {
	n := 0
	for _, q := range u.index[c] {
		if q < len(r.At) && r.At[q] {
			n++
		}
	}
	return n
}

// Respects reports whether r stays within every class budget.
func (u *Uncertainty) Respects(r Realization) bool {
	if len(r.At) != len(u.quantities) {
		return false
	}
	for _, c := range Classes {
		if u.Active(r, c) > u.Budget(c) {
			return false
		}
	}
	return true
}

// Base returns the forecast of quantity q in year y.
func (u *Uncertainty) Base(q, y int) float64 {
	qt := u.quantities[q]
	switch qt.Class {
	case ClassDemand:
		d := u.sys.Loads[qt.Element]
		return Grow(d.PeakForecast, d.ForecastGrowth, y)
	case ClassGenCost:
		g := u.sys.Generators[qt.Element]
		return Grow(g.CostForecast, g.CostGrowth, y)
	case ClassGenCapacity:
		g := u.sys.Generators[qt.Element]
		return Grow(g.CapacityForecast, g.CapacityGrowth, y)
	default:
		r := u.sys.Renewables[qt.Element]
		return Grow(r.CapacityForecast, r.CapacityGrowth, y)
	}
}

// Deviation returns the signed shift of quantity q in year y when its
// indicator is on: positive for demand and cost, negative for capacities.
func (u *Uncertainty) Deviation(q, y int) float64 {
	qt := u.quantities[q]
	switch qt.Class {
	case ClassDemand:
		d := u.sys.Loads[qt.Element]
		return Grow(d.PeakDeviation, d.DeviationGrowth, y)
	case ClassGenCost:
		g := u.sys.Generators[qt.Element]
		return Grow(g.CostDeviation, g.CostDeviationGrowth, y)
	case ClassGenCapacity:
		g := u.sys.Generators[qt.Element]
		return -Grow(g.CapacityDeviation, g.CapacityDeviationGrowth, y)
	default:
		r := u.sys.Renewables[qt.Element]
		return -Grow(r.CapacityDeviation, r.CapacityDeviationGrowth, y)
	}
}

// Value returns quantity q in year y under realization r.
func (u *Uncertainty) Value(q, y int, r Realization) float64 {
	v := u.Base(q, y)
	if q < len(r.At) && r.At[q] {
		v += u.Deviation(q, y)
	}
	return v
}
