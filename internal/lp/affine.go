// Package lp holds linear models whose right-hand sides and costs may be
// affine in a vector of uncertainty indicators z.
package lp

import "sort"

// Term is one linear component Coef·z[Index] of an Affine value.
type Term struct {
	Index int
	Coef  float64
}

// Affine is Const + Σ Terms. Terms are kept sorted by index with no zero
// coefficients and no duplicate indices.
type Affine struct {
	Const float64
	Terms []Term
}

// Constant returns the affine value with no z dependence.
func Constant(v float64) Affine { return Affine{Const: v} }

// With returns a + coef·z[index].
func (a Affine) With(index int, coef float64) Affine {
	if coef == 0 {
		return a
	}
	return a.Add(Affine{Terms: []Term{{Index: index, Coef: coef}}})
}

// Add returns a + b.
func (a Affine) Add(b Affine) Affine {
	out := Affine{Const: a.Const + b.Const}
	if len(a.Terms)+len(b.Terms) == 0 {
		return out
	}
	acc := make(map[int]float64, len(a.Terms)+len(b.Terms))
	for _, t := range a.Terms {
		acc[t.Index] += t.Coef
	}
	for _, t := range b.Terms {
		acc[t.Index] += t.Coef
	}
	for idx, c := range acc {
		if c != 0 {
			out.Terms = append(out.Terms, Term{Index: idx, Coef: c})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool { return out.Terms[i].Index < out.Terms[j].Index })
	return out
}

// Scale returns k·a.
func (a Affine) Scale(k float64) Affine {
	if k == 0 {
		return Affine{}
	}
	out := Affine{Const: k * a.Const}
	if len(a.Terms) > 0 {
		out.Terms = make([]Term, len(a.Terms))
		for i, t := range a.Terms {
			out.Terms[i] = Term{Index: t.Index, Coef: k * t.Coef}
		}
	}
	return out
}

// Eval returns the value of a at z. Indices beyond len(z) read as zero.
func (a Affine) Eval(z []float64) float64 {
	v := a.Const
	for _, t := range a.Terms {
		if t.Index < len(z) {
			v += t.Coef * z[t.Index]
		}
	}
	return v
}

// IsConstant reports whether a has no z dependence.
func (a Affine) IsConstant() bool { return len(a.Terms) == 0 }

// Coef returns the coefficient of z[index].
func (a Affine) Coef(index int) float64 {
	for _, t := range a.Terms {
		if t.Index == index {
			return t.Coef
		}
	}
	return 0
}
