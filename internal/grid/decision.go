package grid

import "fmt"

// CandidateKind tells which table a candidate comes from.
type CandidateKind string

const (
	KindLine    CandidateKind = "line"
	KindStorage CandidateKind = "storage"
)

// Candidate is one expansion option: a candidate line or storage unit.
type Candidate struct {
	Kind  CandidateKind
	Index int
	ID    string
	Cost  float64
}

// Candidates lists the expansion options, lines first.
func (s *System) Candidates() []Candidate {
	var out []Candidate
	for i, l := range s.Lines {
		if l.Candidate() {
			out = append(out, Candidate{Kind: KindLine, Index: i, ID: l.ID, Cost: l.InvestmentCost})
		}
	}
	for i, st := range s.Storage {
		if st.Candidate() {
			out = append(out, Candidate{Kind: KindStorage, Index: i, ID: st.ID, Cost: st.InvestmentCost})
		}
	}
	return out
}

// Decision records, per candidate and year, whether the candidate is built
// in that year. Build[c][y-1] is the build-now flag of candidate c in year y.
type Decision struct {
	Build [][]bool `json:"build"`
}

// NewDecision returns a decision that builds nothing.
func NewDecision(candidates, years int) Decision {
	d := Decision{Build: make([][]bool, candidates)}
	for c := range d.Build {
		d.Build[c] = make([]bool, years)
	}
	return d
}

// BuiltBy reports whether candidate c is in service in year y.
func (d Decision) BuiltBy(c, y int) bool {
	for t := 1; t <= y && t <= len(d.Build[c]); t++ {
		if d.Build[c][t-1] {
			return true
		}
	}
	return false
}

// BuildYear returns the year candidate c is built, or 0.
func (d Decision) BuildYear(c int) int {
	for t, on := range d.Build[c] {
		if on {
			return t + 1
		}
	}
	return 0
}

// Equal reports whether both decisions build the same candidates in the
// same years.
func (d Decision) Equal(o Decision) bool {
	if len(d.Build) != len(o.Build) {
		return false
	}
	for c := range d.Build {
		if len(d.Build[c]) != len(o.Build[c]) {
			return false
		}
		for t := range d.Build[c] {
			if d.Build[c][t] != o.Build[c][t] {
				return false
			}
		}
	}
	return true
}

// Validate checks that no candidate is built more than once.
func (d Decision) Validate() error {
	for c, years := range d.Build {
		n := 0
		for _, on := range years {
			if on {
				n++
			}
		}
		if n > 1 {
			return fmt.Errorf("candidate %d built in %d years", c, n)
		}
	}
	return nil
}

// InvestmentCost returns the discounted investment cost of d.
func (s *System) InvestmentCost(d Decision) float64 {
	total := 0.0
	for c, cand := range s.Candidates() {
		if y := d.BuildYear(c); y > 0 {
			total += s.Discount(y) * cand.Cost
		}
	}
	return total
}

// Commission is one entry of an investment schedule.
type Commission struct {
	Kind CandidateKind `json:"kind"`
	ID   string        `json:"id"`
	Year int           `json:"year"`
	Cost float64       `json:"cost"`
}

// Schedule lists the candidates d builds with their build year.
func (s *System) Schedule(d Decision) []Commission {
	var out []Commission
	for c, cand := range s.Candidates() {
		if y := d.BuildYear(c); y > 0 {
			out = append(out, Commission{Kind: cand.Kind, ID: cand.ID, Year: y, Cost: cand.Cost})
		}
	}
	return out
}
