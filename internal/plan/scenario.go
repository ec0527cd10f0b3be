package plan

import (
	"github.com/cwbudde/arotnep/internal/grid"
)

// Policy fixes the commitment and storage-mode binaries of a dispatch,
// keyed by column name.
type Policy map[string]bool

// InnerCut is one point of the inner history with the dispatch policy
// found for it. Dual is the dual witness priced at that point, when the
// alternation produced one.
type InnerCut struct {
	Iteration int              `json:"iteration"`
	Stage     string           `json:"stage"`
	Point     grid.Realization `json:"point"`
	Policy    Policy           `json:"policy"`
	Dual      []float64        `json:"dual,omitempty"`
	Value     float64          `json:"value"`
}

// YearHistory is the inner cut list of one year within one outer
// iteration. Inner loops own their history until it is published.
type YearHistory struct {
	Outer int        `json:"outer"`
	Year  int        `json:"year"`
	Cuts  []InnerCut `json:"cuts"`
}

// Append adds a cut and returns its position.
func (h *YearHistory) Append(c InnerCut) int {
	h.Cuts = append(h.Cuts, c)
	return len(h.Cuts) - 1
}

// Recent returns the n most recent cuts.
func (h *YearHistory) Recent(n int) []InnerCut {
	if n > len(h.Cuts) {
		n = len(h.Cuts)
	}
	return h.Cuts[len(h.Cuts)-n:]
}

func (h *YearHistory) Len() int { return len(h.Cuts) }

// OuterCut records one outer iteration: the decision of its master and the
// worst-case realization found for every year.
type OuterCut struct {
	Iteration  int                `json:"iteration"`
	Decision   grid.Decision      `json:"decision"`
	Scenario   []grid.Realization `json:"scenario"`
	YearCosts  []float64          `json:"yearCosts"`
	LowerBound float64            `json:"lowerBound"`
	UpperBound float64            `json:"upperBound"`
}

type historyKey struct{ outer, year int }

// ScenarioStore is the append-only record of realizations shared by the
// nested loops. The outer master reads its scenarios from here; inner
// histories are published once their loop finishes.
type ScenarioStore struct {
	scenarios [][]grid.Realization
	outer     []OuterCut
	inner     map[historyKey]*YearHistory
}

// NewScenarioStore seeds the store with the forecast scenario.
func NewScenarioStore(forecast []grid.Realization) *ScenarioStore {
	return &ScenarioStore{
		scenarios: [][]grid.Realization{forecast},
		inner:     make(map[historyKey]*YearHistory),
	}
}

// AppendOuter records an outer iteration and adds its scenario for the
// next masters.
func (s *ScenarioStore) AppendOuter(c OuterCut) {
	s.outer = append(s.outer, c)
	s.scenarios = append(s.scenarios, c.Scenario)
}

// Scenarios returns the number of master scenarios.
func (s *ScenarioStore) Scenarios() int { return len(s.scenarios) }

// RecentScenarios returns the n most recent master scenarios.
func (s *ScenarioStore) RecentScenarios(n int) [][]grid.Realization {
	if n > len(s.scenarios) {
		n = len(s.scenarios)
	}
	return s.scenarios[len(s.scenarios)-n:]
}

// Outer returns the recorded outer iterations.
func (s *ScenarioStore) Outer() []OuterCut { return append([]OuterCut{}, s.outer...) }

// Publish stores a finished inner history.
func (s *ScenarioStore) Publish(h *YearHistory) {
	s.inner[historyKey{h.Outer, h.Year}] = h
}

// Inner returns the published history of year y in outer iteration j.
func (s *ScenarioStore) Inner(j, y int) (*YearHistory, bool) {
	h, ok := s.inner[historyKey{j, y}]
	return h, ok
}
