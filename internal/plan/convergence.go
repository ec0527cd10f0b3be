package plan

import (
	"encoding/json"
	"log/slog"
	"math"
	"time"
)

// State is the position of a loop in its solve cycle.
type State int

const (
	StateInit State = iota
	StateSolve
	StateCheck
	StateRefine
	StateConverged
	StateCapReached
	StateAbort
)

func (s State) String() string {
	return [...]string{"init", "solve", "check", "refine", "converged", "cap_reached", "abort"}[s]
}

// BoundSample is one entry of a bound log.
type BoundSample struct {
	Level     string    `json:"level"`
	Outer     int       `json:"outer"`
	Year      int       `json:"year,omitempty"`
	Iteration int       `json:"iteration"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
	Gap       float64   `json:"gap"`
	Timestamp time.Time `json:"timestamp"`
}

type boundJSON struct {
	Level     string    `json:"level"`
	Outer     int       `json:"outer"`
	Year      int       `json:"year,omitempty"`
	Iteration int       `json:"iteration"`
	Lower     *float64  `json:"lower"`
	Upper     *float64  `json:"upper"`
	Gap       *float64  `json:"gap"`
	Timestamp time.Time `json:"timestamp"`
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func orInf(v *float64, sign int) float64 {
	if v == nil {
		return math.Inf(sign)
	}
	return *v
}

// MarshalJSON writes missing (infinite) bounds as null.
func (s BoundSample) MarshalJSON() ([]byte, error) {
	return json.Marshal(boundJSON{
		Level:     s.Level,
		Outer:     s.Outer,
		Year:      s.Year,
		Iteration: s.Iteration,
		Lower:     finite(s.Lower),
		Upper:     finite(s.Upper),
		Gap:       finite(s.Gap),
		Timestamp: s.Timestamp,
	})
}

// UnmarshalJSON restores null bounds as infinities.
func (s *BoundSample) UnmarshalJSON(data []byte) error {
	var b boundJSON
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*s = BoundSample{
		Level:     b.Level,
		Outer:     b.Outer,
		Year:      b.Year,
		Iteration: b.Iteration,
		Lower:     orInf(b.Lower, -1),
		Upper:     orInf(b.Upper, 1),
		Gap:       orInf(b.Gap, 1),
		Timestamp: b.Timestamp,
	}
	return nil
}

// RelativeGap returns (ub-lb)/|lb|, +Inf while either bound is missing.
func RelativeGap(lb, ub float64) float64 {
	if math.IsInf(lb, -1) || math.IsInf(ub, 1) {
		return math.Inf(1)
	}
	return (ub - lb) / math.Max(math.Abs(lb), 1e-9)
}

// spread is the symmetric gap |a-b|/min(a,b) used between the two
// alternation values.
func spread(a, b float64) float64 {
	return math.Abs(a-b) / math.Max(math.Min(math.Abs(a), math.Abs(b)), 1e-9)
}

// BoundTracker keeps a (lower, upper) bound pair with a relative-gap
// stopping rule. The outer, inner and alternation loops all use it.
type BoundTracker struct {
	level   string
	tol     float64
	lower   float64
	upper   float64
	state   State
	history []BoundSample
}

// NewBoundTracker creates a tracker with no bounds yet.
func NewBoundTracker(level string, tol float64) *BoundTracker {
	return &BoundTracker{
		level: level,
		tol:   tol,
		lower: math.Inf(-1),
		upper: math.Inf(1),
	}
}

// RaiseLower tightens the lower bound and reports whether it moved.
func (t *BoundTracker) RaiseLower(v float64) bool {
	if v > t.lower {
		t.lower = v
		return true
	}
	return false
}

// LowerUpper tightens the upper bound and reports whether it moved.
func (t *BoundTracker) LowerUpper(v float64) bool {
	if v < t.upper {
		t.upper = v
		return true
	}
	return false
}

// SetUpper replaces the upper bound with a heuristic estimate.
func (t *BoundTracker) SetUpper(v float64) { t.upper = v }

// FloorUpper raises an estimated upper bound that a certified lower bound
// has overtaken.
func (t *BoundTracker) FloorUpper() {
	if t.upper < t.lower {
		t.upper = t.lower
	}
}

// Crossed reports whether the upper bound lies below the lower bound by
// more than the relative slack.
func (t *BoundTracker) Crossed(slack float64) bool {
	if math.IsInf(t.lower, -1) || math.IsInf(t.upper, 1) {
		return false
	}
	return t.upper < t.lower-slack*math.Max(math.Abs(t.lower), 1e-9)
}

// ResetUpper drops the upper bound.
func (t *BoundTracker) ResetUpper() { t.upper = math.Inf(1) }

func (t *BoundTracker) Lower() float64 { return t.lower }
func (t *BoundTracker) Upper() float64 { return t.upper }
func (t *BoundTracker) Gap() float64   { return RelativeGap(t.lower, t.upper) }
func (t *BoundTracker) State() State   { return t.state }

// Converged reports whether the gap is below tolerance.
func (t *BoundTracker) Converged() bool { return t.Gap() < t.tol }

// Begin marks the start of a solve step.
func (t *BoundTracker) Begin() { t.state = StateSolve }

// Abort marks the loop as aborted.
func (t *BoundTracker) Abort() { t.state = StateAbort }

// Check moves the loop out of its solve step: converged when the gap
// closed, capped when iteration reached maxIter, otherwise refine.
func (t *BoundTracker) Check(iteration, maxIter int) State {
	t.state = StateCheck
	switch {
	case t.Converged():
		t.state = StateConverged
	case iteration >= maxIter:
		t.state = StateCapReached
	default:
		t.state = StateRefine
	}
	slog.Debug("Bound check",
		"level", t.level,
		"iteration", iteration,
		"lower", t.lower,
		"upper", t.upper,
		"gap", t.Gap(),
		"state", t.state.String(),
	)
	return t.state
}

// Record appends the current bounds to the history and returns the sample.
func (t *BoundTracker) Record(outer, year, iteration int) BoundSample {
	s := BoundSample{
		Level:     t.level,
		Outer:     outer,
		Year:      year,
		Iteration: iteration,
		Lower:     t.lower,
		Upper:     t.upper,
		Gap:       t.Gap(),
		Timestamp: time.Now(),
	}
	t.history = append(t.history, s)
	return s
}

// History returns a copy of the recorded samples.
func (t *BoundTracker) History() []BoundSample {
	return append([]BoundSample{}, t.history...)
}

// Reset clears bounds, state and history.
func (t *BoundTracker) Reset() {
	t.lower = math.Inf(-1)
	t.upper = math.Inf(1)
	t.state = StateInit
	t.history = nil
}
