package plan

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/arotnep/internal/grid"
)

func TestRelativeGap(t *testing.T) {
	tests := []struct {
		name   string
		lb, ub float64
		want   float64
	}{
		{"closed", 100, 100, 0},
		{"ten percent", 100, 110, 0.1},
		{"negative lower", -50, -25, 0.5},
		{"no upper", 100, math.Inf(1), math.Inf(1)},
		{"no lower", math.Inf(-1), 100, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RelativeGap(tt.lb, tt.ub)
			if math.IsInf(tt.want, 1) {
				assert.True(t, math.IsInf(got, 1))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestBoundTrackerStates(t *testing.T) {
	tr := NewBoundTracker("outer", 0.01)
	assert.Equal(t, StateInit, tr.State())

	tr.Begin()
	assert.Equal(t, StateSolve, tr.State())
	assert.True(t, tr.RaiseLower(90))
	assert.False(t, tr.RaiseLower(80))
	assert.True(t, tr.LowerUpper(120))
	assert.False(t, tr.LowerUpper(130))
	assert.Equal(t, StateRefine, tr.Check(1, 5))

	tr.LowerUpper(100)
	tr.RaiseLower(99.5)
	assert.Equal(t, StateConverged, tr.Check(2, 5))

	tr.ResetUpper()
	assert.True(t, math.IsInf(tr.Upper(), 1))
	assert.Equal(t, StateCapReached, tr.Check(5, 5))

	tr.SetUpper(50)
	assert.Equal(t, 50.0, tr.Upper())

	tr.Abort()
	assert.Equal(t, StateAbort, tr.State())

	tr.Record(1, 0, 1)
	require.Len(t, tr.History(), 1)
	tr.Reset()
	assert.Empty(t, tr.History())
	assert.True(t, math.IsInf(tr.Lower(), -1))
}

func TestBoundSampleJSONNullsInfinity(t *testing.T) {
	tr := NewBoundTracker("inner", 1e-4)
	tr.RaiseLower(10)
	s := tr.Record(2, 3, 4)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"upper":null`)
	assert.Contains(t, string(data), `"lower":10`)

	var back BoundSample
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 10.0, back.Lower)
	assert.True(t, math.IsInf(back.Upper, 1))
	assert.True(t, math.IsInf(back.Gap, 1))
	assert.Equal(t, 3, back.Year)
}

func TestWindowSizes(t *testing.T) {
	assert.Equal(t, []int{4}, FullHistory{}.Sizes(4))
	assert.Nil(t, FullHistory{}.Sizes(0))
	assert.Equal(t, []int{1, 2, 3}, SlidingWindow{}.Sizes(3))
	assert.Equal(t, []int{1, 2, 5}, SlidingWindow{MaxLookback: 2}.Sizes(5))
	assert.Equal(t, []int{1, 2}, SlidingWindow{MaxLookback: 4}.Sizes(2))
	assert.Empty(t, SlidingWindow{MaxLookback: 3}.Sizes(0))

	w, err := NewCutWindow(grid.WindowFull, 0)
	require.NoError(t, err)
	assert.Equal(t, grid.WindowFull, w.Name())
	_, err = NewCutWindow("random", 0)
	assert.Error(t, err)
}

func TestRelaxWindowStopsAtFirstAcceptedWindow(t *testing.T) {
	var tried []int
	solve := func(ro int) (float64, string, error) {
		tried = append(tried, ro)
		return float64(ro * 10), "ok", nil
	}

	obj, out, ro, err := relaxWindow(SlidingWindow{}, 5, func(obj float64) bool { return obj > 25 }, solve)
	require.NoError(t, err)
	assert.Equal(t, 30.0, obj)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, ro)
	assert.Equal(t, []int{1, 2, 3}, tried)

	tried = nil
	obj, _, ro, err = relaxWindow(SlidingWindow{}, 2, func(float64) bool { return false }, solve)
	require.NoError(t, err)
	assert.Equal(t, 20.0, obj)
	assert.Equal(t, 2, ro)

	// A capped window that never accepts falls back to every cut.
	tried = nil
	obj, _, ro, err = relaxWindow(SlidingWindow{MaxLookback: 2}, 6, func(float64) bool { return false }, solve)
	require.NoError(t, err)
	assert.Equal(t, 60.0, obj)
	assert.Equal(t, 6, ro)
	assert.Equal(t, []int{1, 2, 6}, tried)

	_, _, _, err = relaxWindow(FullHistory{}, 0, func(float64) bool { return true }, solve)
	assert.Error(t, err)

	boom := errors.New("boom")
	_, _, _, err = relaxWindow(FullHistory{}, 1, func(float64) bool { return true },
		func(int) (float64, string, error) { return 0, "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestWarningUnwrapsToNonConvergence(t *testing.T) {
	w := Warning{Level: "inner", Outer: 1, Year: 2, Message: "cap"}
	assert.True(t, errors.Is(w, ErrNonConvergence))
	assert.Contains(t, w.Error(), "inner loop")

	err := &SolverInfeasibleError{Stage: "evaluation", Year: 2}
	assert.ErrorIs(t, err, ErrSolverInfeasible)
	assert.Contains(t, err.Error(), "evaluation infeasible")
}
