package plan

import (
	"fmt"

	"github.com/cwbudde/arotnep/internal/grid"
)

// CutWindow decides which relaxations of a master problem are tried before
// the full one. Sizes returns, for the given number of available cuts, the
// window sizes in the order they are tried; each window holds the most
// recent cuts.
type CutWindow interface {
	Name() string
	Sizes(available int) []int
}

// FullHistory always solves the master with every cut.
type FullHistory struct{}

func (FullHistory) Name() string { return grid.WindowFull }

func (FullHistory) Sizes(available int) []int {
	if available == 0 {
		return nil
	}
	return []int{available}
}

// SlidingWindow grows the window one cut at a time and stops at the first
// relaxation that improves on the current bound. MaxLookback caps the
// growing phase; the full history is always tried last, so a master that
// no partial window accepts is still solved with every cut.
type SlidingWindow struct {
	MaxLookback int
}

func (SlidingWindow) Name() string { return grid.WindowSliding }

func (w SlidingWindow) Sizes(available int) []int {
	last := available
	if w.MaxLookback > 0 && w.MaxLookback < last {
		last = w.MaxLookback
	}
	sizes := make([]int, 0, last+1)
	for ro := 1; ro <= last; ro++ {
		sizes = append(sizes, ro)
	}
	if last < available {
		sizes = append(sizes, available)
	}
	return sizes
}

// NewCutWindow returns the window named in settings.
func NewCutWindow(name string, maxLookback int) (CutWindow, error) {
	switch name {
	case grid.WindowFull:
		return FullHistory{}, nil
	case grid.WindowSliding, "":
		return SlidingWindow{MaxLookback: maxLookback}, nil
	}
	return nil, fmt.Errorf("unknown cut window %q", name)
}

// relaxWindow solves masters over growing windows. A window is accepted when
// it is the last one w offers or when accept approves its objective.
func relaxWindow[T any](w CutWindow, available int, accept func(obj float64) bool,
	solve func(ro int) (float64, T, error)) (obj float64, out T, ro int, err error) {
	sizes := w.Sizes(available)
	if len(sizes) == 0 {
		return 0, out, 0, fmt.Errorf("no cuts available for %s window", w.Name())
	}
	for i, size := range sizes {
		obj, out, err = solve(size)
		if err != nil {
			return 0, out, size, err
		}
		if i == len(sizes)-1 || accept(obj) {
			return obj, out, size, nil
		}
	}
	return obj, out, sizes[len(sizes)-1], nil
}
