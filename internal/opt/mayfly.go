package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest population mayfly accepts.
const MinPopulation = 20

// Optimizer minimizes a black-box function over the box [lower, upper]^dim.
type Optimizer interface {
	Minimize(eval func([]float64) float64, lower, upper float64, dim int) ([]float64, float64, error)
}

// Mayfly adapts the mayfly swarm algorithm to Optimizer.
type Mayfly struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly returns a seeded mayfly optimizer. Population sizes below
// MinPopulation are raised to it.
func NewMayfly(maxIters, popSize int, seed int64) *Mayfly {
	if popSize < MinPopulation {
		popSize = MinPopulation
	}
	return &Mayfly{maxIters: maxIters, popSize: popSize, seed: seed}
}

// Minimize implements Optimizer.
func (m *Mayfly) Minimize(eval func([]float64) float64, lower, upper float64, dim int) ([]float64, float64, error) {
	if dim == 0 {
		return nil, eval(nil), nil
	}
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lower
	config.UpperBound = upper
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to run mayfly: %w", err)
	}
	return result.GlobalBest.Position, result.GlobalBest.Cost, nil
}
