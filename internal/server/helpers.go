package server

import (
	"fmt"
	"time"

	"github.com/cwbudde/arotnep/internal/grid"
	"github.com/cwbudde/arotnep/internal/opt"
	"github.com/cwbudde/arotnep/internal/plan"
)

// Oracle names accepted in a job config.
const (
	OracleHiGHS   = "highs"
	OracleSimplex = "simplex"
)

// probePopulation is the swarm size of the metaheuristic probe.
const probePopulation = 20

// NewOracle returns the named solver backend wrapped with metrics.
func NewOracle(name string) (opt.Oracle, error) {
	switch name {
	case "":
		return NewOracle(DefaultOracle)
	case OracleHiGHS:
		o, err := newHiGHS()
		if err != nil {
			return nil, err
		}
		return opt.Instrument(OracleHiGHS, o), nil
	case OracleSimplex:
		return opt.Instrument(OracleSimplex, opt.NewSimplex()), nil
	}
	return nil, fmt.Errorf("unknown oracle: %s", name)
}

// NewPlanner loads the case named in config, applies its overrides and
// wires a planner with the chosen oracle.
func NewPlanner(config JobConfig, options ...plan.Option) (*plan.Planner, *grid.System, error) {
	sys, err := grid.LoadFile(config.CasePath)
	if err != nil {
		return nil, nil, err
	}
	config.Apply(&sys.Settings)
	if err := sys.Validate(); err != nil {
		return nil, nil, err
	}

	oracle, err := NewOracle(config.Oracle)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := plan.ConfigFromSettings(sys.Settings)
	if err != nil {
		return nil, nil, err
	}
	if config.ProbeIters > 0 {
		seed := config.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		options = append(options, plan.WithProbe(opt.NewMayfly(config.ProbeIters, probePopulation, seed)))
	}
	return plan.New(sys, oracle, cfg, options...), sys, nil
}
