//go:build nohighs

package server

import (
	"errors"

	"github.com/cwbudde/arotnep/internal/opt"
)

// DefaultOracle is used when a job names no backend.
const DefaultOracle = OracleSimplex

func newHiGHS() (opt.Oracle, error) {
	return nil, errors.New("highs oracle not available: binary built with the nohighs tag")
}
