//go:build !nohighs

package server

import (
	"github.com/cwbudde/arotnep/internal/opt"
	"github.com/cwbudde/arotnep/internal/opt/highs"
)

// DefaultOracle is used when a job names no backend.
const DefaultOracle = OracleHiGHS

func newHiGHS() (opt.Oracle, error) { return highs.New(), nil }
