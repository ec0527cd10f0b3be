package opt

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cwbudde/arotnep/internal/lp"
)

var (
	// solveTotal counts oracle calls by backend, model kind and status
	solveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arotnep_oracle_solves_total",
		Help: "Total solver oracle calls by backend, model kind and status",
	}, []string{"backend", "kind", "status"})

	// solveDuration tracks oracle latency
	solveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arotnep_oracle_solve_duration_seconds",
		Help:    "Solver oracle call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
	}, []string{"backend", "kind"})

	// modelSize tracks the number of columns handed to the oracle
	modelSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arotnep_oracle_model_columns",
		Help:    "Number of columns per oracle call",
		Buckets: prometheus.ExponentialBuckets(8, 4, 8),
	}, []string{"kind"})
)

type instrumented struct {
	backend string
	next    Oracle
}

// Instrument wraps o so every call is recorded under the given backend name.
func Instrument(backend string, o Oracle) Oracle {
	return &instrumented{backend: backend, next: o}
}

func (i *instrumented) Solve(ctx context.Context, m *lp.Model, opts Options) (*Result, error) {
	kind := modelKind(m.Name)
	modelSize.WithLabelValues(kind).Observe(float64(len(m.Cols)))

	start := time.Now()
	res, err := i.next.Solve(ctx, m, opts)
	solveDuration.WithLabelValues(i.backend, kind).Observe(time.Since(start).Seconds())

	status := "error"
	if err == nil {
		status = res.Status.String()
	}
	solveTotal.WithLabelValues(i.backend, kind, status).Inc()
	return res, err
}

// modelKind strips per-iteration suffixes ("ilsp:y2:k3" -> "ilsp") to keep
// label cardinality bounded.
func modelKind(name string) string {
	name = strings.TrimPrefix(name, lp.DualPrefix)
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}
