package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/arotnep/internal/grid"
	"github.com/cwbudde/arotnep/internal/plan"
)

// Run statuses.
const (
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusInfeasible = "infeasible"
)

// RunConfig records how a run was started, so it can be repeated. Zero
// values leave the case file's settings untouched.
type RunConfig struct {
	CasePath      string  `json:"casePath"`
	Oracle        string  `json:"oracle"`           // highs or simplex
	Window        string  `json:"window,omitempty"` // sliding or full
	Tolerance     float64 `json:"tolerance,omitempty"`
	OuterMaxIter  int     `json:"outerMaxIter,omitempty"`
	ParallelYears bool    `json:"parallelYears,omitempty"`
	ProbeIters    int     `json:"probeIters,omitempty"`
	Seed          int64   `json:"seed,omitempty"`
}

// Apply overrides s with the non-zero fields of c.
func (c RunConfig) Apply(s *grid.Settings) {
	if c.Window != "" {
		s.Window = c.Window
	}
	if c.Tolerance > 0 {
		s.Tolerance = c.Tolerance
	}
	if c.OuterMaxIter > 0 {
		s.OuterMaxIter = c.OuterMaxIter
	}
	if c.ParallelYears {
		s.ParallelYears = true
	}
}

// Run is the persisted record of one planning run. Report is present for
// finished runs and for aborted runs that produced a partial report.
type Run struct {
	RunID      string       `json:"runId"`
	CaseName   string       `json:"caseName"`
	Status     string       `json:"status"`
	Error      string       `json:"error,omitempty"`
	Config     RunConfig    `json:"config"`
	Report     *plan.Report `json:"report,omitempty"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

// RunInfo is the listing view of a Run without bounds or decisions.
type RunInfo struct {
	RunID      string    `json:"runId"`
	CaseName   string    `json:"caseName"`
	Status     string    `json:"status"`
	TotalCost  float64   `json:"totalCost"`
	Gap        float64   `json:"gap"`
	Iterations int       `json:"iterations"`
	Converged  bool      `json:"converged"`
	FinishedAt time.Time `json:"finishedAt"`
}

// NewRun builds the record of a finished run. A nil error marks it
// completed; otherwise status tells how it failed.
func NewRun(runID, caseName string, config RunConfig, report *plan.Report, started time.Time, runErr error, status string) *Run {
	r := &Run{
		RunID:      runID,
		CaseName:   caseName,
		Status:     StatusCompleted,
		Config:     config,
		Report:     report,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if runErr != nil {
		r.Status = status
		r.Error = runErr.Error()
	}
	return r
}

// ToInfo converts a full Run to RunInfo.
func (r *Run) ToInfo() RunInfo {
	info := RunInfo{
		RunID:      r.RunID,
		CaseName:   r.CaseName,
		Status:     r.Status,
		FinishedAt: r.FinishedAt,
	}
	if r.Report != nil {
		info.TotalCost = r.Report.TotalCost
		info.Gap = r.Report.Gap
		info.Iterations = r.Report.Iterations
		info.Converged = r.Report.Converged
	}
	return info
}

// Validate checks that the record can be stored.
func (r *Run) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	switch r.Status {
	case StatusCompleted:
		if r.Report == nil {
			return &ValidationError{Field: "Report", Reason: "required for completed runs"}
		}
	case StatusFailed, StatusCancelled, StatusInfeasible:
		if r.Error == "" {
			return &ValidationError{Field: "Error", Reason: "required for " + r.Status + " runs"}
		}
	default:
		return &ValidationError{Field: "Status", Reason: fmt.Sprintf("unknown status %q", r.Status)}
	}
	if r.StartedAt.IsZero() {
		return &ValidationError{Field: "StartedAt", Reason: "cannot be zero"}
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return &ValidationError{Field: "FinishedAt", Reason: "before StartedAt"}
	}
	return nil
}

// ValidationError represents a run validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
