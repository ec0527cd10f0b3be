package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/arotnep/internal/plan"
	"github.com/cwbudde/arotnep/internal/store"
)

// Generator at A serves a load at B only once line AB is built.
const twoBusCase = `
name: two-bus
buses:
  - id: A
  - id: B
lines:
  - id: AB
    from: A
    to: B
    reactance: 0.1
    capacity: 100
    investment_cost: 1000
loads:
  - id: D1
    bus: B
    peak_forecast: 50
    shedding_cost: 1000
generators:
  - id: G1
    bus: A
    capacity_forecast: 100
    cost_forecast: 10
days:
  - id: d1
    weight: 1
    periods:
      - duration: 1
settings:
  years: 1
  investment_budget: 5000
`

// A critical load larger than the only generator.
const shortfallCase = `
name: shortfall
buses:
  - id: A
loads:
  - id: D1
    bus: A
    peak_forecast: 40
    shedding_cost: 1000
    critical: true
generators:
  - id: G1
    bus: A
    capacity_forecast: 10
    cost_forecast: 10
days:
  - id: d1
    weight: 1
    periods:
      - duration: 1
settings:
  years: 1
`

func writeCase(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "case.yaml")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("Failed to write case: %v", err)
	}
	return path
}

func TestRunJob_Success(t *testing.T) {
	casePath := writeCase(t, twoBusCase)
	dataDir := t.TempDir()
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{CasePath: casePath, Oracle: OracleSimplex})

	if err := runJob(context.Background(), jm, st, dataDir, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if updated.CaseName != "two-bus" {
		t.Errorf("Expected case name two-bus, got %q", updated.CaseName)
	}
	if updated.Report == nil || updated.Report.TotalCost < 1499 || updated.Report.TotalCost > 1501 {
		t.Fatalf("Unexpected report: %+v", updated.Report)
	}
	if len(updated.Schedule) != 1 || updated.Schedule[0].ID != "AB" {
		t.Errorf("Expected AB in the schedule, got %+v", updated.Schedule)
	}
	if updated.Last == nil || updated.Outer != 1 {
		t.Errorf("Progress should be recorded, outer=%d last=%v", updated.Outer, updated.Last)
	}

	run, err := st.LoadRun(job.ID)
	if err != nil {
		t.Fatalf("Run should be saved: %v", err)
	}
	if run.Status != store.StatusCompleted || run.CaseName != "two-bus" {
		t.Errorf("Unexpected saved run: %s %s", run.Status, run.CaseName)
	}

	reader, err := store.NewTraceReader(dataDir, job.ID)
	if err != nil {
		t.Fatalf("Trace should exist: %v", err)
	}
	defer reader.Close()
	samples, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read trace: %v", err)
	}
	if len(samples) == 0 {
		t.Error("Trace should contain bound samples")
	}
}

func TestRunJob_MissingCase(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{CasePath: "/nonexistent/case.yaml", Oracle: OracleSimplex})

	err := runJob(context.Background(), jm, nil, "", job.ID)
	if err == nil {
		t.Error("runJob should fail with a missing case file")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_UnknownOracle(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{CasePath: writeCase(t, twoBusCase), Oracle: "cplex"})

	if err := runJob(context.Background(), jm, nil, "", job.ID); err == nil {
		t.Error("runJob should fail with an unknown oracle")
	}
}

func TestNewOracle_Names(t *testing.T) {
	if _, err := NewOracle(""); err != nil {
		t.Errorf("Default oracle %q should be available: %v", DefaultOracle, err)
	}
	if _, err := NewOracle(OracleSimplex); err != nil {
		t.Errorf("Simplex oracle should always be available: %v", err)
	}
	if _, err := NewOracle("cplex"); err == nil {
		t.Error("Unknown oracle should be rejected")
	}
}

func TestRunJob_Infeasible(t *testing.T) {
	dataDir := t.TempDir()
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{CasePath: writeCase(t, shortfallCase), Oracle: OracleSimplex})

	err = runJob(context.Background(), jm, st, dataDir, job.ID)
	if !errors.Is(err, plan.ErrSolverInfeasible) {
		t.Fatalf("Expected infeasibility, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Report == nil {
		t.Error("Partial report should be kept")
	}

	run, err := st.LoadRun(job.ID)
	if err != nil {
		t.Fatalf("Run should be saved: %v", err)
	}
	if run.Status != store.StatusInfeasible {
		t.Errorf("Expected status infeasible, got %s", run.Status)
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{CasePath: writeCase(t, twoBusCase), Oracle: OracleSimplex})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runJob(ctx, jm, nil, "", job.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("runJob should return context.Canceled, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_NotFound(t *testing.T) {
	if err := runJob(context.Background(), NewJobManager(), nil, "", "missing"); err == nil {
		t.Error("runJob should fail for an unknown job")
	}
}
