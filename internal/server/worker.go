package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/arotnep/internal/plan"
	"github.com/cwbudde/arotnep/internal/store"
)

// runJob executes a planning job in the background. Bound samples update
// the job, go to the trace file when traceDir is set, and are broadcast to
// stream subscribers, which throttle the inner-loop ones. The final record
// goes to runStore when it is not nil.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, traceDir, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.cancel = cancel
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "case", job.Config.CasePath, "oracle", job.Config.Oracle)

	var trace *store.TraceWriter
	if traceDir != "" {
		trace, err = store.NewTraceWriter(traceDir, jobID, false)
		if err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
		defer trace.Close()
	}

	observer := func(s plan.BoundSample) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Last = &s
			j.Outer = s.Outer
		})
		if trace != nil {
			if err := trace.Write(s); err != nil {
				slog.Warn("Failed to write trace", "job_id", jobID, "error", err)
			}
		}
		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:     jobID,
			State:     StateRunning,
			Outer:     s.Outer,
			Sample:    &s,
			Timestamp: time.Now(),
		})
	}

	planner, sys, err := NewPlanner(job.Config, plan.WithObserver(observer))
	if err != nil {
		markJobFailed(jm, jobID, err)
		saveRun(runStore, jobID, "", job, nil, err, store.StatusFailed)
		return err
	}
	jm.UpdateJob(jobID, func(j *Job) { j.CaseName = sys.Name })

	report, err := planner.Run(ctx)
	if trace != nil {
		if ferr := trace.Flush(); ferr != nil {
			slog.Warn("Failed to flush trace", "job_id", jobID, "error", ferr)
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		markJobCancelled(jm, jobID, report)
		saveRun(runStore, jobID, sys.Name, job, report, err, store.StatusCancelled)
		return err
	case errors.Is(err, plan.ErrSolverInfeasible):
		markJobFailed(jm, jobID, err)
		jm.UpdateJob(jobID, func(j *Job) { j.Report = report })
		saveRun(runStore, jobID, sys.Name, job, report, err, store.StatusInfeasible)
		return err
	case err != nil:
		markJobFailed(jm, jobID, err)
		saveRun(runStore, jobID, sys.Name, job, report, err, store.StatusFailed)
		return err
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Report = report
		j.Schedule = report.Schedule
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}
	saveRun(runStore, jobID, sys.Name, job, report, nil, "")

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", report.Elapsed,
		"total_cost", report.TotalCost,
		"gap", report.Gap,
		"outer_iterations", report.Iterations,
		"reason", report.Reason,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Outer:     report.Iterations,
		Timestamp: time.Now(),
	})
	return nil
}

// saveRun persists the outcome of a job. Store errors are logged, not
// returned; the job state already carries the result.
func saveRun(runStore store.Store, jobID, caseName string, job *Job, report *plan.Report, runErr error, status string) {
	if runStore == nil {
		return
	}
	run := store.NewRun(jobID, caseName, job.Config, report, job.StartTime, runErr, status)
	if err := runStore.SaveRun(jobID, run); err != nil {
		slog.Error("Failed to save run", "job_id", jobID, "error", err)
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled, keeping its partial report.
func markJobCancelled(jm *JobManager, jobID string, report *plan.Report) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.Report = report
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}
