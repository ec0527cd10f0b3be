package server

import (
	"context"
	"testing"
	"time"

	"github.com/cwbudde/arotnep/internal/plan"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	config := JobConfig{
		CasePath: "case.yaml",
		Oracle:   OracleSimplex,
		Window:   "full",
		Seed:     42,
	}

	job := jm.CreateJob(config)

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}

	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}

	if job.Config.CasePath != "case.yaml" {
		t.Errorf("Config not set correctly")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{CasePath: "case.yaml"})

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}

	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	_, exists = jm.GetJob("nonexistent")
	if exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_GetJobReturnsSnapshot(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{CasePath: "case.yaml"})

	snapshot, _ := jm.GetJob(job.ID)
	snapshot.State = StateFailed

	current, _ := jm.GetJob(job.ID)
	if current.State != StatePending {
		t.Errorf("Mutating a snapshot changed the job: %s", current.State)
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	first := jm.CreateJob(JobConfig{CasePath: "a.yaml"})
	time.Sleep(time.Millisecond)
	jm.CreateJob(JobConfig{CasePath: "b.yaml"})

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID {
		t.Error("Jobs should be listed oldest first")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{CasePath: "case.yaml"})

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Outer = 3
		j.Last = &plan.BoundSample{Level: "outer", Outer: 3, Lower: 400, Upper: 600}
	})

	if err != nil {
		t.Errorf("Update should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning {
		t.Error("State should be updated")
	}
	if updated.Outer != 3 {
		t.Error("Outer should be updated")
	}
	if updated.Last == nil || updated.Last.Upper != 600 {
		t.Error("Last sample should be updated")
	}

	err = jm.UpdateJob("nonexistent", func(j *Job) {})
	if err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{CasePath: "case.yaml"})

	if jm.CancelJob(job.ID) {
		t.Error("A job without a running worker cannot be cancelled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.cancel = cancel
	})

	if !jm.CancelJob(job.ID) {
		t.Fatal("Running job should be cancellable")
	}
	if ctx.Err() == nil {
		t.Error("Cancel should stop the job context")
	}

	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateCancelled })
	if jm.CancelJob(job.ID) {
		t.Error("Finished job should not be cancellable")
	}
	if jm.CancelJob("nonexistent") {
		t.Error("Unknown job should not be cancellable")
	}
}

func TestJobManager_GetRunningJobs(t *testing.T) {
	jm := NewJobManager()
	running := jm.CreateJob(JobConfig{CasePath: "a.yaml"})
	jm.CreateJob(JobConfig{CasePath: "b.yaml"})

	jm.UpdateJob(running.ID, func(j *Job) { j.State = StateRunning })

	jobs := jm.GetRunningJobs()
	if len(jobs) != 1 || jobs[0].ID != running.ID {
		t.Errorf("Expected only the running job, got %d jobs", len(jobs))
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{CasePath: "case.yaml"})

	// Simulate concurrent updates
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(iteration int) {
			jm.UpdateJob(job.ID, func(j *Job) {
				j.Outer = iteration
				time.Sleep(1 * time.Millisecond)
			})
			jm.GetJob(job.ID)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	_, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should still exist after concurrent updates")
	}
}

func TestJobState_Finished(t *testing.T) {
	tests := []struct {
		state JobState
		want  bool
	}{
		{StatePending, false},
		{StateRunning, false},
		{StateCompleted, true},
		{StateFailed, true},
		{StateCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.state.Finished(); got != tt.want {
			t.Errorf("%s.Finished() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
