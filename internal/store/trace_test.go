package store

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/arotnep/internal/plan"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-trace"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	samples := []plan.BoundSample{
		{Level: "outer", Outer: 1, Iteration: 1, Lower: 400, Upper: math.Inf(1), Gap: math.Inf(1), Timestamp: time.Now()},
		{Level: "inner", Outer: 1, Year: 1, Iteration: 1, Lower: 400, Upper: 600, Gap: 0.5, Timestamp: time.Now()},
		{Level: "outer", Outer: 1, Iteration: 1, Lower: 400, Upper: 600, Gap: 0.5, Timestamp: time.Now()},
	}
	for _, s := range samples {
		if err := writer.Write(s); err != nil {
			t.Fatalf("Failed to write sample: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read samples: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(got))
	}
	if !math.IsInf(got[0].Upper, 1) {
		t.Errorf("Missing upper bound should read back as +Inf, got %v", got[0].Upper)
	}
	if got[1].Level != "inner" || got[1].Year != 1 || got[1].Upper != 600 {
		t.Errorf("Sample mismatch: %+v", got[1])
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-append"

	for i := 1; i <= 2; i++ {
		w, err := NewTraceWriter(tmpDir, runID, true)
		if err != nil {
			t.Fatalf("Failed to create writer: %v", err)
		}
		if err := w.Write(plan.BoundSample{Level: "outer", Outer: i, Iteration: i, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		w.Close()
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()

	first, err := reader.Read()
	if err != nil || first.Outer != 1 {
		t.Fatalf("First sample: %+v, %v", first, err)
	}
	second, err := reader.Read()
	if err != nil || second.Outer != 2 {
		t.Fatalf("Second sample: %+v, %v", second, err)
	}
	if _, err := reader.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-del"

	w, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	w.Close()

	if err := DeleteTrace(tmpDir, runID); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if err := DeleteTrace(tmpDir, runID); err != nil {
		t.Errorf("Deleting a missing trace should succeed, got %v", err)
	}
}
