package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/arotnep/internal/store"
)

func runInfos(now time.Time) []store.RunInfo {
	return []store.RunInfo{
		{RunID: "run1", FinishedAt: now.AddDate(0, 0, -10)},
		{RunID: "run2", FinishedAt: now.AddDate(0, 0, -5)},
		{RunID: "run3", FinishedAt: now.AddDate(0, 0, -1)},
		{RunID: "run4", FinishedAt: now.AddDate(0, 0, -30)},
	}
}

func ids(infos []store.RunInfo) map[string]bool {
	set := make(map[string]bool)
	for _, info := range infos {
		set[info.RunID] = true
	}
	return set
}

func TestSelectRunsForDeletion_ByAge(t *testing.T) {
	now := time.Now()

	toDelete := selectRunsForDeletion(runInfos(now), 0, 7, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 runs to delete, got %d", len(toDelete))
	}
	got := ids(toDelete)
	if !got["run1"] || !got["run4"] {
		t.Errorf("Expected run1 and run4 to be selected, got %v", got)
	}
}

func TestSelectRunsForDeletion_ByCount(t *testing.T) {
	now := time.Now()

	toDelete := selectRunsForDeletion(runInfos(now), 2, 0, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 runs to delete, got %d", len(toDelete))
	}
	got := ids(toDelete)
	if !got["run1"] || !got["run4"] {
		t.Errorf("Expected the two oldest runs to be selected, got %v", got)
	}
}

func TestSelectRunsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := append(runInfos(now), store.RunInfo{RunID: "run5", FinishedAt: now.AddDate(0, 0, -2)})

	// Age selects run1 and run4; keeping three also selects run2.
	toDelete := selectRunsForDeletion(infos, 3, 7, now)

	if len(toDelete) != 3 {
		t.Fatalf("Expected 3 runs to delete without duplicates, got %d", len(toDelete))
	}
	got := ids(toDelete)
	if !got["run1"] || !got["run2"] || !got["run4"] {
		t.Errorf("Unexpected selection: %v", got)
	}
}

func TestSelectRunsForDeletion_NothingToDo(t *testing.T) {
	now := time.Now()

	if toDelete := selectRunsForDeletion(runInfos(now), 10, 0, now); len(toDelete) != 0 {
		t.Errorf("Expected nothing to delete, got %d", len(toDelete))
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "result.json")
	content := []byte(`{"runId":"x"}`)
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}

	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("Short IDs should be unchanged, got %q", got)
	}
	if got := shortID("0123456789abcdef"); got != "0123456789ab..." {
		t.Errorf("Unexpected truncation: %q", got)
	}
}

func withResultsDir(t *testing.T, dir string) {
	t.Helper()
	original := resultsDataDir
	resultsDataDir = dir
	t.Cleanup(func() { resultsDataDir = original })
}

func saveTestRun(t *testing.T, st *store.FSStore, runID string) {
	t.Helper()
	run := store.NewRun(runID, "two-bus", store.RunConfig{CasePath: "case.yaml"}, nil, time.Now().Add(-time.Minute), os.ErrNotExist, store.StatusFailed)
	if err := st.SaveRun(runID, run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
}

func TestResultsListCommand_NoRuns(t *testing.T) {
	withResultsDir(t, t.TempDir())

	if err := runListResults(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestResultsListCommand_WithRuns(t *testing.T) {
	tmpDir := t.TempDir()
	withResultsDir(t, tmpDir)

	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestRun(t, st, "run-a")

	if err := runListResults(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestResultsCleanCommand_RequiresPolicy(t *testing.T) {
	withResultsDir(t, t.TempDir())
	keepLast, olderThanDays = 0, 0

	if err := runCleanResults(nil, nil); err == nil {
		t.Error("Expected an error without --keep-last or --older-than")
	}
}

func TestResultsCleanCommand_KeepLast(t *testing.T) {
	tmpDir := t.TempDir()
	withResultsDir(t, tmpDir)

	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestRun(t, st, "run-old")
	time.Sleep(10 * time.Millisecond)
	saveTestRun(t, st, "run-new")

	keepLast, olderThanDays, forceClean = 1, 0, true
	defer func() { keepLast, olderThanDays, forceClean = 0, 0, false }()

	if err := runCleanResults(nil, nil); err != nil {
		t.Fatalf("Clean failed: %v", err)
	}

	infos, err := st.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 1 || infos[0].RunID != "run-new" {
		t.Errorf("Expected only run-new to remain, got %+v", infos)
	}
}
