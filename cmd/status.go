package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/arotnep/internal/plan"
	"github.com/cwbudde/arotnep/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job.ID)
		fmt.Printf("  State: %s\n", job.State)
		fmt.Printf("  Case: %s\n", job.Config.CasePath)
		fmt.Printf("  Outer iteration: %d\n", job.Outer)
		if job.Last != nil {
			fmt.Printf("  Bounds: %s\n", formatBounds(job.Last))
		}
		fmt.Println()
	}

	return nil
}

// jobStatus mirrors the status endpoint response.
type jobStatus struct {
	ID       string            `json:"id"`
	State    string            `json:"state"`
	Config   server.JobConfig  `json:"config"`
	CaseName string            `json:"caseName"`
	Outer    int               `json:"outer"`
	Elapsed  float64           `json:"elapsed"`
	Last     *plan.BoundSample `json:"last"`
	Schedule []scheduledBuild  `json:"schedule"`
	Error    string            `json:"error"`
}

type scheduledBuild struct {
	Kind string  `json:"kind"`
	ID   string  `json:"id"`
	Year int     `json:"year"`
	Cost float64 `json:"cost"`
}

func getJobStatus(url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Job: %s\n", status.ID)
	fmt.Printf("State: %s\n", status.State)
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Case: %s\n", status.Config.CasePath)
	if status.CaseName != "" {
		fmt.Printf("  Name: %s\n", status.CaseName)
	}
	fmt.Printf("  Oracle: %s\n", status.Config.Oracle)
	if status.Config.Window != "" {
		fmt.Printf("  Window: %s\n", status.Config.Window)
	}
	fmt.Println()

	fmt.Println("Progress:")
	fmt.Printf("  Outer iteration: %d\n", status.Outer)
	if status.Last != nil {
		fmt.Printf("  Last %s bounds: %s\n", status.Last.Level, formatBounds(status.Last))
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if len(status.Schedule) > 0 {
		fmt.Println("\nSchedule:")
		for _, b := range status.Schedule {
			fmt.Printf("  year %d: %s %s (%.2f)\n", b.Year, b.Kind, b.ID, b.Cost)
		}
	}

	if status.Error != "" {
		fmt.Printf("\nError: %s\n", status.Error)
	}

	return nil
}

func formatBounds(s *plan.BoundSample) string {
	return fmt.Sprintf("lb %.2f, ub %.2f, gap %.4f", s.Lower, s.Upper, s.Gap)
}
