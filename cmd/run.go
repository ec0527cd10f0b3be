package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/arotnep/internal/plan"
	"github.com/cwbudde/arotnep/internal/server"
	"github.com/cwbudde/arotnep/internal/store"
)

var (
	casePath      string
	outPath       string
	runDataDir    string
	oracleName    string
	window        string
	tolerance     float64
	outerMaxIter  int
	parallelYears bool
	probeIters    int
	seed          int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Plan expansions for a case file",
	Long: `Runs the nested column-and-constraint generation on a case file, prints the
build schedule and bounds, and stores the report and bound trace under the
data directory.`,
	RunE: runPlanning,
}

func init() {
	runCmd.Flags().StringVar(&casePath, "case", "", "Case file path (required)")
	runCmd.Flags().StringVar(&outPath, "out", "", "Write the report as JSON to this path")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "./data", "Base directory for run results (empty disables)")
	runCmd.Flags().StringVar(&oracleName, "oracle", server.DefaultOracle, "Solver backend: highs, simplex")
	runCmd.Flags().StringVar(&window, "window", "", "Scenario window: sliding, full (default from case)")
	runCmd.Flags().Float64Var(&tolerance, "tol", 0, "Outer convergence tolerance (default from case)")
	runCmd.Flags().IntVar(&outerMaxIter, "outer-max-iter", 0, "Outer iteration cap (default from case)")
	runCmd.Flags().BoolVar(&parallelYears, "parallel-years", false, "Solve the per-year inner loops in parallel")
	runCmd.Flags().IntVar(&probeIters, "probe-iters", 0, "Mayfly probe iterations per inner loop (0 = off)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for the probe")

	runCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(runCmd)
}

func runPlanning(cmd *cobra.Command, args []string) error {
	config := server.JobConfig{
		CasePath:      casePath,
		Oracle:        oracleName,
		Window:        window,
		Tolerance:     tolerance,
		OuterMaxIter:  outerMaxIter,
		ParallelYears: parallelYears,
		ProbeIters:    probeIters,
		Seed:          seed,
	}
	runID := uuid.New().String()
	started := time.Now()

	var runStore *store.FSStore
	var trace *store.TraceWriter
	if runDataDir != "" {
		var err error
		runStore, err = store.NewFSStore(runDataDir)
		if err != nil {
			return fmt.Errorf("failed to create result store: %w", err)
		}
		trace, err = store.NewTraceWriter(runDataDir, runID, false)
		if err != nil {
			return err
		}
		defer trace.Close()
	}

	observer := func(s plan.BoundSample) {
		if trace != nil {
			if err := trace.Write(s); err != nil {
				slog.Warn("Failed to write trace", "error", err)
			}
		}
	}

	planner, sys, err := server.NewPlanner(config, plan.WithObserver(observer))
	if err != nil {
		return err
	}

	slog.Info("Starting planning",
		"run_id", runID,
		"case", sys.Name,
		"years", sys.Settings.Years,
		"oracle", oracleName,
		"window", sys.Settings.Window,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := planner.Run(ctx)

	if runStore != nil {
		status := store.StatusFailed
		switch {
		case errors.Is(runErr, context.Canceled):
			status = store.StatusCancelled
		case errors.Is(runErr, plan.ErrSolverInfeasible):
			status = store.StatusInfeasible
		}
		run := store.NewRun(runID, sys.Name, config, report, started, runErr, status)
		if err := runStore.SaveRun(runID, run); err != nil {
			slog.Error("Failed to save run", "run_id", runID, "error", err)
		} else {
			slog.Info("Saved run", "run_id", runID, "dir", runStore.BaseDir())
		}
	}

	if report != nil {
		printReport(report)
		if outPath != "" {
			if err := writeReport(outPath, report); err != nil {
				return err
			}
			slog.Info("Wrote report", "path", outPath)
		}
	}

	return runErr
}

func printReport(report *plan.Report) {
	fmt.Printf("Case: %s\n", report.Case)
	fmt.Printf("Reason: %s (converged: %v, outer iterations: %d)\n", report.Reason, report.Converged, report.Iterations)
	fmt.Printf("Total cost: %.2f (investment %.2f, operation %.2f)\n", report.TotalCost, report.InvestmentCost, report.OperatingCost)
	if report.Gap < 0 {
		fmt.Printf("Lower bound: %.2f, gap: unbounded\n", report.LowerBound)
	} else {
		fmt.Printf("Lower bound: %.2f, gap: %.4f\n", report.LowerBound, report.Gap)
	}
	fmt.Printf("Elapsed: %s\n\n", report.Elapsed.Round(time.Millisecond))

	if len(report.Schedule) == 0 {
		fmt.Println("No expansions scheduled.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "YEAR\tKIND\tID\tCOST")
		fmt.Fprintln(w, "----\t----\t--\t----")
		for _, c := range report.Schedule {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\n", c.Year, c.Kind, c.ID, c.Cost)
		}
		w.Flush()
	}

	for _, warning := range report.Warnings {
		fmt.Printf("\nWarning: %s\n", warning.Error())
	}
}

func writeReport(path string, report *plan.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
