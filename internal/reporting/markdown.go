package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Waterfall Report: %s\n\n", r.DealID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.BatchID != "" {
		sb.WriteString(fmt.Sprintf("Batch: %s\n\n", r.BatchID))
	}

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Runs | %d |\n", r.Summary.TotalRuns))
	sb.WriteString(fmt.Sprintf("| Completed | %d |\n", r.Summary.CompletedRuns))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.Summary.FailedRuns))
	sb.WriteString(fmt.Sprintf("| Periods Simulated | %d |\n", r.Summary.TotalPeriods))
	sb.WriteString("\n")

	// Tranche Aggregates
	sb.WriteString("## Tranche Aggregates\n\n")
	if len(r.Aggregates) > 0 {
		sb.WriteString("| Batch | Tranche | Paths | WAL Mean | WAL P10 | WAL P50 | WAL P90 | Principal | Interest | Writedown | Writedown Max | Shortfall Paths |\n")
		sb.WriteString("|-------|---------|-------|----------|---------|---------|---------|-----------|----------|-----------|---------------|-----------------|\n")
		for _, a := range r.Aggregates {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %d |\n",
				shortID(a.BatchID), a.TrancheID, a.Paths,
				a.WALMean, a.WALP10, a.WALP50, a.WALP90,
				a.PrincipalMean, a.InterestMean, a.WritedownMean, a.WritedownMax,
				a.ShortfallPaths))
		}
	} else {
		sb.WriteString("No tranche aggregates available.\n")
	}
	sb.WriteString("\n")

	// Solver
	sb.WriteString("## Solver Convergence\n\n")
	if r.Solver.Periods > 0 {
		sb.WriteString("| Periods | Mean Iterations | Max Iterations | Non-Converged | Overridden | Max Residual |\n")
		sb.WriteString("|---------|-----------------|----------------|---------------|------------|--------------|\n")
		sb.WriteString(fmt.Sprintf("| %d | %.2f | %d | %d | %d | %.3e |\n",
			r.Solver.Periods, r.Solver.MeanIterations, r.Solver.MaxIterations,
			r.Solver.NonConverged, r.Solver.Overridden, r.Solver.MaxResidual))
	} else {
		sb.WriteString("No solver diagnostics available.\n")
	}
	sb.WriteString("\n")

	// Triggers
	sb.WriteString("## Triggers\n\n")
	if len(r.Triggers) > 0 {
		sb.WriteString("| Trigger | Evaluations | Breached Periods | Breaches | Runs Breached |\n")
		sb.WriteString("|---------|-------------|------------------|----------|---------------|\n")
		for _, t := range r.Triggers {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d |\n",
				t.TriggerID, t.Evaluations, t.BreachedPeriods, t.Breaches, t.RunsBreached))
		}
	} else {
		sb.WriteString("No trigger history available.\n")
	}
	sb.WriteString("\n")

	// Runs
	sb.WriteString("## Runs\n\n")
	sb.WriteString("| Path | Run | Status | Periods | State Digest |\n")
	sb.WriteString("|------|-----|--------|---------|--------------|\n")
	for _, run := range r.Runs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s |\n",
			run.PathID, run.RunID, run.Status, run.Periods, shortID(run.StateDigest)))
	}
	sb.WriteString("\n")

	// Failures (always shown if present)
	if len(r.Failures) > 0 {
		sb.WriteString("## Failed Runs\n\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("- %s (%s) stopped at period %d: %s\n",
				f.PathID, f.RunID, f.FailedPeriod, f.Error))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// shortID keeps tables narrow; full ids are in the CSV exports.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
