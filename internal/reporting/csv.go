package reporting

import (
	"fmt"
	"strings"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// RenderCashflowsCSV renders tranche cashflow records as CSV string.
// Money columns keep two decimals; rates six.
func RenderCashflowsCSV(flows []*domain.TrancheCashflow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("run_id,period,tranche_id,beginning_balance,interest_due,interest_paid,interest_shortfall,")
	sb.WriteString("principal_paid,accretion,writedown,ending_balance,rate,busted\n")

	// Rows
	for _, c := range flows {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%s,%s,%s,%s,%s,%s,%s,%.6f,%t\n",
			c.RunID,
			c.Period,
			c.TrancheID,
			c.BeginningBalance.StringFixed(2),
			c.InterestDue.StringFixed(2),
			c.InterestPaid.StringFixed(2),
			c.InterestShortfall.StringFixed(2),
			c.PrincipalPaid.StringFixed(2),
			c.Accretion.StringFixed(2),
			c.Writedown.StringFixed(2),
			c.EndingBalance.StringFixed(2),
			c.Rate,
			c.Busted,
		))
	}

	return sb.String()
}

// RenderTriggerHistoryCSV renders one run's trigger snapshots as CSV string.
func RenderTriggerHistoryCSV(runID string, snaps []*domain.TriggerSnapshot) string {
	var sb strings.Builder

	sb.WriteString("run_id,period,trigger_id,status,value,threshold,passed,consecutive_passes,cure_threshold,months_breached,cure_reset\n")
	for _, s := range snaps {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%.6f,%.6f,%t,%d,%d,%d,%t\n",
			runID,
			s.Period,
			s.TriggerID,
			s.Status,
			s.Value,
			s.Threshold,
			s.Passed,
			s.ConsecutivePasses,
			s.CureThreshold,
			s.MonthsBreached,
			s.CureReset,
		))
	}

	return sb.String()
}

// RenderDiagnosticsCSV renders solver diagnostics as CSV string.
func RenderDiagnosticsCSV(diags []*domain.SolverDiagnostics) string {
	var sb strings.Builder

	sb.WriteString("run_id,period,iterations,converged,overridden,applied_rate,dynamic_rate,seed_rate,final_delta,")
	sb.WriteString("senior_fees,net_interest,capped_balance,dynamic_residual\n")
	for _, d := range diags {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%t,%t,%.10f,%.10f,%.10f,%.3e,%s,%s,%s,%.3e\n",
			d.RunID,
			d.Period,
			d.Iterations,
			d.Converged,
			d.Overridden,
			d.AppliedRate,
			d.DynamicRate,
			d.SeedRate,
			d.FinalDelta,
			d.SeniorFees.StringFixed(2),
			d.NetInterest.StringFixed(2),
			d.CappedBalance.StringFixed(2),
			d.DynamicResidual,
		))
	}

	return sb.String()
}

// RenderAggregatesCSV renders tranche aggregates as CSV string.
func RenderAggregatesCSV(aggs []*domain.TrancheAggregate) string {
	var sb strings.Builder

	sb.WriteString("batch_id,deal_id,tranche_id,paths,wal_mean,wal_stddev,wal_p10,wal_p50,wal_p90,")
	sb.WriteString("principal_mean,interest_mean,interest_stddev,writedown_mean,writedown_max,shortfall_paths\n")
	for _, a := range aggs {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%.4f,%.4f,%.4f,%.4f,%.4f,%.2f,%.2f,%.2f,%.2f,%.2f,%d\n",
			a.BatchID,
			a.DealID,
			a.TrancheID,
			a.Paths,
			a.WALMean,
			a.WALStddev,
			a.WALP10,
			a.WALP50,
			a.WALP90,
			a.PrincipalMean,
			a.InterestMean,
			a.InterestStddev,
			a.WritedownMean,
			a.WritedownMax,
			a.ShortfallPaths,
		))
	}

	return sb.String()
}
