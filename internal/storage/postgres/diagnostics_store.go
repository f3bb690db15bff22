package postgres

import (
	"context"
	"fmt"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// DiagnosticsStore implements storage.DiagnosticsStore using PostgreSQL.
type DiagnosticsStore struct {
	pool *Pool
}

// NewDiagnosticsStore creates a new DiagnosticsStore.
func NewDiagnosticsStore(pool *Pool) *DiagnosticsStore {
	return &DiagnosticsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DiagnosticsStore = (*DiagnosticsStore)(nil)

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *DiagnosticsStore) InsertBulk(ctx context.Context, diags []*domain.SolverDiagnostics) error {
	if len(diags) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO solver_diagnostics (
			run_id, period, iterations, converged, overridden,
			applied_rate, dynamic_rate, seed_rate, final_delta,
			senior_fees, net_interest, capped_balance, dynamic_residual
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10::numeric, $11::numeric, $12::numeric, $13
		)
	`

	for _, d := range diags {
		if d == nil || d.RunID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			d.RunID, d.Period, d.Iterations, d.Converged, d.Overridden,
			d.AppliedRate, d.DynamicRate, d.SeedRate, d.FinalDelta,
			numeric(d.SeniorFees), numeric(d.NetInterest), numeric(d.CappedBalance), d.DynamicResidual,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert solver diagnostics: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by period ASC.
func (s *DiagnosticsStore) GetByRunID(ctx context.Context, runID string) ([]*domain.SolverDiagnostics, error) {
	query := `
		SELECT
			run_id, period, iterations, converged, overridden,
			applied_rate, dynamic_rate, seed_rate, final_delta,
			senior_fees::text, net_interest::text, capped_balance::text, dynamic_residual
		FROM solver_diagnostics
		WHERE run_id = $1
		ORDER BY period ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get solver diagnostics: %w", err)
	}
	defer rows.Close()

	var diags []*domain.SolverDiagnostics
	for rows.Next() {
		var (
			d                      domain.SolverDiagnostics
			fees, interest, capped string
		)
		err := rows.Scan(
			&d.RunID, &d.Period, &d.Iterations, &d.Converged, &d.Overridden,
			&d.AppliedRate, &d.DynamicRate, &d.SeedRate, &d.FinalDelta,
			&fees, &interest, &capped, &d.DynamicResidual,
		)
		if err != nil {
			return nil, fmt.Errorf("scan solver diagnostics row: %w", err)
		}
		if d.SeniorFees, err = parseNumeric(fees); err != nil {
			return nil, err
		}
		if d.NetInterest, err = parseNumeric(interest); err != nil {
			return nil, err
		}
		if d.CappedBalance, err = parseNumeric(capped); err != nil {
			return nil, err
		}
		diags = append(diags, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solver diagnostics rows: %w", err)
	}
	return diags, nil
}
