package clickhouse

import (
	"context"
	"fmt"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// CashflowStore implements storage.CashflowStore using ClickHouse.
type CashflowStore struct {
	conn *Conn
}

// NewCashflowStore creates a new CashflowStore.
func NewCashflowStore(conn *Conn) *CashflowStore {
	return &CashflowStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CashflowStore = (*CashflowStore)(nil)

const cashflowColumns = `
	run_id, period, tranche_id,
	beginning_balance, interest_due, interest_paid, interest_shortfall,
	principal_paid, accretion, writedown, ending_balance,
	rate, busted
`

type cashflowKey struct {
	period  int
	tranche string
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *CashflowStore) InsertBulk(ctx context.Context, flows []*domain.TrancheCashflow) error {
	if len(flows) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	batchKeys := make(map[string]map[cashflowKey]struct{})
	for _, c := range flows {
		if c == nil || c.RunID == "" || c.TrancheID == "" || c.Period < 0 {
			return storage.ErrInvalidInput
		}
		if batchKeys[c.RunID] == nil {
			batchKeys[c.RunID] = make(map[cashflowKey]struct{})
		}
		k := cashflowKey{c.Period, c.TrancheID}
		if _, exists := batchKeys[c.RunID][k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[c.RunID][k] = struct{}{}
	}

	// Check for duplicates against existing rows
	for runID, keys := range batchKeys {
		existing, err := s.existingKeys(ctx, runID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for k := range keys {
			if _, exists := existing[k]; exists {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO tranche_cashflows (`+cashflowColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range flows {
		err = batch.Append(
			c.RunID, uint32(c.Period), c.TrancheID,
			c.BeginningBalance, c.InterestDue, c.InterestPaid, c.InterestShortfall,
			c.PrincipalPaid, c.Accretion, c.Writedown, c.EndingBalance,
			c.Rate, c.Busted,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by period ASC, tranche_id ASC.
func (s *CashflowStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TrancheCashflow, error) {
	query := `SELECT ` + cashflowColumns + ` FROM tranche_cashflows FINAL
		WHERE run_id = ?
		ORDER BY period ASC, tranche_id ASC`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run: %w", err)
	}
	defer rows.Close()

	return scanCashflows(rows)
}

// GetByTranche retrieves one tranche's records of a run, ordered by period ASC.
func (s *CashflowStore) GetByTranche(ctx context.Context, runID, trancheID string) ([]*domain.TrancheCashflow, error) {
	query := `SELECT ` + cashflowColumns + ` FROM tranche_cashflows FINAL
		WHERE run_id = ? AND tranche_id = ?
		ORDER BY period ASC`

	rows, err := s.conn.Query(ctx, query, runID, trancheID)
	if err != nil {
		return nil, fmt.Errorf("query by tranche: %w", err)
	}
	defer rows.Close()

	return scanCashflows(rows)
}

func (s *CashflowStore) existingKeys(ctx context.Context, runID string) (map[cashflowKey]struct{}, error) {
	rows, err := s.conn.Query(ctx, `SELECT period, tranche_id FROM tranche_cashflows FINAL WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[cashflowKey]struct{})
	for rows.Next() {
		var (
			period  uint32
			tranche string
		)
		if err := rows.Scan(&period, &tranche); err != nil {
			return nil, err
		}
		keys[cashflowKey{int(period), tranche}] = struct{}{}
	}
	return keys, rows.Err()
}

// scanCashflows scans multiple rows into a slice.
func scanCashflows(rows chRows) ([]*domain.TrancheCashflow, error) {
	var flows []*domain.TrancheCashflow

	for rows.Next() {
		var (
			c      domain.TrancheCashflow
			period uint32
		)
		err := rows.Scan(
			&c.RunID, &period, &c.TrancheID,
			&c.BeginningBalance, &c.InterestDue, &c.InterestPaid, &c.InterestShortfall,
			&c.PrincipalPaid, &c.Accretion, &c.Writedown, &c.EndingBalance,
			&c.Rate, &c.Busted,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cashflow row: %w", err)
		}
		c.Period = int(period)
		flows = append(flows, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cashflow rows: %w", err)
	}
	return flows, nil
}
