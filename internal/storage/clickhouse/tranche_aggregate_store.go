package clickhouse

import (
	"context"
	"fmt"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// TrancheAggregateStore implements storage.TrancheAggregateStore using ClickHouse.
type TrancheAggregateStore struct {
	conn *Conn
}

// NewTrancheAggregateStore creates a new TrancheAggregateStore.
func NewTrancheAggregateStore(conn *Conn) *TrancheAggregateStore {
	return &TrancheAggregateStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TrancheAggregateStore = (*TrancheAggregateStore)(nil)

const aggregateColumns = `
	batch_id, deal_id, tranche_id, paths,
	wal_mean, wal_stddev, wal_p10, wal_p50, wal_p90,
	principal_mean, interest_mean, interest_stddev,
	writedown_mean, writedown_max, shortfall_paths
`

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
func (s *TrancheAggregateStore) InsertBulk(ctx context.Context, aggs []*domain.TrancheAggregate) error {
	if len(aggs) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(aggs))
	for _, a := range aggs {
		if a == nil || a.BatchID == "" || a.DealID == "" || a.TrancheID == "" {
			return storage.ErrInvalidInput
		}
		key := a.BatchID + "|" + a.TrancheID
		if _, exists := seen[key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, a := range aggs {
		n, err := s.conn.count(ctx,
			`SELECT count() FROM tranche_aggregates FINAL WHERE batch_id = ? AND tranche_id = ?`,
			a.BatchID, a.TrancheID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if n > 0 {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO tranche_aggregates (`+aggregateColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range aggs {
		err = batch.Append(
			a.BatchID, a.DealID, a.TrancheID, uint32(a.Paths),
			a.WALMean, a.WALStddev, a.WALP10, a.WALP50, a.WALP90,
			a.PrincipalMean, a.InterestMean, a.InterestStddev,
			a.WritedownMean, a.WritedownMax, uint32(a.ShortfallPaths),
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

// GetByBatch retrieves the aggregates of one execution, ordered by tranche_id ASC.
func (s *TrancheAggregateStore) GetByBatch(ctx context.Context, batchID string) ([]*domain.TrancheAggregate, error) {
	query := `SELECT ` + aggregateColumns + ` FROM tranche_aggregates FINAL
		WHERE batch_id = ?
		ORDER BY tranche_id ASC`

	rows, err := s.conn.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("query by batch: %w", err)
	}
	defer rows.Close()

	return scanAggregates(rows)
}

// GetByDeal retrieves all aggregates for a deal, ordered by batch_id ASC, tranche_id ASC.
func (s *TrancheAggregateStore) GetByDeal(ctx context.Context, dealID string) ([]*domain.TrancheAggregate, error) {
	query := `SELECT ` + aggregateColumns + ` FROM tranche_aggregates FINAL
		WHERE deal_id = ?
		ORDER BY batch_id ASC, tranche_id ASC`

	rows, err := s.conn.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("query by deal: %w", err)
	}
	defer rows.Close()

	return scanAggregates(rows)
}

// scanAggregates scans multiple rows into a slice.
func scanAggregates(rows chRows) ([]*domain.TrancheAggregate, error) {
	var aggs []*domain.TrancheAggregate

	for rows.Next() {
		var (
			a                domain.TrancheAggregate
			paths, shortfall uint32
		)
		err := rows.Scan(
			&a.BatchID, &a.DealID, &a.TrancheID, &paths,
			&a.WALMean, &a.WALStddev, &a.WALP10, &a.WALP50, &a.WALP90,
			&a.PrincipalMean, &a.InterestMean, &a.InterestStddev,
			&a.WritedownMean, &a.WritedownMax, &shortfall,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		a.Paths = int(paths)
		a.ShortfallPaths = int(shortfall)
		aggs = append(aggs, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return aggs, nil
}
