package postgres

import (
	"context"
	"fmt"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// TriggerHistoryStore implements storage.TriggerHistoryStore using PostgreSQL.
type TriggerHistoryStore struct {
	pool *Pool
}

// NewTriggerHistoryStore creates a new TriggerHistoryStore.
func NewTriggerHistoryStore(pool *Pool) *TriggerHistoryStore {
	return &TriggerHistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TriggerHistoryStore = (*TriggerHistoryStore)(nil)

// InsertBulk adds a run's snapshots atomically. Fails entire batch on any duplicate.
func (s *TriggerHistoryStore) InsertBulk(ctx context.Context, runID string, snaps []*domain.TriggerSnapshot) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(snaps) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trigger_history (
			run_id, period, trigger_id, status,
			consecutive_passes, cure_threshold, months_breached,
			value, threshold, passed, cure_reset
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for _, t := range snaps {
		if t == nil || t.TriggerID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			runID, t.Period, t.TriggerID, string(t.Status),
			t.ConsecutivePasses, t.CureThreshold, t.MonthsBreached,
			t.Value, t.Threshold, t.Passed, t.CureReset,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trigger snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves all snapshots of a run, ordered by period ASC, trigger_id ASC.
func (s *TriggerHistoryStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TriggerSnapshot, error) {
	query := `
		SELECT
			period, trigger_id, status,
			consecutive_passes, cure_threshold, months_breached,
			value, threshold, passed, cure_reset
		FROM trigger_history
		WHERE run_id = $1
		ORDER BY period ASC, trigger_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get trigger history: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.TriggerSnapshot
	for rows.Next() {
		var (
			t      domain.TriggerSnapshot
			status string
		)
		err := rows.Scan(
			&t.Period, &t.TriggerID, &status,
			&t.ConsecutivePasses, &t.CureThreshold, &t.MonthsBreached,
			&t.Value, &t.Threshold, &t.Passed, &t.CureReset,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trigger snapshot row: %w", err)
		}
		t.Status = domain.TriggerStatus(status)
		snaps = append(snaps, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trigger snapshot rows: %w", err)
	}
	return snaps, nil
}
