package storage

import (
	"context"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// RunStore provides access to runs storage.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.RunRecord) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunRecord, error)

	// GetByDeal retrieves all runs for a deal, ordered by path_id ASC.
	GetByDeal(ctx context.Context, dealID string) ([]*domain.RunRecord, error)
}

// CashflowStore provides access to tranche_cashflows storage.
type CashflowStore interface {
	// InsertBulk adds multiple records atomically.
	// Fails entire batch on duplicate (run_id, period, tranche_id).
	InsertBulk(ctx context.Context, flows []*domain.TrancheCashflow) error

	// GetByRunID retrieves all records of a run, ordered by period ASC, tranche_id ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TrancheCashflow, error)

	// GetByTranche retrieves one tranche's records of a run, ordered by period ASC.
	GetByTranche(ctx context.Context, runID, trancheID string) ([]*domain.TrancheCashflow, error)
}

// TriggerHistoryStore provides access to trigger_history storage.
type TriggerHistoryStore interface {
	// InsertBulk adds a run's trigger snapshots atomically.
	// Fails entire batch on duplicate (run_id, period, trigger_id).
	InsertBulk(ctx context.Context, runID string, snaps []*domain.TriggerSnapshot) error

	// GetByRunID retrieves all snapshots of a run, ordered by period ASC, trigger_id ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TriggerSnapshot, error)
}

// DiagnosticsStore provides access to solver_diagnostics storage.
type DiagnosticsStore interface {
	// InsertBulk adds multiple records atomically. Fails entire batch on duplicate (run_id, period).
	InsertBulk(ctx context.Context, diags []*domain.SolverDiagnostics) error

	// GetByRunID retrieves all records of a run, ordered by period ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.SolverDiagnostics, error)
}

// TrancheAggregateStore provides access to tranche_aggregates storage.
type TrancheAggregateStore interface {
	// InsertBulk adds multiple aggregates atomically.
	// Fails entire batch on duplicate (batch_id, tranche_id).
	InsertBulk(ctx context.Context, aggs []*domain.TrancheAggregate) error

	// GetByBatch retrieves the aggregates of one execution, ordered by tranche_id ASC.
	GetByBatch(ctx context.Context, batchID string) ([]*domain.TrancheAggregate, error)

	// GetByDeal retrieves all aggregates for a deal, ordered by batch_id ASC, tranche_id ASC.
	GetByDeal(ctx context.Context, dealID string) ([]*domain.TrancheAggregate, error)
}

// Stores bundles the sinks a simulation batch persists into.
// Nil members are skipped.
type Stores struct {
	Runs        RunStore
	Cashflows   CashflowStore
	Triggers    TriggerHistoryStore
	Diagnostics DiagnosticsStore
	Aggregates  TrancheAggregateStore
}
