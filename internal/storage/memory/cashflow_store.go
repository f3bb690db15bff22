package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// CashflowStore is an in-memory implementation of storage.CashflowStore.
type CashflowStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.TrancheCashflow // keyed by run_id
	keys map[string]struct{}                  // run_id|period|tranche_id
}

// NewCashflowStore creates a new in-memory cashflow store.
func NewCashflowStore() *CashflowStore {
	return &CashflowStore{
		data: make(map[string][]*domain.TrancheCashflow),
		keys: make(map[string]struct{}),
	}
}

func cashflowKey(c *domain.TrancheCashflow) string {
	return fmt.Sprintf("%s|%d|%s", c.RunID, c.Period, c.TrancheID)
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *CashflowStore) InsertBulk(_ context.Context, flows []*domain.TrancheCashflow) error {
	if len(flows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(flows))
	for _, c := range flows {
		if c == nil || c.RunID == "" || c.TrancheID == "" {
			return storage.ErrInvalidInput
		}
		key := cashflowKey(c)
		if _, exists := s.keys[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, c := range flows {
		copy := *c
		s.data[c.RunID] = append(s.data[c.RunID], &copy)
		s.keys[cashflowKey(c)] = struct{}{}
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by period ASC, tranche_id ASC.
func (s *CashflowStore) GetByRunID(_ context.Context, runID string) ([]*domain.TrancheCashflow, error) {
	return s.filter(runID, func(*domain.TrancheCashflow) bool { return true }), nil
}

// GetByTranche retrieves one tranche's records of a run, ordered by period ASC.
func (s *CashflowStore) GetByTranche(_ context.Context, runID, trancheID string) ([]*domain.TrancheCashflow, error) {
	return s.filter(runID, func(c *domain.TrancheCashflow) bool { return c.TrancheID == trancheID }), nil
}

func (s *CashflowStore) filter(runID string, keep func(*domain.TrancheCashflow) bool) []*domain.TrancheCashflow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TrancheCashflow
	for _, c := range s.data[runID] {
		if keep(c) {
			copy := *c
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Period != result[j].Period {
			return result[i].Period < result[j].Period
		}
		return result[i].TrancheID < result[j].TrancheID
	})
	return result
}

var _ storage.CashflowStore = (*CashflowStore)(nil)
