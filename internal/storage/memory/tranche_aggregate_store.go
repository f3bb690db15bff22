package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// TrancheAggregateStore is an in-memory implementation of storage.TrancheAggregateStore.
type TrancheAggregateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TrancheAggregate // keyed by batch_id|tranche_id
}

// NewTrancheAggregateStore creates a new in-memory aggregate store.
func NewTrancheAggregateStore() *TrancheAggregateStore {
	return &TrancheAggregateStore{
		data: make(map[string]*domain.TrancheAggregate),
	}
}

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
func (s *TrancheAggregateStore) InsertBulk(_ context.Context, aggs []*domain.TrancheAggregate) error {
	if len(aggs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(aggs))
	for _, a := range aggs {
		if a == nil || a.BatchID == "" || a.DealID == "" || a.TrancheID == "" {
			return storage.ErrInvalidInput
		}
		key := a.BatchID + "|" + a.TrancheID
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, a := range aggs {
		copy := *a
		s.data[a.BatchID+"|"+a.TrancheID] = &copy
	}
	return nil
}

// GetByBatch retrieves the aggregates of one execution, ordered by tranche_id ASC.
func (s *TrancheAggregateStore) GetByBatch(_ context.Context, batchID string) ([]*domain.TrancheAggregate, error) {
	return s.filter(func(a *domain.TrancheAggregate) bool { return a.BatchID == batchID }), nil
}

// GetByDeal retrieves all aggregates for a deal, ordered by batch_id ASC, tranche_id ASC.
func (s *TrancheAggregateStore) GetByDeal(_ context.Context, dealID string) ([]*domain.TrancheAggregate, error) {
	return s.filter(func(a *domain.TrancheAggregate) bool { return a.DealID == dealID }), nil
}

func (s *TrancheAggregateStore) filter(keep func(*domain.TrancheAggregate) bool) []*domain.TrancheAggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TrancheAggregate
	for _, a := range s.data {
		if keep(a) {
			copy := *a
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].BatchID != result[j].BatchID {
			return result[i].BatchID < result[j].BatchID
		}
		return result[i].TrancheID < result[j].TrancheID
	})
	return result
}

var _ storage.TrancheAggregateStore = (*TrancheAggregateStore)(nil)
