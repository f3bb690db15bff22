package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// TriggerHistoryStore is an in-memory implementation of storage.TriggerHistoryStore.
type TriggerHistoryStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.TriggerSnapshot // keyed by run_id
	keys map[string]struct{}                  // run_id|period|trigger_id
}

// NewTriggerHistoryStore creates a new in-memory trigger history store.
func NewTriggerHistoryStore() *TriggerHistoryStore {
	return &TriggerHistoryStore{
		data: make(map[string][]*domain.TriggerSnapshot),
		keys: make(map[string]struct{}),
	}
}

// InsertBulk adds a run's snapshots atomically. Fails entire batch on any duplicate.
func (s *TriggerHistoryStore) InsertBulk(_ context.Context, runID string, snaps []*domain.TriggerSnapshot) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(snaps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(snaps))
	for _, t := range snaps {
		if t == nil || t.TriggerID == "" {
			return storage.ErrInvalidInput
		}
		key := fmt.Sprintf("%s|%d|%s", runID, t.Period, t.TriggerID)
		if _, exists := s.keys[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, t := range snaps {
		copy := *t
		s.data[runID] = append(s.data[runID], &copy)
	}
	for key := range batchKeys {
		s.keys[key] = struct{}{}
	}
	return nil
}

// GetByRunID retrieves all snapshots of a run, ordered by period ASC, trigger_id ASC.
func (s *TriggerHistoryStore) GetByRunID(_ context.Context, runID string) ([]*domain.TriggerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TriggerSnapshot, 0, len(s.data[runID]))
	for _, t := range s.data[runID] {
		copy := *t
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Period != result[j].Period {
			return result[i].Period < result[j].Period
		}
		return result[i].TriggerID < result[j].TriggerID
	})
	return result, nil
}

var _ storage.TriggerHistoryStore = (*TriggerHistoryStore)(nil)
