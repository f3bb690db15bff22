package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// DiagnosticsStore is an in-memory implementation of storage.DiagnosticsStore.
type DiagnosticsStore struct {
	mu   sync.RWMutex
	data map[string]map[int]*domain.SolverDiagnostics // run_id -> period
}

// NewDiagnosticsStore creates a new in-memory diagnostics store.
func NewDiagnosticsStore() *DiagnosticsStore {
	return &DiagnosticsStore{
		data: make(map[string]map[int]*domain.SolverDiagnostics),
	}
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *DiagnosticsStore) InsertBulk(_ context.Context, diags []*domain.SolverDiagnostics) error {
	if len(diags) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		runID  string
		period int
	}
	batchKeys := make(map[key]struct{}, len(diags))
	for _, d := range diags {
		if d == nil || d.RunID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[d.RunID][d.Period]; exists {
			return storage.ErrDuplicateKey
		}
		k := key{d.RunID, d.Period}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, d := range diags {
		if s.data[d.RunID] == nil {
			s.data[d.RunID] = make(map[int]*domain.SolverDiagnostics)
		}
		copy := *d
		s.data[d.RunID][d.Period] = &copy
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by period ASC.
func (s *DiagnosticsStore) GetByRunID(_ context.Context, runID string) ([]*domain.SolverDiagnostics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SolverDiagnostics, 0, len(s.data[runID]))
	for _, d := range s.data[runID] {
		copy := *d
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Period < result[j].Period
	})
	return result, nil
}

var _ storage.DiagnosticsStore = (*DiagnosticsStore)(nil)
