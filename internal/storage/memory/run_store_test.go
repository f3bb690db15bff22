package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

func TestRunStore_InsertAndGet(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	failed := 7
	run := &domain.RunRecord{
		RunID:        "run1",
		DealID:       "DEAL-1",
		PathID:       "stress",
		Periods:      6,
		Status:       domain.RunStatusFailed,
		FailedPeriod: &failed,
		Error:        "solver: did not converge",
	}

	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Stored copy must not alias the caller's pointer.
	failed = 99

	got, err := store.GetByID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.FailedPeriod == nil || *got.FailedPeriod != 7 {
		t.Errorf("FailedPeriod mismatch: got %v, want 7", got.FailedPeriod)
	}
	if got.Status != domain.RunStatusFailed {
		t.Errorf("Status mismatch: got %s", got.Status)
	}
}

func TestRunStore_DuplicateKey(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := &domain.RunRecord{RunID: "run1", DealID: "DEAL-1", PathID: "base"}
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, run)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestRunStore_InvalidInput(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	for _, r := range []*domain.RunRecord{nil, {DealID: "DEAL-1"}, {RunID: "run1"}} {
		if err := store.Insert(ctx, r); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for %+v, got %v", r, err)
		}
	}
}

func TestRunStore_NotFound(t *testing.T) {
	store := NewRunStore()

	_, err := store.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRunStore_GetByDeal(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	runs := []*domain.RunRecord{
		{RunID: "r3", DealID: "DEAL-1", PathID: "stress"},
		{RunID: "r1", DealID: "DEAL-1", PathID: "base"},
		{RunID: "r2", DealID: "DEAL-2", PathID: "base"},
	}
	for _, r := range runs {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByDeal(ctx, "DEAL-1")
	if err != nil {
		t.Fatalf("GetByDeal failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(got))
	}
	if got[0].PathID != "base" || got[1].PathID != "stress" {
		t.Errorf("Expected path order base, stress; got %s, %s", got[0].PathID, got[1].PathID)
	}
}
