package clickhouse

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

func cashflow(runID string, period int, tranche, principal string) *domain.TrancheCashflow {
	p := decimal.RequireFromString(principal)
	return &domain.TrancheCashflow{
		RunID:             runID,
		Period:            period,
		TrancheID:         tranche,
		BeginningBalance:  decimal.RequireFromString("1000000.00"),
		InterestDue:       decimal.RequireFromString("4166.67"),
		InterestPaid:      decimal.RequireFromString("4000.00"),
		InterestShortfall: decimal.RequireFromString("166.67"),
		PrincipalPaid:     p,
		Accretion:         decimal.Zero,
		Writedown:         decimal.Zero,
		EndingBalance:     decimal.RequireFromString("1000000.00").Sub(p),
		Rate:              0.05,
		Busted:            tranche == "PAC",
	}
}

func TestCashflowStore_InsertBulkAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCashflowStore(conn)
	ctx := context.Background()

	flows := []*domain.TrancheCashflow{
		cashflow("run1", 2, "PAC", "1500.25"),
		cashflow("run1", 1, "SUP", "0"),
		cashflow("run1", 1, "PAC", "36123.01"),
		cashflow("run2", 1, "PAC", "10"),
	}
	require.NoError(t, store.InsertBulk(ctx, flows))

	got, err := store.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].Period)
	assert.Equal(t, "PAC", got[0].TrancheID)
	assert.True(t, got[0].PrincipalPaid.Equal(decimal.RequireFromString("36123.01")))
	assert.True(t, got[0].InterestShortfall.Equal(decimal.RequireFromString("166.67")))
	assert.True(t, got[0].Busted)
	assert.Equal(t, "SUP", got[1].TrancheID)
	assert.False(t, got[1].Busted)
	assert.Equal(t, 2, got[2].Period)

	pac, err := store.GetByTranche(ctx, "run1", "PAC")
	require.NoError(t, err)
	require.Len(t, pac, 2)
	assert.InDelta(t, 0.05, pac[1].Rate, 1e-12)
}

func TestCashflowStore_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCashflowStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.TrancheCashflow{cashflow("run1", 1, "A", "1")}))

	err := store.InsertBulk(ctx, []*domain.TrancheCashflow{
		cashflow("run1", 2, "A", "1"),
		cashflow("run1", 1, "A", "1"),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, []*domain.TrancheCashflow{
		cashflow("run1", 3, "A", "1"),
		cashflow("run1", 3, "A", "1"),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
