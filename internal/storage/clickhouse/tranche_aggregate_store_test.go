package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

func TestTrancheAggregateStore_InsertBulkAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTrancheAggregateStore(conn)
	ctx := context.Background()

	a := &domain.TrancheAggregate{
		BatchID: "b1", DealID: "DEAL-1", TrancheID: "A", Paths: 100,
		WALMean: 4.2, WALStddev: 0.8, WALP10: 3.1, WALP50: 4.1, WALP90: 5.4,
		PrincipalMean: 8e6, InterestMean: 1.2e6, InterestStddev: 1e5,
		WritedownMean: 0, WritedownMax: 0, ShortfallPaths: 3,
	}
	b := &domain.TrancheAggregate{BatchID: "b1", DealID: "DEAL-1", TrancheID: "B", Paths: 100, WritedownMax: 250000}
	other := &domain.TrancheAggregate{BatchID: "b0", DealID: "DEAL-1", TrancheID: "A", Paths: 10}
	require.NoError(t, store.InsertBulk(ctx, []*domain.TrancheAggregate{b, a, other}))

	batch, err := store.GetByBatch(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, a, batch[0])
	assert.Equal(t, "B", batch[1].TrancheID)

	deal, err := store.GetByDeal(ctx, "DEAL-1")
	require.NoError(t, err)
	require.Len(t, deal, 3)
	assert.Equal(t, "b0", deal[0].BatchID)
}

func TestTrancheAggregateStore_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTrancheAggregateStore(conn)
	ctx := context.Background()

	a := &domain.TrancheAggregate{BatchID: "b1", DealID: "DEAL-1", TrancheID: "A"}
	require.NoError(t, store.InsertBulk(ctx, []*domain.TrancheAggregate{a}))
	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.TrancheAggregate{a}), storage.ErrDuplicateKey)
}
