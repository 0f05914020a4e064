package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/testutil"
)

func TestSaveResolution(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	node := testutil.SeedNode(t, store, "Groceries", "")
	other := testutil.SeedNode(t, store, "Dining", "")
	testutil.SeedBatch(t, store, "b1", 1)
	txn := testutil.SeedTransaction(t, store, "b1", "Whole Foods", "WHOLEFDS #10", 82.15)

	t.Run("upsert overwrites in place", func(t *testing.T) {
		require.NoError(t, store.SaveResolution(ctx, &model.Resolution{
			TransactionID: txn.ID,
			NodeID:        node.ID,
			Confidence:    0.91,
			Source:        model.SourceAuto,
		}))

		require.NoError(t, store.SaveResolution(ctx, &model.Resolution{
			TransactionID: txn.ID,
			NodeID:        other.ID,
			Confidence:    1.0,
			Source:        model.SourceManual,
		}))

		res, err := store.GetResolution(ctx, txn.ID)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, other.ID, res.NodeID)
		assert.Equal(t, model.SourceManual, res.Source)
	})

	t.Run("invalid source is rejected", func(t *testing.T) {
		err := store.SaveResolution(ctx, &model.Resolution{
			TransactionID: txn.ID,
			NodeID:        node.ID,
			Source:        "guesswork",
		})
		assert.Error(t, err)
	})

	t.Run("unresolved transaction returns nil", func(t *testing.T) {
		res, err := store.GetResolution(ctx, "unknown")
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestListResolvedExemplars(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	node := testutil.SeedNode(t, store, "Coffee Shops", "")
	testutil.SeedBatch(t, store, "b1", 2)

	resolved := testutil.SeedTransaction(t, store, "b1", "Blue Bottle", "BLUE BOTTLE #7", 5.25)
	queued := testutil.SeedTransaction(t, store, "b1", "Mystery Corp", "MYSTERY CHG", 12.00)

	require.NoError(t, store.SaveResolution(ctx, &model.Resolution{
		TransactionID: resolved.ID,
		NodeID:        node.ID,
		Confidence:    0.95,
		Source:        model.SourceAuto,
	}))
	require.NoError(t, store.SaveReviewItem(ctx, &model.ReviewItem{
		TransactionID: queued.ID,
		BatchID:       "b1",
		Reason:        model.ReasonAmbiguousCounterparty,
	}))

	exemplars, err := store.ListResolvedExemplars(ctx)
	require.NoError(t, err)
	require.Len(t, exemplars, 1, "queued items are not exemplar candidates")
	assert.Equal(t, resolved.ID, exemplars[0].TransactionID)
	assert.Equal(t, node.ID, exemplars[0].NodeID)
	assert.Equal(t, "Coffee Shops", exemplars[0].NodeName)
}
