package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/testutil"
)

func TestReviewItems(t *testing.T) {
	ctx := context.Background()

	t.Run("one item per transaction, replaced on re-queue", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		testutil.SeedBatch(t, store, "b1", 1)
		txn := testutil.SeedTransaction(t, store, "b1", "Mystery", "MYSTERY CHG", 9.99)

		require.NoError(t, store.SaveReviewItem(ctx, &model.ReviewItem{
			TransactionID: txn.ID,
			BatchID:       "b1",
			Reason:        model.ReasonLowConfidence,
		}))
		require.NoError(t, store.SaveReviewItem(ctx, &model.ReviewItem{
			TransactionID: txn.ID,
			BatchID:       "b1",
			Reason:        model.ReasonAmbiguousCounterparty,
		}))

		items, err := store.ListPendingReviews(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, model.ReasonAmbiguousCounterparty, items[0].Reason)
	})

	t.Run("reason filter selects cascade-eligible items", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		testutil.SeedBatch(t, store, "b1", 3)

		for i, reason := range []model.ReviewReason{
			model.ReasonNewTaxonomySuggestion,
			model.ReasonDuplicateTaxonomy,
			model.ReasonClassifierFailure,
		} {
			txn := testutil.SeedTransaction(t, store, "b1", "M", "DESC", float64(i+1))
			require.NoError(t, store.SaveReviewItem(ctx, &model.ReviewItem{
				TransactionID: txn.ID,
				BatchID:       "b1",
				Reason:        reason,
			}))
		}

		items, err := store.ListPendingReviews(ctx,
			model.ReasonNewTaxonomySuggestion, model.ReasonDuplicateTaxonomy)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("suggestion round-trips including proposed node", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		testutil.SeedBatch(t, store, "b1", 1)
		txn := testutil.SeedTransaction(t, store, "b1", "New Vendor", "NEW VENDOR", 20)

		require.NoError(t, store.SaveReviewItem(ctx, &model.ReviewItem{
			TransactionID: txn.ID,
			BatchID:       "b1",
			Reason:        model.ReasonNewTaxonomySuggestion,
			Suggestion: &model.Suggestion{
				Confidence: 0.6,
				Reasoning:  "looks like a gym",
				ProposedNode: &model.NodePlan{
					Name:     "Fitness",
					ParentID: model.RootNodeID,
				},
			},
		}))

		item, err := store.GetReviewItem(ctx, txn.ID)
		require.NoError(t, err)
		require.NotNil(t, item.Suggestion)
		require.NotNil(t, item.Suggestion.ProposedNode)
		assert.Equal(t, "Fitness", item.Suggestion.ProposedNode.Name)
	})

	t.Run("update suggestion bumps retry bookkeeping", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		testutil.SeedBatch(t, store, "b1", 1)
		txn := testutil.SeedTransaction(t, store, "b1", "M", "DESC", 5)

		require.NoError(t, store.SaveReviewItem(ctx, &model.ReviewItem{
			TransactionID: txn.ID,
			BatchID:       "b1",
			Reason:        model.ReasonNewTaxonomySuggestion,
		}))

		require.NoError(t, store.UpdateReviewSuggestion(ctx, txn.ID, &model.Suggestion{
			NodeID:     "n1",
			Confidence: 0.55,
		}))

		item, err := store.GetReviewItem(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, item.RetryCount)
		assert.NotNil(t, item.RetryingSince)
		require.NotNil(t, item.Suggestion)
		assert.Equal(t, "n1", item.Suggestion.NodeID)
	})

	t.Run("resolve writes resolution and flips status atomically", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		node := testutil.SeedNode(t, store, "Groceries", "")
		testutil.SeedBatch(t, store, "b1", 1)
		txn := testutil.SeedTransaction(t, store, "b1", "Market", "MARKET", 30)

		require.NoError(t, store.SaveReviewItem(ctx, &model.ReviewItem{
			TransactionID: txn.ID,
			BatchID:       "b1",
			Reason:        model.ReasonLowConfidence,
		}))

		require.NoError(t, store.ResolveReview(ctx, txn.ID, &model.Resolution{
			TransactionID: txn.ID,
			NodeID:        node.ID,
			Confidence:    1.0,
			Source:        model.SourceManual,
		}))

		item, err := store.GetReviewItem(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReviewResolved, item.Status)

		res, err := store.GetResolution(ctx, txn.ID)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, node.ID, res.NodeID)

		// A second resolve of the same item is rejected.
		err = store.ResolveReview(ctx, txn.ID, nil)
		assert.Error(t, err)
	})
}
