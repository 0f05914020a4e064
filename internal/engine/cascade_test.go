package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersieve/ledgersieve/internal/classifier"
	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/testutil"
)

func TestCascadeResolvesConfidentRerun(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t)

	testutil.SeedBatch(t, f.store, "b1", 1)
	txn := testutil.SeedTransaction(t, f.store, "b1", "Chevron", "CHEVRON STATION 12", 45.00)
	queueForReview(t, f, txn, model.ReasonNewTaxonomySuggestion)

	cancel := f.engine.StartCascade()
	defer cancel()

	// Approving the suggested node makes the re-run confident.
	node, err := f.engine.CreateNode(ctx, model.NodePlan{Name: "Fuel", ParentID: model.RootNodeID})
	require.NoError(t, err)

	f.mock.Script(txn.ID, classifier.Outcome{
		Action:     classifier.ActionCategorize,
		NodeID:     node.ID,
		Confidence: 0.9,
	})

	// CreateNode above already fired before the script was in place; run a
	// second creation to trigger the cascade against the scripted outcome.
	_, err = f.engine.CreateNode(ctx, model.NodePlan{Name: "Tolls", ParentID: model.RootNodeID})
	require.NoError(t, err)
	f.bus.Drain()

	saved, err := f.store.GetReviewItem(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewResolved, saved.Status)

	resolution, err := f.store.GetResolution(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, node.ID, resolution.NodeID)
	assert.Equal(t, model.SourceRetryAuto, resolution.Source)
}

func TestCascadeReplacesInconclusiveSuggestion(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t)

	node := testutil.SeedNode(t, f.store, "Fuel", model.RootNodeID)
	testutil.SeedBatch(t, f.store, "b1", 1)
	txn := testutil.SeedTransaction(t, f.store, "b1", "Chevron", "CHEVRON STATION 12", 45.00)
	queueForReview(t, f, txn, model.ReasonDuplicateTaxonomy)

	f.mock.Script(txn.ID, classifier.Outcome{
		Action:     classifier.ActionCategorize,
		NodeID:     node.ID,
		Confidence: 0.5,
		Reasoning:  "still not sure",
	})

	cancel := f.engine.StartCascade()
	defer cancel()

	_, err := f.engine.CreateNode(ctx, model.NodePlan{Name: "Tolls", ParentID: model.RootNodeID})
	require.NoError(t, err)
	f.bus.Drain()

	saved, err := f.store.GetReviewItem(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, saved.Status)
	assert.Equal(t, 1, saved.RetryCount)
	require.NotNil(t, saved.Suggestion)
	assert.Equal(t, node.ID, saved.Suggestion.NodeID)
	assert.Equal(t, "still not sure", saved.Suggestion.Reasoning)
	assert.NotNil(t, saved.RetryingSince)
}

func TestCascadeRerunsGuardOnProposals(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t)

	testutil.SeedBatch(t, f.store, "b1", 1)
	txn := testutil.SeedTransaction(t, f.store, "b1", "Chevron", "CHEVRON STATION 12", 45.00)
	queueForReview(t, f, txn, model.ReasonNewTaxonomySuggestion)

	// The re-run proposes a node that meanwhile came to exist; the
	// replacement suggestion must reference it, not re-propose it.
	f.mock.Script(txn.ID, classifier.Outcome{
		Action:     classifier.ActionProposeNode,
		Confidence: 0.6,
		ProposedNode: &model.NodePlan{
			Name:     "fuel",
			ParentID: model.RootNodeID,
		},
	})

	cancel := f.engine.StartCascade()
	defer cancel()

	node, err := f.engine.CreateNode(ctx, model.NodePlan{Name: "Fuel", ParentID: model.RootNodeID})
	require.NoError(t, err)
	f.bus.Drain()

	saved, err := f.store.GetReviewItem(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, saved.Status)
	require.NotNil(t, saved.Suggestion)
	assert.Equal(t, node.ID, saved.Suggestion.NodeID)
	assert.Nil(t, saved.Suggestion.ProposedNode)
}

func TestCascadeSkipsOtherReasons(t *testing.T) {
	ctx := context.Background()
	f := newTestEngine(t)

	testutil.SeedBatch(t, f.store, "b1", 2)
	ambiguous := testutil.SeedTransaction(t, f.store, "b1", "PAYPAL *JDOE", "PAYPAL TRANSFER", 25.00)
	failed := testutil.SeedTransaction(t, f.store, "b1", "Ritual", "RITUAL ROASTERS", 4.75)
	queueForReview(t, f, ambiguous, model.ReasonAmbiguousCounterparty)
	queueForReview(t, f, failed, model.ReasonClassifierFailure)

	cancel := f.engine.StartCascade()
	defer cancel()

	_, err := f.engine.CreateNode(ctx, model.NodePlan{Name: "Fuel", ParentID: model.RootNodeID})
	require.NoError(t, err)
	f.bus.Drain()

	// Neither item was touched: taxonomy growth cannot disambiguate a vague
	// counterparty or revive a failed classifier call.
	assert.Equal(t, 0, f.mock.CallCount(ambiguous.ID))
	assert.Equal(t, 0, f.mock.CallCount(failed.ID))
}
