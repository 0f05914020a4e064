package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgersieve/ledgersieve/internal/classifier"
	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/workflow"
)

// StartCascade subscribes the retry cascade to taxonomy-creation signals.
// Whenever a node is created, queued items whose outcome a richer taxonomy
// could change are re-evaluated off the creating request's path. The
// returned cancel func removes the subscription.
func (e *Engine) StartCascade() func() {
	if e.bus == nil {
		return func() {}
	}
	return e.bus.Subscribe(workflow.KeyTaxonomyCreated, func(ctx context.Context, _ workflow.Signal) {
		e.runCascade(ctx)
	})
}

// runCascade re-runs classification for every pending review item parked
// on a taxonomy suggestion, against the refreshed taxonomy. A confident
// categorize resolves the item automatically; anything less replaces the
// stored suggestion and bumps the retry count, leaving the item pending.
func (e *Engine) runCascade(ctx context.Context) {
	items, err := e.storage.ListPendingReviews(ctx,
		model.ReasonNewTaxonomySuggestion, model.ReasonDuplicateTaxonomy)
	if err != nil {
		slog.Error("cascade failed to list pending reviews", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	slog.Info("taxonomy changed, re-evaluating queued items", "count", len(items))

	for i := range items {
		item := &items[i]
		if err := e.retryReviewItem(ctx, item); err != nil {
			slog.Warn("cascade re-evaluation failed",
				"review_item_id", item.ID,
				"error", err)
		}
	}
}

func (e *Engine) retryReviewItem(ctx context.Context, item *model.ReviewItem) error {
	txn, err := e.storage.GetTransactionByID(ctx, item.TransactionID)
	if err != nil {
		return err
	}

	outcome, err := e.evaluate(ctx, *txn)
	if err != nil {
		// The item stays pending with its previous suggestion; a human
		// can still act on it.
		return err
	}

	if outcome.Action == classifier.ActionCategorize &&
		outcome.Confidence >= e.cfg.ConfidenceThreshold {
		resolution := &model.Resolution{
			TransactionID: txn.ID,
			NodeID:        outcome.NodeID,
			Confidence:    outcome.Confidence,
			Reasoning:     outcome.Reasoning,
			Source:        model.SourceRetryAuto,
			ResolvedAt:    time.Now(),
		}
		if err := e.storage.ResolveReview(ctx, item.ID, resolution); err != nil {
			return err
		}

		slog.Info("cascade resolved review item",
			"review_item_id", item.ID,
			"node_id", outcome.NodeID,
			"confidence", outcome.Confidence)

		e.emit(ctx, model.OutcomeSignal{
			BatchID:       txn.BatchID,
			TransactionID: txn.ID,
			Kind:          model.OutcomeCategorized,
		})
		e.wakeReviewWaiters(ctx, txn.ID)
		return nil
	}

	suggestion, err := e.cascadeSuggestion(ctx, outcome)
	if err != nil {
		return err
	}
	return e.storage.UpdateReviewSuggestion(ctx, item.ID, suggestion)
}

// cascadeSuggestion converts an inconclusive re-run into the replacement
// suggestion, running proposals back through the taxonomy guard so a
// now-existing node is referenced instead of re-proposed.
func (e *Engine) cascadeSuggestion(ctx context.Context, outcome *classifier.Outcome) (*model.Suggestion, error) {
	if outcome.Action == classifier.ActionProposeNode && outcome.ProposedNode != nil {
		parentID := outcome.ProposedNode.ParentID
		if parentID == "" {
			parentID = model.RootNodeID
		}
		existing, err := e.storage.FindChild(ctx, parentID, outcome.ProposedNode.Name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &model.Suggestion{
				NodeID:     existing.ID,
				Confidence: outcome.Confidence,
				Reasoning:  outcome.Reasoning,
			}, nil
		}
		return &model.Suggestion{
			Confidence:   outcome.Confidence,
			Reasoning:    outcome.Reasoning,
			ProposedNode: outcome.ProposedNode,
		}, nil
	}

	return suggestionFromOutcome(outcome), nil
}
