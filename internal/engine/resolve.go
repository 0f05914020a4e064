package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgersieve/ledgersieve/internal/common"
	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/split"
	"github.com/ledgersieve/ledgersieve/internal/workflow"
)

// ResolveRequest is the wire shape of a human review decision. Exactly one
// of NodeID, NewNode, or SplitChildren must be set.
type ResolveRequest struct {
	ReviewItemID   string          `json:"reviewItemId"`
	NodeID         string          `json:"nodeId,omitempty"`
	NewNode        *model.NodePlan `json:"newNode,omitempty"`
	SplitChildren  []split.Child   `json:"splitChildren,omitempty"`
	AbsorbResidual bool            `json:"absorbResidual,omitempty"`
}

// ResolveResult reports what a resolution produced. Children is non-empty
// only for splits; each child has been persisted in Pending and still
// needs its own pass through Process.
type ResolveResult struct {
	Resolution *model.Resolution
	Children   []model.Transaction
}

// Resolve applies a human decision to a pending review item: assign an
// existing node, create a new node and assign it, or split the transaction
// into independently-classified children. The resolution write and the
// review status flip happen in one logical step.
func (e *Engine) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	if req.ReviewItemID == "" {
		return nil, common.NewValidationError("reviewItemId is required", common.ErrMissingField)
	}
	if err := validateExclusiveChoice(req); err != nil {
		return nil, err
	}

	item, err := e.storage.GetReviewItem(ctx, req.ReviewItemID)
	if err != nil {
		return nil, err
	}
	if item.Status != model.ReviewPending {
		return nil, common.NewValidationError(
			fmt.Sprintf("review item %s is already resolved", item.ID), nil)
	}

	txn, err := e.storage.GetTransactionByID(ctx, item.TransactionID)
	if err != nil {
		return nil, err
	}

	if len(req.SplitChildren) > 0 {
		return e.resolveSplit(ctx, item, txn, req)
	}

	nodeID := req.NodeID
	if req.NewNode != nil {
		node, err := e.CreateNode(ctx, *req.NewNode)
		if err != nil {
			return nil, fmt.Errorf("failed to create node: %w", err)
		}
		nodeID = node.ID
	} else if _, err := e.storage.GetNode(ctx, nodeID); err != nil {
		return nil, err
	}

	resolution := &model.Resolution{
		TransactionID: txn.ID,
		NodeID:        nodeID,
		Confidence:    1.0,
		Reasoning:     "resolved by reviewer",
		Source:        model.SourceManual,
		ResolvedAt:    time.Now(),
	}

	if err := e.storage.ResolveReview(ctx, item.ID, resolution); err != nil {
		return nil, err
	}

	slog.Info("review item resolved",
		"review_item_id", item.ID,
		"transaction_id", txn.ID,
		"node_id", nodeID)

	// Same outcome-signal contract as the state machine; the aggregator
	// absorbs it when the item was already counted as queued.
	e.emit(ctx, model.OutcomeSignal{
		BatchID:       txn.BatchID,
		TransactionID: txn.ID,
		Kind:          model.OutcomeCategorized,
	})
	e.wakeReviewWaiters(ctx, txn.ID)

	return &ResolveResult{Resolution: resolution}, nil
}

// resolveSplit spawns independently-classified children and retires the
// parent into the terminal Split state, which carries no resolution.
func (e *Engine) resolveSplit(ctx context.Context, item *model.ReviewItem, txn *model.Transaction, req ResolveRequest) (*ResolveResult, error) {
	children, err := split.Validate(txn, req.SplitChildren, req.AbsorbResidual)
	if err != nil {
		return nil, err
	}

	spawned := split.Spawn(txn, children)

	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.SaveTransactions(ctx, spawned); err != nil {
		return nil, fmt.Errorf("failed to save split children: %w", err)
	}
	if err := tx.AddBatchItems(ctx, txn.BatchID, len(spawned)); err != nil {
		return nil, err
	}
	if err := tx.ResolveReview(ctx, item.ID, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit split: %w", err)
	}

	slog.Info("transaction split",
		"parent_id", txn.ID,
		"children", len(spawned))

	e.wakeReviewWaiters(ctx, txn.ID)
	return &ResolveResult{Children: spawned}, nil
}

func (e *Engine) wakeReviewWaiters(ctx context.Context, transactionID string) {
	if e.bus != nil {
		e.bus.Dispatch(ctx, workflow.Signal{
			Key:     workflow.KeyReviewPrefix + transactionID,
			Payload: transactionID,
		})
	}
}

func validateExclusiveChoice(req ResolveRequest) error {
	choices := 0
	if req.NodeID != "" {
		choices++
	}
	if req.NewNode != nil {
		choices++
	}
	if len(req.SplitChildren) > 0 {
		choices++
	}
	if choices != 1 {
		return common.NewValidationError(
			"exactly one of nodeId, newNode, or splitChildren must be provided",
			common.ErrMissingField)
	}
	return nil
}
