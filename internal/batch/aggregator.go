// Package batch implements the eventually-consistent completion aggregator
// for batch runs.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/workflow"
)

// Store is the slice of persistence the aggregator needs.
type Store interface {
	RecordOutcome(ctx context.Context, signal model.OutcomeSignal) (bool, error)
	CompleteBatchIfDone(ctx context.Context, batchID string) (bool, error)
	GetBatch(ctx context.Context, id string) (*model.BatchRun, error)
}

// Aggregator folds per-item outcome signals into per-batch counters and
// flips batch status to categorizationDone exactly once. It tolerates
// signals arriving batched, out of order, and more than once; there is no
// central lock, only the guarded transitions in the store.
type Aggregator struct {
	store Store
	bus   workflow.Bus
}

// NewAggregator creates a completion aggregator.
func NewAggregator(store Store, bus workflow.Bus) *Aggregator {
	return &Aggregator{store: store, bus: bus}
}

// Apply folds one outcome signal into its batch. Redelivered signals are
// absorbed without moving counters, and re-checking completion for an
// already-done batch never double-transitions status.
func (a *Aggregator) Apply(ctx context.Context, signal model.OutcomeSignal) error {
	applied, err := a.store.RecordOutcome(ctx, signal)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	if !applied {
		slog.Debug("outcome signal redelivered, ignoring",
			"batch_id", signal.BatchID,
			"transaction_id", signal.TransactionID)
	}

	flipped, err := a.store.CompleteBatchIfDone(ctx, signal.BatchID)
	if err != nil {
		return fmt.Errorf("failed to check batch completion: %w", err)
	}

	if flipped {
		slog.Info("batch categorization done", "batch_id", signal.BatchID)
		if a.bus != nil {
			a.bus.Dispatch(ctx, workflow.Signal{
				Key:     workflow.KeyBatchDonePrefix + signal.BatchID,
				Payload: signal.BatchID,
			})
		}
	}
	return nil
}

// Start subscribes the aggregator to outcome signals on the bus. The
// returned cancel func removes the subscription.
func (a *Aggregator) Start() func() {
	if a.bus == nil {
		return func() {}
	}
	return a.bus.Subscribe(workflow.KeyOutcomePrefix, func(ctx context.Context, sig workflow.Signal) {
		outcome, ok := sig.Payload.(model.OutcomeSignal)
		if !ok {
			slog.Error("outcome signal with unexpected payload", "key", sig.Key)
			return
		}
		if err := a.Apply(ctx, outcome); err != nil {
			slog.Error("failed to apply outcome signal",
				"batch_id", outcome.BatchID,
				"transaction_id", outcome.TransactionID,
				"error", err)
		}
	})
}

// Status returns the batch status readout.
func (a *Aggregator) Status(ctx context.Context, batchID string) (*model.BatchRun, error) {
	return a.store.GetBatch(ctx, batchID)
}
