package batch

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/testutil"
	"github.com/ledgersieve/ledgersieve/internal/workflow"
)

func TestAggregatorApply(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	bus := workflow.NewInProc()
	testutil.SeedBatch(t, store, "b1", 2)

	var doneSignals int32
	cancel := bus.Subscribe(workflow.KeyBatchDonePrefix, func(context.Context, workflow.Signal) {
		atomic.AddInt32(&doneSignals, 1)
	})
	defer cancel()

	agg := NewAggregator(store, bus)

	require.NoError(t, agg.Apply(ctx, model.OutcomeSignal{
		BatchID: "b1", TransactionID: "t1", Kind: model.OutcomeCategorized,
	}))

	run, err := agg.Status(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.CategorizedCount)
	assert.Equal(t, model.BatchProcessing, run.Status)

	// Redelivery is absorbed without moving counters.
	require.NoError(t, agg.Apply(ctx, model.OutcomeSignal{
		BatchID: "b1", TransactionID: "t1", Kind: model.OutcomeCategorized,
	}))
	run, err = agg.Status(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.CategorizedCount)

	// The last outcome flips status and announces completion once.
	require.NoError(t, agg.Apply(ctx, model.OutcomeSignal{
		BatchID: "b1", TransactionID: "t2", Kind: model.OutcomeQueued,
		Reason: model.ReasonLowConfidence,
	}))
	run, err = agg.Status(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.ReviewQueueCount)
	assert.Equal(t, model.BatchCategorizationDone, run.Status)

	// A straggler after the flip changes nothing.
	require.NoError(t, agg.Apply(ctx, model.OutcomeSignal{
		BatchID: "b1", TransactionID: "t2", Kind: model.OutcomeQueued,
		Reason: model.ReasonLowConfidence,
	}))

	bus.Drain()
	assert.Equal(t, int32(1), atomic.LoadInt32(&doneSignals))
}

func TestAggregatorStart(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	bus := workflow.NewInProc()
	testutil.SeedBatch(t, store, "b1", 2)

	agg := NewAggregator(store, bus)
	cancel := agg.Start()
	defer cancel()

	for _, id := range []string{"t1", "t2"} {
		bus.Dispatch(ctx, workflow.Signal{
			Key: workflow.KeyOutcomePrefix + "b1",
			Payload: model.OutcomeSignal{
				BatchID: "b1", TransactionID: id, Kind: model.OutcomeCategorized,
			},
		})
	}
	bus.Drain()

	run, err := agg.Status(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, run.CategorizedCount)
	assert.Equal(t, model.BatchCategorizationDone, run.Status)
}

func TestAggregatorOutOfOrderDelivery(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	testutil.SeedBatch(t, store, "b1", 3)

	agg := NewAggregator(store, nil)

	// A later manual-resolution signal for an item first counted as queued
	// is absorbed: counters are monotonic and the first kind wins.
	require.NoError(t, agg.Apply(ctx, model.OutcomeSignal{
		BatchID: "b1", TransactionID: "t1", Kind: model.OutcomeQueued,
		Reason: model.ReasonLowConfidence,
	}))
	require.NoError(t, agg.Apply(ctx, model.OutcomeSignal{
		BatchID: "b1", TransactionID: "t1", Kind: model.OutcomeCategorized,
	}))

	run, err := agg.Status(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.ReviewQueueCount)
	assert.Equal(t, 0, run.CategorizedCount)
	assert.Equal(t, model.BatchProcessing, run.Status)
}
