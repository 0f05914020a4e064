package main

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ledgersieve/ledgersieve/internal/batch"
	"github.com/ledgersieve/ledgersieve/internal/cli"
	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/service"
	"github.com/ledgersieve/ledgersieve/internal/workflow"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <batch-id>",
		Short: "Classify every pending transaction in a batch",
		Long: `Drive each pending transaction in the batch through the classifier.
Confident answers are categorized automatically; everything else lands
in the review queue. The batch flips to categorizationDone once every
item has reported an outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			batchID := args[0]

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if _, err := store.GetBatch(ctx, batchID); err != nil {
				return err
			}

			bus := workflow.NewInProc()
			eng, err := newEngine(store, bus)
			if err != nil {
				return err
			}

			agg := batch.NewAggregator(store, bus)
			stopAgg := agg.Start()
			defer stopAgg()
			stopCascade := eng.StartCascade()
			defer stopCascade()

			pending, err := pendingTransactions(ctx, store, batchID)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println(cli.InfoStyle.Render("Nothing to classify; every item already has an outcome."))
				return printBatchStatus(ctx, store, batchID)
			}

			bar := progressbar.Default(int64(len(pending)), "classifying")
			for _, txn := range pending {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if _, err := eng.Process(ctx, txn); err != nil {
					return fmt.Errorf("failed to process transaction %s: %w", txn.ID, err)
				}
				_ = bar.Add(1)
			}
			bus.Drain()

			return printBatchStatus(ctx, store, batchID)
		},
	}
}

// pendingTransactions returns the batch items that have not yet reached a
// terminal or queued state. Split parents are excluded through their
// resolved review item; their children classify on their own.
func pendingTransactions(ctx context.Context, store service.Storage, batchID string) ([]model.Transaction, error) {
	all, err := store.GetTransactionsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var pending []model.Transaction
	for _, txn := range all {
		resolution, err := store.GetResolution(ctx, txn.ID)
		if err != nil {
			return nil, err
		}
		if resolution != nil {
			continue
		}
		if _, err := store.GetReviewItem(ctx, txn.ID); err == nil {
			continue
		}
		pending = append(pending, txn)
	}
	return pending, nil
}

func printBatchStatus(ctx context.Context, store service.Storage, batchID string) error {
	run, err := store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("Batch %s", run.ID)))
	fmt.Printf("  Status:      %s\n", renderStatus(run.Status))
	fmt.Printf("  Total:       %d\n", run.TotalItems)
	fmt.Printf("  Categorized: %d\n", run.CategorizedCount)
	fmt.Printf("  In review:   %d\n", run.ReviewQueueCount)
	fmt.Printf("  Failed:      %d\n", run.FailedCount)

	if run.ReviewQueueCount > 0 && run.Status == model.BatchCategorizationDone {
		fmt.Println(cli.SubtleStyle.Render("  Run 'sieve review list' to see what needs a decision."))
	}
	return nil
}

func renderStatus(status model.BatchStatus) string {
	switch status {
	case model.BatchCategorizationDone, model.BatchCompleted:
		return cli.SuccessStyle.Render(string(status))
	case model.BatchFailed:
		return cli.ErrorStyle.Render(string(status))
	default:
		return cli.WarningStyle.Render(string(status))
	}
}
