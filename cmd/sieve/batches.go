package main

import (
	"github.com/spf13/cobra"
)

func batchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Inspect batch runs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show a batch's counters and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return printBatchStatus(ctx, store, args[0])
		},
	})
	return cmd
}
