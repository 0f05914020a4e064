package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ledgersieve/ledgersieve/internal/batch"
	"github.com/ledgersieve/ledgersieve/internal/cli"
	"github.com/ledgersieve/ledgersieve/internal/engine"
	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/workflow"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the review queue",
		Long:  `List queued transactions and resolve them with a human decision.`,
	}

	cmd.AddCommand(listReviewsCmd())
	cmd.AddCommand(resolveReviewCmd())
	return cmd
}

func listReviewsCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending review items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var reasons []model.ReviewReason
			if reason != "" {
				reasons = append(reasons, model.ReviewReason(reason))
			}

			items, err := store.ListPendingReviews(ctx, reasons...)
			if err != nil {
				return fmt.Errorf("failed to list review items: %w", err)
			}
			if len(items) == 0 {
				fmt.Println(cli.SuccessStyle.Render("Review queue is empty."))
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Item", "Batch", "Reason", "Retries", "Suggestion"})
			for _, item := range items {
				t.AppendRow(table.Row{
					item.ID, item.BatchID, item.Reason, item.RetryCount,
					renderSuggestion(item.Suggestion),
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Filter by queue reason")
	return cmd
}

func renderSuggestion(s *model.Suggestion) string {
	switch {
	case s == nil:
		return ""
	case s.ProposedNode != nil:
		return fmt.Sprintf("new node %q under %s (%.2f)",
			s.ProposedNode.Name, s.ProposedNode.ParentID, s.Confidence)
	case s.NodeID != "":
		return fmt.Sprintf("%s (%.2f)", s.NodeID, s.Confidence)
	default:
		return s.Reasoning
	}
}

func resolveReviewCmd() *cobra.Command {
	var (
		nodeID          string
		newNodeName     string
		newNodeParent   string
		newNodeDesc     string
		splitJSON       string
		absorbResidual  bool
		classifyOnSplit bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <item-id>",
		Short: "Resolve a pending review item",
		Long: `Apply a decision to a pending review item. Exactly one of --node,
--new-node, or --split must be given. --split takes a JSON array of
{"description", "amount", "counterparty"} children whose amounts must
sum to the parent within one cent (see --absorb-residual).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

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

			req := engine.ResolveRequest{
				ReviewItemID:   args[0],
				NodeID:         nodeID,
				AbsorbResidual: absorbResidual,
			}
			if newNodeName != "" {
				req.NewNode = &model.NodePlan{
					Name:        newNodeName,
					ParentID:    newNodeParent,
					Description: newNodeDesc,
				}
			}
			if splitJSON != "" {
				if err := json.Unmarshal([]byte(splitJSON), &req.SplitChildren); err != nil {
					return fmt.Errorf("invalid --split JSON: %w", err)
				}
			}

			result, err := eng.Resolve(ctx, req)
			if err != nil {
				return err
			}

			if result.Resolution != nil {
				fmt.Println(cli.SuccessStyle.Render(
					fmt.Sprintf("✓ Resolved to node %s", result.Resolution.NodeID)))
			}
			if len(result.Children) > 0 {
				fmt.Println(cli.SuccessStyle.Render(
					fmt.Sprintf("✓ Split into %d transactions", len(result.Children))))
				if classifyOnSplit {
					if err := classifyChildren(cmd, eng, result.Children); err != nil {
						return err
					}
				} else {
					fmt.Println(cli.SubtleStyle.Render(
						"  Re-run 'sieve classify' on the batch to categorize the children."))
				}
			}
			bus.Drain()
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeID, "node", "", "Assign an existing node")
	cmd.Flags().StringVar(&newNodeName, "new-node", "", "Create a node with this name and assign it")
	cmd.Flags().StringVar(&newNodeParent, "parent", model.RootNodeID, "Parent for --new-node")
	cmd.Flags().StringVar(&newNodeDesc, "node-description", "", "Description for --new-node")
	cmd.Flags().StringVar(&splitJSON, "split", "", "Split into children (JSON array)")
	cmd.Flags().BoolVar(&absorbResidual, "absorb-residual", false, "Fold any amount gap into the most expensive child")
	cmd.Flags().BoolVar(&classifyOnSplit, "classify-children", false, "Immediately classify spawned children")
	return cmd
}

func classifyChildren(cmd *cobra.Command, eng *engine.Engine, children []model.Transaction) error {
	ctx := cmd.Context()
	for _, child := range children {
		if _, err := eng.Process(ctx, child); err != nil {
			return fmt.Errorf("failed to classify child %s: %w", child.ID, err)
		}
	}
	return nil
}
