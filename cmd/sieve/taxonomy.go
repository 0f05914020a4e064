package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ledgersieve/ledgersieve/internal/cli"
	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/workflow"
)

func taxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Manage the category taxonomy",
		Long:  `List and add taxonomy nodes used for transaction classification.`,
	}

	cmd.AddCommand(listNodesCmd())
	cmd.AddCommand(addNodeCmd())
	return cmd
}

func listNodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all taxonomy nodes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			nodes, err := store.ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("failed to list nodes: %w", err)
			}

			if len(nodes) <= 1 {
				fmt.Println(cli.InfoStyle.Render("No nodes yet. Use 'sieve taxonomy add' to create one."))
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"ID", "Name", "Parent", "Description"})
			for _, node := range nodes {
				if node.ID == model.RootNodeID {
					continue
				}
				t.AppendRow(table.Row{node.ID, node.Name, node.ParentID, node.Description})
			}
			t.Render()
			return nil
		},
	}
}

func addNodeCmd() *cobra.Command {
	var (
		parentID    string
		description string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a taxonomy node",
		Long: `Create a new taxonomy node. Creation goes through the dedup guard:
if a sibling with the same case-insensitive name already exists, it is
returned instead of a duplicate. A genuinely new node triggers
re-evaluation of review items parked on taxonomy suggestions.`,
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
			stopCascade := eng.StartCascade()
			defer stopCascade()

			node, err := eng.CreateNode(ctx, model.NodePlan{
				Name:        args[0],
				ParentID:    parentID,
				Description: description,
			})
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}
			bus.Drain()

			fmt.Println(cli.SuccessStyle.Render(
				fmt.Sprintf("✓ Node %q (%s) under %s", node.Name, node.ID, node.ParentID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&parentID, "parent", model.RootNodeID, "Parent node id")
	cmd.Flags().StringVar(&description, "description", "", "Node description")
	return cmd
}
