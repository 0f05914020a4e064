package classifier

import (
	"fmt"
	"strings"

	"github.com/ledgersieve/ledgersieve/internal/model"
)

// BuildPrompt renders a classification request into the prompt the external
// classifier answers in the line-oriented format ParseOutcome understands.
func BuildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Classify this financial transaction into the taxonomy below.\n\n")

	fmt.Fprintf(&b, "Transaction:\n")
	fmt.Fprintf(&b, "  Date: %s\n", req.Transaction.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "  Counterparty: %s\n", req.Transaction.Merchant)
	fmt.Fprintf(&b, "  Description: %s\n", req.Transaction.Description)
	fmt.Fprintf(&b, "  Amount: %.2f\n", req.Transaction.Amount)

	if req.Annotation != "" {
		fmt.Fprintf(&b, "  Note: %s\n", req.Annotation)
	}

	b.WriteString("\nTaxonomy:\n")
	for _, node := range req.Taxonomy {
		if node.ID == model.RootNodeID {
			continue
		}
		fmt.Fprintf(&b, "  %s: %s", node.ID, node.Name)
		if node.Description != "" {
			fmt.Fprintf(&b, " (%s)", node.Description)
		}
		b.WriteString("\n")
	}

	if len(req.Exemplars) > 0 {
		b.WriteString("\nSimilar past transactions and the node each resolved to.\n")
		b.WriteString("When the transaction is sufficiently similar, prefer the exact\n")
		b.WriteString("node used before over a more generic one:\n")
		for _, ex := range req.Exemplars {
			fmt.Fprintf(&b, "  %q / %q -> %s (%s)\n",
				ex.Merchant, ex.Description, ex.NodeName, ex.NodeID)
		}
	}

	b.WriteString(`
Respond in exactly this format:

ACTION: categorize | proposeNode | needsReview
NODE: <node id, for categorize>
CONFIDENCE: <0.0-1.0>
REASONING: <one line>

For proposeNode, replace NODE with:

NEW_NODE:
name: <name>
parent: <parent node id>
description: <one line>
`)

	return b.String()
}
