package classifier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersieve/ledgersieve/internal/common"
)

func TestParseOutcome(t *testing.T) {
	t.Run("categorize", func(t *testing.T) {
		outcome, err := ParseOutcome(`
ACTION: categorize
NODE: node-42
CONFIDENCE: 0.85
REASONING: matches historical coffee purchases
`)
		require.NoError(t, err)
		assert.Equal(t, ActionCategorize, outcome.Action)
		assert.Equal(t, "node-42", outcome.NodeID)
		assert.InDelta(t, 0.85, outcome.Confidence, 1e-9)
		assert.Equal(t, "matches historical coffee purchases", outcome.Reasoning)
	})

	t.Run("percentage confidence is normalized", func(t *testing.T) {
		outcome, err := ParseOutcome("ACTION: categorize\nNODE: n1\nCONFIDENCE: 85%")
		require.NoError(t, err)
		assert.InDelta(t, 0.85, outcome.Confidence, 1e-9)
	})

	t.Run("out of range confidence is clamped", func(t *testing.T) {
		outcome, err := ParseOutcome("ACTION: categorize\nNODE: n1\nCONFIDENCE: 1.7")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, outcome.Confidence, 1e-9)
	})

	t.Run("proposeNode with node block", func(t *testing.T) {
		outcome, err := ParseOutcome(`
ACTION: proposeNode
CONFIDENCE: 0.6
REASONING: no existing node fits
NEW_NODE:
name: Coffee Shops
parent: node-food
description: Cafes and espresso bars
`)
		require.NoError(t, err)
		assert.Equal(t, ActionProposeNode, outcome.Action)
		require.NotNil(t, outcome.ProposedNode)
		assert.Equal(t, "Coffee Shops", outcome.ProposedNode.Name)
		assert.Equal(t, "node-food", outcome.ProposedNode.ParentID)
		assert.Equal(t, "Cafes and espresso bars", outcome.ProposedNode.Description)
	})

	t.Run("needsReview", func(t *testing.T) {
		outcome, err := ParseOutcome("ACTION: needsReview\nREASONING: counterparty is opaque")
		require.NoError(t, err)
		assert.Equal(t, ActionNeedsReview, outcome.Action)
	})

	t.Run("malformed responses are permanent errors", func(t *testing.T) {
		cases := map[string]string{
			"no action":               "REASONING: whatever",
			"unknown action":          "ACTION: shrug",
			"categorize without node": "ACTION: categorize\nCONFIDENCE: 0.9",
			"propose without name":    "ACTION: proposeNode\nCONFIDENCE: 0.5",
			"garbage confidence":      "ACTION: categorize\nNODE: n1\nCONFIDENCE: high",
		}

		for name, content := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := ParseOutcome(content)
				require.Error(t, err)

				var malformed *MalformedResponseError
				assert.True(t, errors.As(err, &malformed))
				assert.True(t, errors.Is(err, common.ErrMalformedResponse))
				assert.False(t, common.IsRetryable(err))
			})
		}
	})
}
