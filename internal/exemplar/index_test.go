package exemplar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersieve/ledgersieve/internal/model"
)

type staticStore struct {
	exemplars []model.ResolvedExemplar
}

func (s *staticStore) ListResolvedExemplars(_ context.Context) ([]model.ResolvedExemplar, error) {
	return s.exemplars, nil
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"exact match ignoring case", "Blue Bottle", "blue bottle", 1.0},
		{"containment", "BLUE BOTTLE COFFEE #7", "blue bottle", 0.8},
		{"two edits over five runes", "cider", "cedar", 1.0 - 2.0/5.0},
		{"disjoint strings floor at zero", "ab", "xyzw", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance("same", "same"))
	assert.Equal(t, 4, editDistance("", "four"))
	assert.Equal(t, 1, editDistance("kitten", "mitten"))
	assert.Equal(t, 3, editDistance("kitten", "sitting"))
}

func TestTopK(t *testing.T) {
	ctx := context.Background()

	store := &staticStore{exemplars: []model.ResolvedExemplar{
		{TransactionID: "t1", Merchant: "Blue Bottle", Description: "BLUE BOTTLE #7", NodeID: "coffee", NodeName: "Coffee Shops"},
		{TransactionID: "t2", Merchant: "Blue Bottle", Description: "BLUE BOTTLE #9", NodeID: "coffee", NodeName: "Coffee Shops"},
		{TransactionID: "t3", Merchant: "Chevron", Description: "CHEVRON STATION 12", NodeID: "fuel", NodeName: "Fuel"},
		{TransactionID: "t4", Merchant: "Whole Foods", Description: "WHOLEFDS #10", NodeID: "groceries", NodeName: "Groceries"},
	}}
	index := NewIndex(store)

	t.Run("ranks closest precedent first", func(t *testing.T) {
		got, err := index.TopK(ctx, "Blue Bottle", "BLUE BOTTLE #7", 2)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "coffee", got[0].NodeID)
		assert.InDelta(t, 1.0, got[0].Score, 1e-9)
		assert.LessOrEqual(t, len(got), 2)
	})

	t.Run("description dominates the blend", func(t *testing.T) {
		// Merchant matches fuel, description matches groceries; 0.7
		// weighting must prefer the description side.
		got, err := index.TopK(ctx, "Chevron", "WHOLEFDS #10", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "groceries", got[0].NodeID)
	})

	t.Run("prefilter drops unrelated history", func(t *testing.T) {
		got, err := index.TopK(ctx, "Completely Unrelated Vendor Name", "NOTHING ALIKE AT ALL", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("k defaults when nonpositive", func(t *testing.T) {
		got, err := index.TopK(ctx, "Blue Bottle", "BLUE BOTTLE #7", 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), DefaultTopK)
	})
}
