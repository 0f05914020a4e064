// Package exemplar retrieves similarity-ranked precedent for new
// transactions from previously-resolved history.
package exemplar

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledgersieve/ledgersieve/internal/classifier"
	"github.com/ledgersieve/ledgersieve/internal/model"
)

// DefaultTopK is the number of exemplars passed to the classifier.
const DefaultTopK = 5

// prefilterDistance bounds the merchant edit distance for candidates that
// share no substring with the query, so scoring never walks the entire
// history table.
const prefilterDistance = 3

// Store is the slice of persistence the index needs.
type Store interface {
	ListResolvedExemplars(ctx context.Context) ([]model.ResolvedExemplar, error)
}

// Index ranks resolved transactions against a new item by blended
// merchant/description similarity.
type Index struct {
	store Store
}

// NewIndex creates an exemplar index over the given store.
func NewIndex(store Store) *Index {
	return &Index{store: store}
}

// TopK returns the k highest-scoring resolved exemplars for the given
// merchant and description. Only resolved transactions are eligible;
// queued items never serve as precedent.
func (ix *Index) TopK(ctx context.Context, merchant, description string, k int) ([]classifier.Exemplar, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	candidates, err := ix.store.ListResolvedExemplars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load exemplar candidates: %w", err)
	}

	scored := make([]classifier.Exemplar, 0, len(candidates))
	for _, candidate := range candidates {
		if !prefilter(merchant, description, candidate) {
			continue
		}

		score := 0.3*similarity(merchant, candidate.Merchant) +
			0.7*similarity(description, candidate.Description)
		if score <= 0 {
			continue
		}

		scored = append(scored, classifier.Exemplar{
			Merchant:    candidate.Merchant,
			Description: candidate.Description,
			NodeID:      candidate.NodeID,
			NodeName:    candidate.NodeName,
			Score:       score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// prefilter cheaply rejects candidates with neither substring overlap nor
// a merchant within the fixed edit-distance bound.
func prefilter(merchant, description string, candidate model.ResolvedExemplar) bool {
	if containsEither(merchant, candidate.Merchant) ||
		containsEither(description, candidate.Description) {
		return true
	}
	return editDistance(strings.ToLower(merchant), strings.ToLower(candidate.Merchant)) <= prefilterDistance
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// similarity scores two strings: 1.0 on case-insensitive equality, 0.8
// when one contains the other, otherwise a normalized edit distance.
func similarity(a, b string) float64 {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return 1.0
	}
	if la != "" && lb != "" && (strings.Contains(la, lb) || strings.Contains(lb, la)) {
		return 0.8
	}

	longest := max(len(la), max(len(lb), 1))
	score := 1.0 - float64(editDistance(la, lb))/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

// editDistance computes the Levenshtein distance between two strings using
// a two-row dynamic program.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
