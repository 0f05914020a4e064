// Package classifier defines the contract for the external classification
// collaborator: the request/outcome shapes, the wire-format parser, and the
// per-batch dispatch gate. The classifier itself lives behind the Client
// interface; it is fallible and slow, and callers own retry policy.
package classifier

import (
	"context"

	"github.com/ledgersieve/ledgersieve/internal/model"
)

// Action is the classifier's chosen disposition for a transaction.
type Action string

// Action constants.
const (
	ActionCategorize  Action = "categorize"
	ActionProposeNode Action = "proposeNode"
	ActionNeedsReview Action = "needsReview"
)

// Exemplar is a similarity-matched precedent passed as a "use this exact
// node when sufficiently similar" hint. The classifier is instructed to
// prefer the most specific historical node over a generic ancestor.
type Exemplar struct {
	Merchant    string
	Description string
	NodeID      string
	NodeName    string
	Score       float64
}

// Request carries everything the classifier needs for one transaction.
type Request struct {
	Transaction model.Transaction
	Taxonomy    []model.TaxonomyNode
	Exemplars   []Exemplar
	Annotation  string
}

// Outcome is the classifier's parsed response.
type Outcome struct {
	ProposedNode *model.NodePlan
	Action       Action
	NodeID       string
	Reasoning    string
	Confidence   float64
}

// Client defines the interface for classifier providers.
type Client interface {
	Classify(ctx context.Context, req Request) (*Outcome, error)
}
