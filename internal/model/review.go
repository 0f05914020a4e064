package model

import "time"

// ReviewReason explains why a transaction was routed to human review.
type ReviewReason string

// Review reason constants.
const (
	ReasonLowConfidence         ReviewReason = "lowConfidence"
	ReasonAmbiguousCounterparty ReviewReason = "ambiguousCounterparty"
	ReasonNewTaxonomySuggestion ReviewReason = "newTaxonomySuggestion"
	ReasonDuplicateTaxonomy     ReviewReason = "duplicateTaxonomySuggested"
	ReasonShouldSplit           ReviewReason = "shouldSplit"
	ReasonClassifierFailure     ReviewReason = "classifierFailure"
)

// ReviewStatus tracks whether a review item still needs a human decision.
type ReviewStatus string

// Review status constants.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewResolved ReviewStatus = "resolved"
)

// Suggestion carries the classifier's best guess alongside a queued item so
// a reviewer can accept it in one step.
type Suggestion struct {
	ProposedNode *NodePlan
	NodeID       string
	Reasoning    string
	Confidence   float64
}

// ReviewItem is the durable holding record for a transaction awaiting a
// human decision. One exists per transaction at a time, keyed by
// transaction id. The retry cascade replaces Suggestion and increments
// RetryCount; human resolution flips Status to resolved.
type ReviewItem struct {
	CreatedAt     time.Time
	RetryingSince *time.Time
	Suggestion    *Suggestion
	ID            string
	TransactionID string
	BatchID       string
	Reason        ReviewReason
	Status        ReviewStatus
	RetryCount    int
}
