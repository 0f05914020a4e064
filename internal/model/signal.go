package model

// OutcomeKind is the coarse result of classifying one transaction.
type OutcomeKind string

// Outcome kind constants. Field names on OutcomeSignal are wire-stable.
const (
	OutcomeCategorized OutcomeKind = "categorized"
	OutcomeQueued      OutcomeKind = "queued"
	OutcomeFailed      OutcomeKind = "failed"
)

// OutcomeSignal is emitted exactly once per transaction when it reaches a
// terminal or queued state, and consumed by the completion aggregator.
type OutcomeSignal struct {
	BatchID       string       `json:"batchId"`
	TransactionID string       `json:"transactionId"`
	Kind          OutcomeKind  `json:"kind"`
	Reason        ReviewReason `json:"reason,omitempty"`
}
