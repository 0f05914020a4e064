package model

import "time"

// ResolutionSource indicates how a transaction was resolved to a node.
type ResolutionSource string

// Resolution source constants.
const (
	SourceAuto      ResolutionSource = "auto"
	SourceManual    ResolutionSource = "manual"
	SourceRetryAuto ResolutionSource = "retryAuto"
)

// Resolution links a transaction to its taxonomy node. At most one exists
// per transaction, keyed by transaction id; re-ingestion overwrites in
// place. Split parents never carry a Resolution.
type Resolution struct {
	ResolvedAt    time.Time
	TransactionID string
	NodeID        string
	Reasoning     string
	Source        ResolutionSource
	Confidence    float64
}

// ResolvedExemplar joins a resolved transaction with its node so it can be
// offered to the classifier as similarity-matched precedent.
type ResolvedExemplar struct {
	TransactionID string
	Merchant      string
	Description   string
	NodeID        string
	NodeName      string
}
