package model

import "time"

// BatchStatus is the lifecycle state of one ingestion run.
type BatchStatus string

// Batch status constants.
const (
	BatchProcessing         BatchStatus = "processing"
	BatchCategorizationDone BatchStatus = "categorizationDone"
	BatchCompleted          BatchStatus = "completed"
	BatchFailed             BatchStatus = "failed"
)

// BatchRun tracks one ingestion run producing a fixed set of transactions.
// Counters only ever increase; Status moves processing → categorizationDone
// exactly once, when every item has reported a terminal or queued outcome.
type BatchRun struct {
	StartedAt        time.Time
	CompletedAt      *time.Time
	ID               string
	Status           BatchStatus
	TotalItems       int
	CategorizedCount int
	ReviewQueueCount int
	FailedCount      int
}

// Done reports whether every item in the batch has reached a terminal or
// queued outcome.
func (b *BatchRun) Done() bool {
	return b.CategorizedCount+b.ReviewQueueCount+b.FailedCount >= b.TotalItems
}
