// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/ledgersieve/ledgersieve/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionsByBatch(ctx context.Context, batchID string) ([]model.Transaction, error)

	// Taxonomy operations
	EnsureNode(ctx context.Context, plan model.NodePlan) (*model.TaxonomyNode, bool, error)
	GetNode(ctx context.Context, id string) (*model.TaxonomyNode, error)
	FindChild(ctx context.Context, parentID, name string) (*model.TaxonomyNode, error)
	ListNodes(ctx context.Context) ([]model.TaxonomyNode, error)

	// Resolution operations
	SaveResolution(ctx context.Context, resolution *model.Resolution) error
	GetResolution(ctx context.Context, transactionID string) (*model.Resolution, error)
	ListResolvedExemplars(ctx context.Context) ([]model.ResolvedExemplar, error)

	// Review queue operations
	SaveReviewItem(ctx context.Context, item *model.ReviewItem) error
	GetReviewItem(ctx context.Context, id string) (*model.ReviewItem, error)
	ListPendingReviews(ctx context.Context, reasons ...model.ReviewReason) ([]model.ReviewItem, error)
	UpdateReviewSuggestion(ctx context.Context, id string, suggestion *model.Suggestion) error
	ResolveReview(ctx context.Context, id string, resolution *model.Resolution) error

	// Batch operations
	CreateBatch(ctx context.Context, batch *model.BatchRun) error
	GetBatch(ctx context.Context, id string) (*model.BatchRun, error)
	AddBatchItems(ctx context.Context, batchID string, n int) error
	RecordOutcome(ctx context.Context, signal model.OutcomeSignal) (bool, error)
	CompleteBatchIfDone(ctx context.Context, batchID string) (bool, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx represents a database transaction over the same operations.
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}
