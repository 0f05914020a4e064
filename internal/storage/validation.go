package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgersieve/ledgersieve/internal/model"
)

// Storage-level sentinel errors.
var (
	ErrNodeNotFound   = errors.New("taxonomy node not found")
	ErrReviewNotFound = errors.New("review item not found")
	ErrBatchNotFound  = errors.New("batch run not found")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	return nil
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

func validateTransactions(transactions []model.Transaction) error {
	for i, txn := range transactions {
		if txn.ID == "" {
			return fmt.Errorf("transaction %d has no id", i)
		}
		if txn.BatchID == "" {
			return fmt.Errorf("transaction %s has no batch id", txn.ID)
		}
		if txn.Date.IsZero() {
			return fmt.Errorf("transaction %s has no date", txn.ID)
		}
	}
	return nil
}

func validateResolution(resolution *model.Resolution) error {
	if resolution == nil {
		return fmt.Errorf("resolution cannot be nil")
	}
	if resolution.TransactionID == "" {
		return fmt.Errorf("resolution has no transaction id")
	}
	if resolution.NodeID == "" {
		return fmt.Errorf("resolution has no node id")
	}
	switch resolution.Source {
	case model.SourceAuto, model.SourceManual, model.SourceRetryAuto:
	default:
		return fmt.Errorf("resolution has invalid source %q", resolution.Source)
	}
	if resolution.Confidence < 0 || resolution.Confidence > 1 {
		return fmt.Errorf("resolution confidence %f out of range [0,1]", resolution.Confidence)
	}
	return nil
}

func validateReviewItem(item *model.ReviewItem) error {
	if item == nil {
		return fmt.Errorf("review item cannot be nil")
	}
	if item.TransactionID == "" {
		return fmt.Errorf("review item has no transaction id")
	}
	if item.BatchID == "" {
		return fmt.Errorf("review item has no batch id")
	}
	switch item.Reason {
	case model.ReasonLowConfidence, model.ReasonAmbiguousCounterparty,
		model.ReasonNewTaxonomySuggestion, model.ReasonDuplicateTaxonomy,
		model.ReasonShouldSplit, model.ReasonClassifierFailure:
	default:
		return fmt.Errorf("review item has invalid reason %q", item.Reason)
	}
	return nil
}
