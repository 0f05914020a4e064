// Package split validates and spawns child transactions for one-level
// transaction splits.
package split

import (
	"fmt"
	"math"

	"github.com/ledgersieve/ledgersieve/internal/common"
	"github.com/ledgersieve/ledgersieve/internal/model"
)

// AmountTolerance is the maximum allowed difference between the parent
// amount and the sum of child amounts.
const AmountTolerance = 0.01

// Child is one requested piece of a split.
type Child struct {
	Description  string  `json:"description"`
	Amount       float64 `json:"amount"`
	Counterparty string  `json:"counterpartyLabel,omitempty"`
}

// Request is the wire shape of a split request.
type Request struct {
	ParentID       string  `json:"parentId"`
	Children       []Child `json:"children"`
	AbsorbResidual bool    `json:"absorbResidual,omitempty"`
}

// Validate checks the amount-sum invariant for a split. When absorbResidual
// is set, the difference between the parent amount and the child sum is
// first added entirely to the single most expensive child; itemized
// receipts from some sources omit shipping and tax, and piling the
// residual onto one child keeps the arithmetic honest without inventing an
// allocation policy. The returned children reflect any absorption.
func Validate(parent *model.Transaction, children []Child, absorbResidual bool) ([]Child, error) {
	if parent == nil {
		return nil, common.NewValidationError("split parent is required", common.ErrMissingField)
	}
	if parent.IsChild {
		return nil, common.NewValidationError(
			fmt.Sprintf("transaction %s is itself a split child and cannot be split again", parent.ID), nil)
	}
	if len(children) < 2 {
		return nil, common.NewValidationError(
			fmt.Sprintf("a split needs at least 2 children, got %d", len(children)), nil)
	}

	out := make([]Child, len(children))
	copy(out, children)

	for i, child := range out {
		if child.Description == "" {
			return nil, common.NewValidationError(
				fmt.Sprintf("child %d has no description", i), common.ErrMissingField)
		}
	}

	sum := 0.0
	for _, child := range out {
		sum += child.Amount
	}

	if absorbResidual {
		residual := parent.Amount - sum
		if math.Abs(residual) > AmountTolerance {
			biggest := 0
			for i, child := range out {
				if math.Abs(child.Amount) > math.Abs(out[biggest].Amount) {
					biggest = i
				}
			}
			out[biggest].Amount += residual
			sum = parent.Amount
		}
	}

	delta := math.Abs(sum - parent.Amount)
	if delta > AmountTolerance {
		return nil, common.NewValidationError(
			fmt.Sprintf("children sum to %.2f but parent amount is %.2f (delta %.2f)",
				sum, parent.Amount, delta),
			common.ErrSplitAmountMismatch)
	}

	return out, nil
}

// Spawn builds the child transactions for an accepted split. Children
// inherit the parent's date and batch, and the parent's counterparty label
// unless a child overrides it. Ids are content-derived like any other
// transaction.
func Spawn(parent *model.Transaction, children []Child) []model.Transaction {
	spawned := make([]model.Transaction, len(children))
	for i, child := range children {
		merchant := child.Counterparty
		if merchant == "" {
			merchant = parent.Merchant
		}

		txn := model.Transaction{
			Date:        parent.Date,
			BatchID:     parent.BatchID,
			Merchant:    merchant,
			Description: child.Description,
			Amount:      child.Amount,
			ParentID:    parent.ID,
			IsChild:     true,
		}
		txn.GenerateID()
		spawned[i] = txn
	}
	return spawned
}
