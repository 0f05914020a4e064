package split

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersieve/ledgersieve/internal/common"
	"github.com/ledgersieve/ledgersieve/internal/model"
)

func testParent(amount float64) *model.Transaction {
	parent := &model.Transaction{
		Date:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		BatchID:     "b1",
		Merchant:    "Amazon",
		Description: "AMZN ORDER 123-456",
		Amount:      amount,
	}
	parent.GenerateID()
	return parent
}

func TestValidate(t *testing.T) {
	t.Run("accepts children summing to the parent within tolerance", func(t *testing.T) {
		children, err := Validate(testParent(100.00), []Child{
			{Description: "Keyboard", Amount: 59.99},
			{Description: "Cables", Amount: 40.01},
		}, false)
		require.NoError(t, err)
		assert.Len(t, children, 2)
	})

	t.Run("accepts a one-cent rounding gap", func(t *testing.T) {
		_, err := Validate(testParent(100.00), []Child{
			{Description: "A", Amount: 60.00},
			{Description: "B", Amount: 39.99},
		}, false)
		assert.NoError(t, err)
	})

	t.Run("rejects a mismatch with sum and delta in the message", func(t *testing.T) {
		_, err := Validate(testParent(100.00), []Child{
			{Description: "A", Amount: 50.00},
			{Description: "B", Amount: 40.00},
		}, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrSplitAmountMismatch))
		assert.Contains(t, err.Error(), "90.00")
		assert.Contains(t, err.Error(), "10.00")
	})

	t.Run("rejects fewer than two children", func(t *testing.T) {
		_, err := Validate(testParent(100.00), []Child{
			{Description: "A", Amount: 100.00},
		}, false)
		assert.Error(t, err)
	})

	t.Run("rejects splitting a child", func(t *testing.T) {
		parent := testParent(100.00)
		parent.IsChild = true
		_, err := Validate(parent, []Child{
			{Description: "A", Amount: 60.00},
			{Description: "B", Amount: 40.00},
		}, false)
		assert.Error(t, err)
	})

	t.Run("absorbs residual into the most expensive child", func(t *testing.T) {
		// Itemized receipt omitting shipping: items sum to 90, parent is 100.
		children, err := Validate(testParent(100.00), []Child{
			{Description: "Monitor", Amount: 70.00},
			{Description: "Stand", Amount: 20.00},
		}, true)
		require.NoError(t, err)
		assert.InDelta(t, 80.00, children[0].Amount, 1e-9)
		assert.InDelta(t, 20.00, children[1].Amount, 1e-9)
	})

	t.Run("without absorption the same gap is rejected", func(t *testing.T) {
		_, err := Validate(testParent(100.00), []Child{
			{Description: "Monitor", Amount: 70.00},
			{Description: "Stand", Amount: 20.00},
		}, false)
		assert.Error(t, err)
	})
}

func TestSpawn(t *testing.T) {
	parent := testParent(100.00)
	children := Spawn(parent, []Child{
		{Description: "Keyboard", Amount: 60.00},
		{Description: "Cables", Amount: 40.00, Counterparty: "Monoprice"},
	})

	require.Len(t, children, 2)

	assert.Equal(t, parent.ID, children[0].ParentID)
	assert.True(t, children[0].IsChild)
	assert.Equal(t, parent.Date, children[0].Date)
	assert.Equal(t, parent.BatchID, children[0].BatchID)
	assert.Equal(t, "Amazon", children[0].Merchant, "children inherit the parent counterparty")
	assert.Equal(t, "Monoprice", children[1].Merchant, "unless overridden")

	assert.NotEmpty(t, children[0].ID)
	assert.NotEqual(t, children[0].ID, children[1].ID)
	assert.NotEqual(t, parent.ID, children[0].ID)
}
