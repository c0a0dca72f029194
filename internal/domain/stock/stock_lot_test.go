package stock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpos/backend/internal/domain/shared"
)

func newTestLot(t *testing.T, qty string, expiry *time.Time) *StockLot {
	t.Helper()
	lot, err := NewStockLot(uuid.New(), uuid.New(), "LOT-001", decimal.RequireFromString(qty), expiry)
	require.NoError(t, err)
	return lot
}

func daysFromNow(d int) *time.Time {
	ts := time.Now().AddDate(0, 0, d)
	return &ts
}

func TestNewStockLot(t *testing.T) {
	t.Run("creates lot with normalized quantity", func(t *testing.T) {
		lot, err := NewStockLot(uuid.New(), uuid.New(), "LOT-A", decimal.RequireFromString("2.50049"), nil)
		require.NoError(t, err)
		assert.True(t, lot.QuantityOnHand.Equal(decimal.RequireFromString("2.5")))
		assert.NotEqual(t, uuid.Nil, lot.ID)
	})

	t.Run("rejects missing product", func(t *testing.T) {
		_, err := NewStockLot(uuid.Nil, uuid.New(), "LOT-A", decimal.NewFromInt(1), nil)
		require.Error(t, err)
		var derr *shared.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "INVALID_PRODUCT", derr.Code)
	})

	t.Run("rejects empty lot code", func(t *testing.T) {
		_, err := NewStockLot(uuid.New(), uuid.New(), "", decimal.NewFromInt(1), nil)
		assert.Error(t, err)
	})

	t.Run("rejects negative quantity", func(t *testing.T) {
		_, err := NewStockLot(uuid.New(), uuid.New(), "LOT-A", decimal.NewFromInt(-1), nil)
		assert.Error(t, err)
	})

	t.Run("allows zero quantity", func(t *testing.T) {
		lot, err := NewStockLot(uuid.New(), uuid.New(), "LOT-A", decimal.Zero, nil)
		require.NoError(t, err)
		assert.False(t, lot.IsEligible())
	})
}

func TestStockLot_Eligibility(t *testing.T) {
	t.Run("fresh lot with stock is eligible", func(t *testing.T) {
		lot := newTestLot(t, "5", daysFromNow(30))
		assert.True(t, lot.IsEligible())
	})

	t.Run("expired lot is not eligible", func(t *testing.T) {
		lot := newTestLot(t, "5", daysFromNow(-1))
		assert.True(t, lot.IsExpired())
		assert.False(t, lot.IsEligible())
	})

	t.Run("lot without expiry never expires", func(t *testing.T) {
		lot := newTestLot(t, "5", nil)
		assert.False(t, lot.IsExpired())
		assert.True(t, lot.IsEligible())
		assert.Equal(t, -1, lot.DaysUntilExpiry())
	})

	t.Run("empty lot is not eligible", func(t *testing.T) {
		lot := newTestLot(t, "0", daysFromNow(30))
		assert.False(t, lot.IsEligible())
	})
}

func TestStockLot_Deduct(t *testing.T) {
	t.Run("reduces quantity", func(t *testing.T) {
		lot := newTestLot(t, "10", nil)
		err := lot.Deduct(decimal.RequireFromString("3.5"))
		require.NoError(t, err)
		assert.True(t, lot.QuantityOnHand.Equal(decimal.RequireFromString("6.5")))
	})

	t.Run("can drain lot to exactly zero", func(t *testing.T) {
		lot := newTestLot(t, "10", nil)
		err := lot.Deduct(decimal.NewFromInt(10))
		require.NoError(t, err)
		assert.True(t, lot.QuantityOnHand.IsZero())
	})

	t.Run("rejects deduction beyond quantity on hand", func(t *testing.T) {
		lot := newTestLot(t, "2", nil)
		err := lot.Deduct(decimal.NewFromInt(3))
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
		assert.True(t, lot.QuantityOnHand.Equal(decimal.NewFromInt(2)))
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		lot := newTestLot(t, "2", nil)
		assert.Error(t, lot.Deduct(decimal.Zero))
		assert.Error(t, lot.Deduct(decimal.NewFromInt(-1)))
	})
}

func TestStockLot_Receive(t *testing.T) {
	t.Run("adds to quantity on hand", func(t *testing.T) {
		lot := newTestLot(t, "1.25", nil)
		require.NoError(t, lot.Receive(decimal.RequireFromString("0.75")))
		assert.True(t, lot.QuantityOnHand.Equal(decimal.NewFromInt(2)))
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		lot := newTestLot(t, "1", nil)
		assert.Error(t, lot.Receive(decimal.Zero))
	})
}
