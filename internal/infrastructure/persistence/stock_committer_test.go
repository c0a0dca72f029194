package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/stock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStockCommitter_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("commits all lines atomically", func(t *testing.T) {
		db := setupTestDB(t)
		committer := NewGormStockCommitter(db)
		lots := NewGormStockLotRepository(db)

		productID := uuid.New()
		lotA := seedLot(t, db, productID, "A", "3", expiryIn(10))
		lotB := seedLot(t, db, productID, "B", "10", expiryIn(20))

		saleID := uuid.New()
		result, err := committer.Commit(ctx, saleID, []stock.CommitItem{
			{ProductID: productID, LotID: lotA.ID, Quantity: decimal.NewFromInt(3)},
			{ProductID: productID, LotID: lotB.ID, Quantity: decimal.NewFromInt(2)},
		})
		require.NoError(t, err)

		assert.True(t, result.Committed)
		assert.Equal(t, saleID, result.SaleID)
		require.Len(t, result.Lines, 2)
		assert.Empty(t, result.Shortfalls)

		reloadedA, err := lots.FindByID(ctx, lotA.ID)
		require.NoError(t, err)
		assert.True(t, reloadedA.QuantityOnHand.IsZero())

		reloadedB, err := lots.FindByID(ctx, lotB.ID)
		require.NoError(t, err)
		assert.True(t, reloadedB.QuantityOnHand.Equal(decimal.NewFromInt(8)))
	})

	t.Run("lines carry the lot code", func(t *testing.T) {
		db := setupTestDB(t)
		committer := NewGormStockCommitter(db)

		productID := uuid.New()
		lot := seedLot(t, db, productID, "L-2026-07", "5", expiryIn(10))

		result, err := committer.Commit(ctx, uuid.New(), []stock.CommitItem{
			{ProductID: productID, LotID: lot.ID, Quantity: decimal.NewFromInt(1)},
		})
		require.NoError(t, err)
		require.Len(t, result.Lines, 1)
		assert.Equal(t, "L-2026-07", result.Lines[0].LotCode)
		assert.Equal(t, lot.ID, result.Lines[0].LotID)
	})

	t.Run("rolls back everything on a single shortfall", func(t *testing.T) {
		db := setupTestDB(t)
		committer := NewGormStockCommitter(db)
		lots := NewGormStockLotRepository(db)

		productID := uuid.New()
		lotA := seedLot(t, db, productID, "A", "10", expiryIn(10))
		lotB := seedLot(t, db, productID, "B", "1", expiryIn(20))

		saleID := uuid.New()
		result, err := committer.Commit(ctx, saleID, []stock.CommitItem{
			{ProductID: productID, LotID: lotA.ID, Quantity: decimal.NewFromInt(4)},
			{ProductID: productID, LotID: lotB.ID, Quantity: decimal.NewFromInt(2)},
		})

		var conflict *stock.CommitConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, saleID, conflict.SaleID)
		require.Len(t, conflict.Shortfalls, 1)

		shortfall := conflict.Shortfalls[0]
		assert.Equal(t, lotB.ID, shortfall.LotID)
		assert.True(t, shortfall.Requested.Equal(decimal.NewFromInt(2)))
		assert.True(t, shortfall.Available.Equal(decimal.NewFromInt(1)))

		require.NotNil(t, result)
		assert.False(t, result.Committed)

		// The partial decrement of lot A must not survive.
		reloadedA, err := lots.FindByID(ctx, lotA.ID)
		require.NoError(t, err)
		assert.True(t, reloadedA.QuantityOnHand.Equal(decimal.NewFromInt(10)), "got %s", reloadedA.QuantityOnHand)

		reloadedB, err := lots.FindByID(ctx, lotB.ID)
		require.NoError(t, err)
		assert.True(t, reloadedB.QuantityOnHand.Equal(decimal.NewFromInt(1)))
	})

	t.Run("collects every shortfall before rolling back", func(t *testing.T) {
		db := setupTestDB(t)
		committer := NewGormStockCommitter(db)

		productID := uuid.New()
		lotA := seedLot(t, db, productID, "A", "1", expiryIn(10))
		lotB := seedLot(t, db, productID, "B", "1", expiryIn(20))

		_, err := committer.Commit(ctx, uuid.New(), []stock.CommitItem{
			{ProductID: productID, LotID: lotA.ID, Quantity: decimal.NewFromInt(5)},
			{ProductID: productID, LotID: lotB.ID, Quantity: decimal.NewFromInt(5)},
		})

		var conflict *stock.CommitConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Len(t, conflict.Shortfalls, 2)
	})

	t.Run("vanished lot reports zero available", func(t *testing.T) {
		db := setupTestDB(t)
		committer := NewGormStockCommitter(db)

		_, err := committer.Commit(ctx, uuid.New(), []stock.CommitItem{
			{ProductID: uuid.New(), LotID: uuid.New(), Quantity: decimal.NewFromInt(1)},
		})

		var conflict *stock.CommitConflictError
		require.ErrorAs(t, err, &conflict)
		require.Len(t, conflict.Shortfalls, 1)
		assert.True(t, conflict.Shortfalls[0].Available.IsZero())
	})

	t.Run("rejects empty and non-positive input", func(t *testing.T) {
		db := setupTestDB(t)
		committer := NewGormStockCommitter(db)

		_, err := committer.Commit(ctx, uuid.New(), nil)
		assert.Error(t, err)

		_, err = committer.Commit(ctx, uuid.New(), []stock.CommitItem{
			{ProductID: uuid.New(), LotID: uuid.New(), Quantity: decimal.Zero},
		})
		assert.Error(t, err)
	})
}
