package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockStockLotRepository creates a GormStockLotRepository with a mocked SQL connection
func newMockStockLotRepository(t *testing.T) (*GormStockLotRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormStockLotRepository(gormDB), mock, mockDB
}

// TestDeductConditional_GuardInWhereClause verifies the decrement is issued
// as a single guarded UPDATE, not a read-modify-write
func TestDeductConditional_GuardInWhereClause(t *testing.T) {
	t.Run("loser of a race observes zero rows affected", func(t *testing.T) {
		repo, mock, mockDB := newMockStockLotRepository(t)
		defer mockDB.Close()

		lotID := uuid.New()

		mock.ExpectExec(`UPDATE "stock_lots" SET .* WHERE id = \$\d+ AND quantity_on_hand >= \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		applied, err := repo.DeductConditional(context.Background(), lotID, decimal.NewFromInt(5))

		assert.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("winner applies exactly one row", func(t *testing.T) {
		repo, mock, mockDB := newMockStockLotRepository(t)
		defer mockDB.Close()

		lotID := uuid.New()

		mock.ExpectExec(`UPDATE "stock_lots" SET .* WHERE id = \$\d+ AND quantity_on_hand >= \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := repo.DeductConditional(context.Background(), lotID, decimal.NewFromInt(5))

		assert.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
