package persistence

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormStockCommitter applies an allocation plan as one atomic database
// transaction. Every line is a conditional decrement guarded in SQL, so
// two racing sales over the same lot serialize on the row update and the
// loser observes zero rows affected instead of driving stock negative.
type GormStockCommitter struct {
	db *gorm.DB
}

// NewGormStockCommitter creates a new GormStockCommitter
func NewGormStockCommitter(db *gorm.DB) *GormStockCommitter {
	return &GormStockCommitter{db: db}
}

var _ stock.StockCommitter = (*GormStockCommitter)(nil)

// Commit decrements every lot in the plan or none of them. When any lot
// no longer holds its requested quantity, the fresh availability is read,
// all shortfalls are collected and the transaction rolls back with a
// CommitConflictError.
func (c *GormStockCommitter) Commit(ctx context.Context, saleID uuid.UUID, items []stock.CommitItem) (*stock.CommitResult, error) {
	if len(items) == 0 {
		return nil, shared.NewDomainError("EMPTY_COMMIT", "Commit requires at least one item")
	}
	for _, item := range items {
		if stock.NormalizeQuantity(item.Quantity).LessThanOrEqual(decimal.Zero) {
			return nil, shared.NewDomainError("INVALID_QUANTITY", "Commit quantity must be positive")
		}
	}

	// Lots are always touched in ID order so that two sales hitting the
	// same pair of lots cannot deadlock each other.
	ordered := make([]stock.CommitItem, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].LotID[:], ordered[j].LotID[:]) < 0
	})

	var lines []stock.CommittedLine
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lots := NewGormStockLotRepository(tx)

		var shortfalls []stock.Shortfall
		for _, item := range ordered {
			qty := stock.NormalizeQuantity(item.Quantity)
			applied, err := lots.DeductConditional(ctx, item.LotID, qty)
			if err != nil {
				return err
			}
			if !applied {
				shortfalls = append(shortfalls, c.shortfallFor(ctx, tx, item, qty))
				continue
			}

			lot, err := lots.FindByID(ctx, item.LotID)
			if err != nil {
				return err
			}
			lines = append(lines, stock.CommittedLine{
				ProductID: item.ProductID,
				LotID:     item.LotID,
				LotCode:   lot.LotCode,
				Quantity:  qty,
			})
		}

		if len(shortfalls) > 0 {
			return &stock.CommitConflictError{SaleID: saleID, Shortfalls: shortfalls}
		}
		return nil
	})
	if err != nil {
		var conflict *stock.CommitConflictError
		if errors.As(err, &conflict) {
			return &stock.CommitResult{
				SaleID:     saleID,
				Committed:  false,
				Shortfalls: conflict.Shortfalls,
			}, conflict
		}
		return nil, err
	}

	return &stock.CommitResult{
		SaleID:    saleID,
		Committed: true,
		Lines:     lines,
	}, nil
}

// shortfallFor reads the lot's current quantity for the conflict report.
// A lot that vanished entirely reports zero available.
func (c *GormStockCommitter) shortfallFor(ctx context.Context, tx *gorm.DB, item stock.CommitItem, qty decimal.Decimal) stock.Shortfall {
	available := decimal.Zero
	var lot stock.StockLot
	if err := tx.WithContext(ctx).First(&lot, "id = ?", item.LotID).Error; err == nil {
		available = lot.QuantityOnHand
	}
	return stock.Shortfall{
		ProductID: item.ProductID,
		LotID:     item.LotID,
		Requested: qty,
		Available: available,
	}
}

// WithTx returns a committer bound to the given transaction. The nested
// Transaction call inside Commit then joins the outer transaction, which
// lets a caller commit stock, update the sale and write outbox entries
// atomically.
func (c *GormStockCommitter) WithTx(tx *gorm.DB) *GormStockCommitter {
	return &GormStockCommitter{db: tx}
}
