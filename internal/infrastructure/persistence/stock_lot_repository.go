package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// fefoOrder sorts lots soonest-expiry first with non-perishables last.
// Ties on the same expiry date break on the lot ID so the order is
// stable across reads. The CASE keeps the clause portable to SQLite,
// which the tests run on.
const fefoOrder = "CASE WHEN expiry_date IS NULL THEN 1 ELSE 0 END, expiry_date ASC, id ASC"

// GormStockLotRepository implements StockLotRepository using GORM
type GormStockLotRepository struct {
	db *gorm.DB
}

// NewGormStockLotRepository creates a new GormStockLotRepository
func NewGormStockLotRepository(db *gorm.DB) *GormStockLotRepository {
	return &GormStockLotRepository{db: db}
}

// Create inserts a new lot
func (r *GormStockLotRepository) Create(ctx context.Context, lot *stock.StockLot) error {
	return r.db.WithContext(ctx).Create(lot).Error
}

// Save updates an existing lot with optimistic locking on the version column
func (r *GormStockLotRepository) Save(ctx context.Context, lot *stock.StockLot) error {
	lot.IncrementVersion()
	result := r.db.WithContext(ctx).
		Model(lot).
		Where("id = ? AND version = ?", lot.ID, lot.Version-1).
		Updates(map[string]interface{}{
			"quantity_on_hand": lot.QuantityOnHand,
			"expiry_date":      lot.ExpiryDate,
			"version":          lot.Version,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Stock lot was modified by another transaction")
	}
	return nil
}

// FindByID loads a lot by its ID
func (r *GormStockLotRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.StockLot, error) {
	var lot stock.StockLot
	if err := r.db.WithContext(ctx).First(&lot, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// FindByLotCode loads a lot by product and lot code
func (r *GormStockLotRepository) FindByLotCode(ctx context.Context, productID uuid.UUID, lotCode string) (*stock.StockLot, error) {
	var lot stock.StockLot
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND lot_code = ?", productID, lotCode).
		First(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// FindByProduct lists all lots of a product, including empty and expired ones
func (r *GormStockLotRepository) FindByProduct(ctx context.Context, productID uuid.UUID) ([]*stock.StockLot, error) {
	var lots []*stock.StockLot
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order(fefoOrder).
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// FindEligibleForAllocation lists lots with positive quantity that have
// not expired, in first-expired-first-out order
func (r *GormStockLotRepository) FindEligibleForAllocation(ctx context.Context, productID uuid.UUID) ([]*stock.StockLot, error) {
	var lots []*stock.StockLot
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND quantity_on_hand > 0 AND (expiry_date IS NULL OR expiry_date > ?)", productID, time.Now()).
		Order(fefoOrder).
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// AvailableQuantity sums the on-hand quantity over eligible lots
func (r *GormStockLotRepository) AvailableQuantity(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&stock.StockLot{}).
		Select("COALESCE(SUM(quantity_on_hand), 0) as total").
		Where("product_id = ? AND quantity_on_hand > 0 AND (expiry_date IS NULL OR expiry_date > ?)", productID, time.Now()).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// DeductConditional decrements a lot's on-hand quantity only when the
// lot still holds at least the requested amount. The guard lives in the
// WHERE clause, so the quantity can never go negative regardless of how
// many sales race on the same lot. Returns true when the decrement was
// applied, false when the lot had drained below the requested quantity.
func (r *GormStockLotRepository) DeductConditional(ctx context.Context, lotID uuid.UUID, qty decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&stock.StockLot{}).
		Where("id = ? AND quantity_on_hand >= ?", lotID, qty).
		Updates(map[string]interface{}{
			"quantity_on_hand": gorm.Expr("quantity_on_hand - ?", qty),
			"version":          gorm.Expr("version + 1"),
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// WithTx returns a repository bound to the given transaction
func (r *GormStockLotRepository) WithTx(tx *gorm.DB) *GormStockLotRepository {
	return &GormStockLotRepository{db: tx}
}
