package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormLowStockProvider counts products whose eligible stock is at or
// below the replenishment threshold. It backs the periodic low stock
// gauge, so the query runs on an interval, never per request.
type GormLowStockProvider struct {
	db        *gorm.DB
	threshold decimal.Decimal
}

// NewGormLowStockProvider creates a new low stock provider
func NewGormLowStockProvider(db *gorm.DB, threshold decimal.Decimal) *GormLowStockProvider {
	return &GormLowStockProvider{db: db, threshold: threshold}
}

// GetLowStockCount returns the number of products at or below the threshold
func (p *GormLowStockProvider) GetLowStockCount(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM (
			SELECT product_id
			FROM stock_lots
			WHERE quantity_on_hand > 0
			  AND (expiry_date IS NULL OR expiry_date > ?)
			GROUP BY product_id
			HAVING SUM(quantity_on_hand) <= ?
		) low`, time.Now(), p.threshold).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
