package stock

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLotRepository persists stock lots
type StockLotRepository interface {
	// Create inserts a new lot
	Create(ctx context.Context, lot *StockLot) error
	// Save updates an existing lot using optimistic locking
	Save(ctx context.Context, lot *StockLot) error
	// FindByID loads a lot by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*StockLot, error)
	// FindByLotCode loads a lot by product and lot code
	FindByLotCode(ctx context.Context, productID uuid.UUID, lotCode string) (*StockLot, error)
	// FindByProduct lists all lots of a product, including empty and expired ones
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]*StockLot, error)
	// FindEligibleForAllocation lists lots with positive quantity that are
	// not expired as of the given reference time, in FEFO order
	FindEligibleForAllocation(ctx context.Context, productID uuid.UUID) ([]*StockLot, error)
	// AvailableQuantity sums the on-hand quantity over eligible lots
	AvailableQuantity(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
}

// LotOverrideAuditRepository persists override audit records
type LotOverrideAuditRepository interface {
	Save(ctx context.Context, audit *LotOverrideAudit) error
	FindBySale(ctx context.Context, saleID uuid.UUID) ([]*LotOverrideAudit, error)
	FindByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]*LotOverrideAudit, error)
}
