package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// QuantityScale is the fixed decimal scale for stock quantities
// (e.g., liters tracked to the milliliter). All quantities are rounded
// to this scale before they enter the ledger.
const QuantityScale = 3

// NormalizeQuantity rounds a quantity to the ledger's fixed scale
func NormalizeQuantity(q decimal.Decimal) decimal.Decimal {
	return q.Round(QuantityScale)
}

// StockLot represents one physical batch of one product in one warehouse.
// Lots are never deleted: a lot whose quantity reaches zero remains on
// record for audit and history.
type StockLot struct {
	shared.BaseAggregateRoot
	ProductID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_lot_product_code,priority:1"`
	WarehouseID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	LotCode        string          `gorm:"size:64;not null;uniqueIndex:idx_stock_lot_product_code,priority:2"` // human-readable batch identifier
	QuantityOnHand decimal.Decimal `gorm:"type:decimal(18,3);not null;default:0"`
	ExpiryDate     *time.Time      `gorm:"index"` // nil for non-perishables
}

// NewStockLot creates a new stock lot
func NewStockLot(
	productID, warehouseID uuid.UUID,
	lotCode string,
	quantity decimal.Decimal,
	expiryDate *time.Time,
) (*StockLot, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID is required")
	}
	if warehouseID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse ID is required")
	}
	if lotCode == "" {
		return nil, shared.NewDomainError("INVALID_LOT_CODE", "Lot code is required")
	}
	if quantity.IsNegative() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Lot quantity cannot be negative")
	}

	return &StockLot{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         productID,
		WarehouseID:       warehouseID,
		LotCode:           lotCode,
		QuantityOnHand:    NormalizeQuantity(quantity),
		ExpiryDate:        expiryDate,
	}, nil
}

// IsExpired returns true if the lot has passed its expiry date
func (l *StockLot) IsExpired() bool {
	if l.ExpiryDate == nil {
		return false
	}
	return l.ExpiryDate.Before(time.Now())
}

// IsEligible returns true if the lot can be offered for allocation:
// it has stock on hand and has not expired. Expired lots are never
// eligible, even for an operator override.
func (l *StockLot) IsEligible() bool {
	return l.QuantityOnHand.GreaterThan(decimal.Zero) && !l.IsExpired()
}

// HasQuantity returns true if the lot holds at least the given quantity
func (l *StockLot) HasQuantity(qty decimal.Decimal) bool {
	return l.QuantityOnHand.GreaterThanOrEqual(qty)
}

// Deduct reduces the quantity on hand. The ledger invariant is that
// quantity never goes negative; the authoritative guard is the
// conditional decrement in the commit engine, this in-memory guard
// covers direct aggregate use.
func (l *StockLot) Deduct(qty decimal.Decimal) error {
	qty = NormalizeQuantity(qty)
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Deduction quantity must be positive")
	}
	if qty.GreaterThan(l.QuantityOnHand) {
		return shared.ErrInsufficientStock
	}
	l.QuantityOnHand = l.QuantityOnHand.Sub(qty)
	l.Touch()
	return nil
}

// Receive increases the quantity on hand (inbound stock entry or adjustment)
func (l *StockLot) Receive(qty decimal.Decimal) error {
	qty = NormalizeQuantity(qty)
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Received quantity must be positive")
	}
	l.QuantityOnHand = l.QuantityOnHand.Add(qty)
	l.Touch()
	return nil
}

// DaysUntilExpiry returns the number of days until expiry, -1 if no expiry date
func (l *StockLot) DaysUntilExpiry() int {
	if l.ExpiryDate == nil {
		return -1
	}
	return int(time.Until(*l.ExpiryDate).Hours() / 24)
}
