package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockEntryRequest reports inbound goods for one lot. An existing lot
// with the same product and lot code is topped up; otherwise a new lot
// is created.
type StockEntryRequest struct {
	ProductID   uuid.UUID       `json:"product_id" binding:"required"`
	WarehouseID uuid.UUID       `json:"warehouse_id" binding:"required"`
	LotCode     string          `json:"lot_code" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	ExpiryDate  *time.Time      `json:"expiry_date"`
}

// StockEntryResponse acknowledges an accepted stock entry. The entry is
// processed asynchronously; EntryID correlates the eventual lot change.
type StockEntryResponse struct {
	EntryID   uuid.UUID `json:"entry_id"`
	ProductID uuid.UUID `json:"product_id"`
	LotCode   string    `json:"lot_code"`
	Accepted  bool      `json:"accepted"`
}

// ValidateStockRequest asks whether a product can cover a quantity
type ValidateStockRequest struct {
	ProductID    uuid.UUID       `json:"product_id" binding:"required"`
	RequestedQty decimal.Decimal `json:"requested_qty" binding:"required"`
}

// ValidateStockResponse acknowledges a published validation request
type ValidateStockResponse struct {
	RequestID uuid.UUID `json:"request_id"`
	ProductID uuid.UUID `json:"product_id"`
}

// LotResponse is one stock lot in ledger listings
type LotResponse struct {
	ID             uuid.UUID       `json:"id"`
	ProductID      uuid.UUID       `json:"product_id"`
	WarehouseID    uuid.UUID       `json:"warehouse_id"`
	LotCode        string          `json:"lot_code"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	Expired        bool            `json:"expired"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        int             `json:"version"`
}
