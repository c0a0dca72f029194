package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constants
const (
	AggregateTypeSale       = "Sale"
	AggregateTypeStockEntry = "StockEntry"
	AggregateTypeProduct    = "Product"
)

// Event type constants. This is a closed set: the serializer registers
// exactly these types and dispatch of an unregistered type is an error,
// not a silent drop.
const (
	EventTypeStockEntryRequested      = "StockEntryRequested"
	EventTypeStockValidationRequested = "StockValidationRequested"
	EventTypeProductValidated         = "ProductValidated"
	EventTypeStockCommitted           = "StockCommitted"
	EventTypeStockCommitFailed        = "StockCommitFailed"
)

// EventTypes returns all event types of the stock domain
func EventTypes() []string {
	return []string{
		EventTypeStockEntryRequested,
		EventTypeStockValidationRequested,
		EventTypeProductValidated,
		EventTypeStockCommitted,
		EventTypeStockCommitFailed,
	}
}

// StockEntryRequestedEvent is raised when inbound stock is reported and a
// lot should be created or topped up
type StockEntryRequestedEvent struct {
	shared.BaseDomainEvent
	EntryID     uuid.UUID       `json:"entry_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	LotCode     string          `json:"lot_code"`
	Quantity    decimal.Decimal `json:"quantity"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
}

// NewStockEntryRequestedEvent creates a new StockEntryRequestedEvent
func NewStockEntryRequestedEvent(entryID, productID, warehouseID uuid.UUID, lotCode string, quantity decimal.Decimal, expiryDate *time.Time) *StockEntryRequestedEvent {
	return &StockEntryRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockEntryRequested, AggregateTypeStockEntry, entryID),
		EntryID:         entryID,
		ProductID:       productID,
		WarehouseID:     warehouseID,
		LotCode:         lotCode,
		Quantity:        quantity,
		ExpiryDate:      expiryDate,
	}
}

// EventType returns the event type name
func (e *StockEntryRequestedEvent) EventType() string {
	return EventTypeStockEntryRequested
}

// StockValidationRequestedEvent asks the stock domain whether a product can
// cover a requested quantity. Other domains (pricing, promotions) publish
// it without knowing how the ledger answers.
type StockValidationRequestedEvent struct {
	shared.BaseDomainEvent
	RequestID    uuid.UUID       `json:"request_id"`
	ProductID    uuid.UUID       `json:"product_id"`
	RequestedQty decimal.Decimal `json:"requested_qty"`
}

// NewStockValidationRequestedEvent creates a new StockValidationRequestedEvent
func NewStockValidationRequestedEvent(requestID, productID uuid.UUID, requestedQty decimal.Decimal) *StockValidationRequestedEvent {
	return &StockValidationRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockValidationRequested, AggregateTypeProduct, productID),
		RequestID:       requestID,
		ProductID:       productID,
		RequestedQty:    requestedQty,
	}
}

// EventType returns the event type name
func (e *StockValidationRequestedEvent) EventType() string {
	return EventTypeStockValidationRequested
}

// ProductValidatedEvent answers a StockValidationRequestedEvent with the
// current availability of the product
type ProductValidatedEvent struct {
	shared.BaseDomainEvent
	RequestID  uuid.UUID       `json:"request_id"`
	ProductID  uuid.UUID       `json:"product_id"`
	Available  decimal.Decimal `json:"available"`
	Sufficient bool            `json:"sufficient"`
}

// NewProductValidatedEvent creates a new ProductValidatedEvent
func NewProductValidatedEvent(requestID, productID uuid.UUID, available decimal.Decimal, sufficient bool) *ProductValidatedEvent {
	return &ProductValidatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductValidated, AggregateTypeProduct, productID),
		RequestID:       requestID,
		ProductID:       productID,
		Available:       available,
		Sufficient:      sufficient,
	}
}

// EventType returns the event type name
func (e *ProductValidatedEvent) EventType() string {
	return EventTypeProductValidated
}

// StockCommittedEvent is raised after a sale's lot decrements have been
// durably committed. Downstream domains (notifications, reporting,
// replenishment) react to it without the stock domain knowing about them.
type StockCommittedEvent struct {
	shared.BaseDomainEvent
	SaleID     uuid.UUID       `json:"sale_id"`
	OperatorID uuid.UUID       `json:"operator_id"`
	Lines      []CommittedLine `json:"lines"`
}

// NewStockCommittedEvent creates a new StockCommittedEvent
func NewStockCommittedEvent(saleID, operatorID uuid.UUID, lines []CommittedLine) *StockCommittedEvent {
	return &StockCommittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockCommitted, AggregateTypeSale, saleID),
		SaleID:          saleID,
		OperatorID:      operatorID,
		Lines:           lines,
	}
}

// EventType returns the event type name
func (e *StockCommittedEvent) EventType() string {
	return EventTypeStockCommitted
}

// StockCommitFailedEvent is raised when a sale's commit aborted on a stock
// conflict. It carries the exact shortfalls so callers and dashboards can
// present an actionable out-of-stock response.
type StockCommitFailedEvent struct {
	shared.BaseDomainEvent
	SaleID     uuid.UUID   `json:"sale_id"`
	OperatorID uuid.UUID   `json:"operator_id"`
	Shortfalls []Shortfall `json:"shortfalls"`
}

// NewStockCommitFailedEvent creates a new StockCommitFailedEvent
func NewStockCommitFailedEvent(saleID, operatorID uuid.UUID, shortfalls []Shortfall) *StockCommitFailedEvent {
	return &StockCommitFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockCommitFailed, AggregateTypeSale, saleID),
		SaleID:          saleID,
		OperatorID:      operatorID,
		Shortfalls:      shortfalls,
	}
}

// EventType returns the event type name
func (e *StockCommitFailedEvent) EventType() string {
	return EventTypeStockCommitFailed
}
