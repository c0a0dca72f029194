package sale

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
)

// SaleStatus is the lifecycle state of a sale
type SaleStatus string

const (
	StatusReceived    SaleStatus = "RECEIVED"
	StatusPlanning    SaleStatus = "PLANNING"
	StatusAuthorizing SaleStatus = "AUTHORIZING"
	StatusCommitting  SaleStatus = "COMMITTING"
	StatusCommitted   SaleStatus = "COMMITTED"
	StatusRejected    SaleStatus = "REJECTED"
)

// validTransitions encodes the sale state machine. A sale moves strictly
// forward; Committed and Rejected are terminal.
var validTransitions = map[SaleStatus][]SaleStatus{
	StatusReceived:    {StatusPlanning, StatusRejected},
	StatusPlanning:    {StatusAuthorizing, StatusRejected},
	StatusAuthorizing: {StatusCommitting, StatusRejected},
	StatusCommitting:  {StatusCommitted, StatusRejected},
	StatusCommitted:   {},
	StatusRejected:    {},
}

// SaleItem is one requested line of a sale. LotID is nil when the
// operator accepted the FEFO recommendation and set when a specific lot
// was requested.
type SaleItem struct {
	shared.BaseEntity
	SaleID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null"`
	Quantity  decimal.Decimal `gorm:"type:decimal(18,3);not null"`
	LotID     *uuid.UUID      `gorm:"type:uuid"`
}

// Sale is the aggregate tracking one checkout through planning,
// authorization and commit
type Sale struct {
	shared.BaseAggregateRoot
	OperatorID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status       SaleStatus `gorm:"size:20;not null;index"`
	Items        []SaleItem `gorm:"foreignKey:SaleID;references:ID"`
	RejectReason string     `gorm:"size:500"`
	CommittedAt  *time.Time
}

// NewSale creates a sale in the Received state. The sale ID is supplied by
// the caller so resubmissions of the same checkout reuse their identifier.
func NewSale(id, operatorID uuid.UUID) (*Sale, error) {
	if id == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SALE", "Sale ID is required")
	}
	if operatorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_OPERATOR", "Operator ID is required")
	}
	return &Sale{
		BaseAggregateRoot: shared.NewBaseAggregateRootWithID(id),
		OperatorID:        operatorID,
		Status:            StatusReceived,
	}, nil
}

// AddItem appends a requested line. Items can only be added before
// planning begins.
func (s *Sale) AddItem(productID uuid.UUID, quantity decimal.Decimal, lotID *uuid.UUID) error {
	if s.Status != StatusReceived {
		return fmt.Errorf("%w: items cannot be added to a %s sale", shared.ErrInvalidState, s.Status)
	}
	if productID == uuid.Nil {
		return shared.NewDomainError("INVALID_PRODUCT", "Product ID is required")
	}
	quantity = stock.NormalizeQuantity(quantity)
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Item quantity must be positive")
	}
	s.Items = append(s.Items, SaleItem{
		BaseEntity: shared.NewBaseEntity(),
		SaleID:     s.ID,
		ProductID:  productID,
		Quantity:   quantity,
		LotID:      lotID,
	})
	s.Touch()
	return nil
}

// BeginPlanning moves the sale into the Planning state
func (s *Sale) BeginPlanning() error {
	if len(s.Items) == 0 {
		return shared.NewDomainError("EMPTY_SALE", "Sale has no items")
	}
	return s.transition(StatusPlanning)
}

// BeginAuthorizing moves the sale into the Authorizing state
func (s *Sale) BeginAuthorizing() error {
	return s.transition(StatusAuthorizing)
}

// BeginCommitting moves the sale into the Committing state. From here on
// the sale can no longer be cancelled by the caller.
func (s *Sale) BeginCommitting() error {
	return s.transition(StatusCommitting)
}

// MarkCommitted finalizes the sale after the stock decrement was durably
// applied and raises the StockCommitted event
func (s *Sale) MarkCommitted(lines []stock.CommittedLine) error {
	if err := s.transition(StatusCommitted); err != nil {
		return err
	}
	now := time.Now()
	s.CommittedAt = &now
	s.AddDomainEvent(stock.NewStockCommittedEvent(s.ID, s.OperatorID, lines))
	return nil
}

// Reject terminates the sale with a reason. When the rejection was caused
// by a stock conflict the shortfalls ride along on the StockCommitFailed
// event so downstream consumers see exactly what was missing.
func (s *Sale) Reject(reason string, shortfalls []stock.Shortfall) error {
	if err := s.transition(StatusRejected); err != nil {
		return err
	}
	s.RejectReason = reason
	if len(shortfalls) > 0 {
		s.AddDomainEvent(stock.NewStockCommitFailedEvent(s.ID, s.OperatorID, shortfalls))
	}
	return nil
}

// CanCancel reports whether the caller can still abandon the sale.
// Once committing has started the outcome is decided by the ledger alone.
func (s *Sale) CanCancel() bool {
	switch s.Status {
	case StatusReceived, StatusPlanning, StatusAuthorizing:
		return true
	}
	return false
}

// IsTerminal reports whether the sale reached a final state
func (s *Sale) IsTerminal() bool {
	return s.Status == StatusCommitted || s.Status == StatusRejected
}

func (s *Sale) transition(to SaleStatus) error {
	for _, allowed := range validTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			s.Touch()
			return nil
		}
	}
	return s.transitionError(to)
}

func (s *Sale) transitionError(to SaleStatus) error {
	return fmt.Errorf("%w: sale %s cannot move from %s to %s",
		shared.ErrInvalidState, s.ID, s.Status, to)
}
