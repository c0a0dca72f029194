package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommitItem is one line of a sale commit: deduct Quantity from LotID
type CommitItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	LotID     uuid.UUID       `json:"lot_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// Shortfall describes a lot that could not cover its requested quantity
// at commit time
type Shortfall struct {
	ProductID uuid.UUID       `json:"product_id"`
	LotID     uuid.UUID       `json:"lot_id"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
}

// CommittedLine is one successfully applied decrement
type CommittedLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	LotID     uuid.UUID       `json:"lot_id"`
	LotCode   string          `json:"lot_code"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// CommitResult is the outcome of an atomic multi-item stock commit
type CommitResult struct {
	SaleID     uuid.UUID       `json:"sale_id"`
	Committed  bool            `json:"committed"`
	Lines      []CommittedLine `json:"lines,omitempty"`
	Shortfalls []Shortfall     `json:"shortfalls,omitempty"`
}

// CommitConflictError is returned when stock changed between planning and
// commit: some lot no longer holds the requested quantity. The whole sale
// is rolled back; no lot is touched.
type CommitConflictError struct {
	SaleID     uuid.UUID
	Shortfalls []Shortfall
}

// Error implements the error interface
func (e *CommitConflictError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("product=%s lot=%s requested=%s available=%s",
			s.ProductID, s.LotID, s.Requested.String(), s.Available.String())
	}
	return "stock commit conflict: " + strings.Join(parts, "; ")
}

// StockCommitter applies an accepted allocation plan as a durable,
// all-or-nothing decrement of lot quantities. Implementations must make
// a negative quantity on hand structurally impossible: the decrement is
// conditional on sufficient stock and the second of two racing sales
// deterministically fails with a CommitConflictError.
type StockCommitter interface {
	Commit(ctx context.Context, saleID uuid.UUID, items []CommitItem) (*CommitResult, error)
}
