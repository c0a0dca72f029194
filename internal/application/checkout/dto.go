package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retailpos/backend/internal/domain/stock"
)

// Checkout outcome statuses returned to the caller
const (
	StatusCommitted          = "committed"
	StatusOutOfStock         = "out_of_stock"
	StatusAuthorizationError = "authorization_error"
)

// CheckoutItemRequest is one requested line of a checkout. LotID is
// optional: when absent the FEFO recommendation is used. Reason and Pin
// are only consulted when the chosen lot deviates from the recommendation.
type CheckoutItemRequest struct {
	ProductID uuid.UUID       `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	LotID     *uuid.UUID      `json:"lot_id"`
	Reason    string          `json:"reason"`
	Pin       string          `json:"pin"`
}

// CheckoutRequest represents one checkout attempt. The sale ID is supplied
// by the caller so a resubmission after a network failure reuses the same
// identifier instead of minting a second sale.
type CheckoutRequest struct {
	SaleID     uuid.UUID             `json:"sale_id" binding:"required"`
	OperatorID uuid.UUID             `json:"operator_id"`
	Items      []CheckoutItemRequest `json:"items" binding:"required,min=1"`
}

// MissingLine reports one lot that could not cover its requested quantity
// when a checkout is rejected for insufficient stock
type MissingLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	LotID     uuid.UUID       `json:"lot_id,omitempty"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
}

// CheckoutResponse is the outcome of a checkout attempt. Status is
// "committed", "out_of_stock" or "authorization_error"; Missing is
// populated only for out_of_stock, Field and Code only for
// authorization_error.
type CheckoutResponse struct {
	SaleID  uuid.UUID             `json:"sale_id"`
	Status  string                `json:"status"`
	Lines   []stock.CommittedLine `json:"lines,omitempty"`
	Missing []MissingLine         `json:"missing,omitempty"`
	Code    string                `json:"code,omitempty"`
	Field   string                `json:"field,omitempty"`
	Message string                `json:"message,omitempty"`
}

// LotOptionResponse is one lot a product can be sold from, in FEFO order.
// Exactly one option per product carries Recommended=true.
type LotOptionResponse struct {
	LotID          uuid.UUID       `json:"lot_id"`
	LotCode        string          `json:"lot_code"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	DaysToExpiry   *int            `json:"days_to_expiry,omitempty"`
	Recommended    bool            `json:"recommended"`
	Sufficient     bool            `json:"sufficient"`
}

// LotOptionsResponse lists the eligible lots for a product together with
// the FEFO plan for the requested quantity. RecommendedID names the lot
// the terminal should preselect; the same lot carries Recommended=true
// in Options.
type LotOptionsResponse struct {
	ProductID     uuid.UUID           `json:"product_id"`
	RequestedQty  decimal.Decimal     `json:"requested_qty"`
	Available     decimal.Decimal     `json:"available"`
	Feasible      bool                `json:"feasible"`
	RecommendedID *uuid.UUID          `json:"recommended_id,omitempty"`
	Options       []LotOptionResponse `json:"options"`
	Plan          []stock.PlanLine    `json:"plan,omitempty"`
}

func missingFromShortfalls(shortfalls []stock.Shortfall) []MissingLine {
	missing := make([]MissingLine, len(shortfalls))
	for i, s := range shortfalls {
		missing[i] = MissingLine{
			ProductID: s.ProductID,
			LotID:     s.LotID,
			Requested: s.Requested,
			Available: s.Available,
		}
	}
	return missing
}
