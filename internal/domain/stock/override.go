package stock

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/shared"
)

// Authorization error codes. Each maps to a distinct input field so the
// caller knows exactly what to fix; they are never merged.
const (
	ErrCodeMissingReason  = "MISSING_REASON"
	ErrCodeInvalidPin     = "INVALID_PIN"
	ErrCodeLotNotEligible = "LOT_NOT_ELIGIBLE"
)

// PinValidator validates an operator's authorization PIN. Credential
// storage lives in the auth domain; the stock core only consumes this
// collaborator interface.
type PinValidator interface {
	Validate(ctx context.Context, operatorID uuid.UUID, pin string) (bool, error)
}

// LotOverrideAudit records one operator deviation from the FEFO
// recommendation. Written synchronously during checkout validation,
// before the commit is attempted, and immutable afterwards. The record
// stands even if the owning sale is later rejected by a stock conflict.
type LotOverrideAudit struct {
	shared.BaseEntity
	SaleID           uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID        uuid.UUID `gorm:"type:uuid;not null;index"`
	ChosenLotID      uuid.UUID `gorm:"type:uuid;not null"`
	RecommendedLotID uuid.UUID `gorm:"type:uuid;not null"`
	Reason           string    `gorm:"size:500;not null"`
	OperatorID       uuid.UUID `gorm:"type:uuid;not null"`
	AuthorizedAt     time.Time `gorm:"not null"`
}

// NewLotOverrideAudit creates an audit record for an authorized override
func NewLotOverrideAudit(saleID, productID, chosenLotID, recommendedLotID, operatorID uuid.UUID, reason string) *LotOverrideAudit {
	return &LotOverrideAudit{
		BaseEntity:       shared.NewBaseEntity(),
		SaleID:           saleID,
		ProductID:        productID,
		ChosenLotID:      chosenLotID,
		RecommendedLotID: recommendedLotID,
		Reason:           reason,
		OperatorID:       operatorID,
		AuthorizedAt:     time.Now(),
	}
}

// OverrideRequest carries the operator's justification for deviating from
// the recommended lot
type OverrideRequest struct {
	SaleID      uuid.UUID
	ChosenLotID uuid.UUID
	Reason      string
	Pin         string
	OperatorID  uuid.UUID
}

// OverrideAuthorizer validates operator deviations from the FEFO plan
type OverrideAuthorizer struct {
	pins PinValidator
}

// NewOverrideAuthorizer creates a new override authorizer
func NewOverrideAuthorizer(pins PinValidator) *OverrideAuthorizer {
	return &OverrideAuthorizer{pins: pins}
}

// Authorize validates a chosen lot against the FEFO plan. When the chosen
// lot is the recommended one, authorization is a no-op and no audit record
// is produced. Otherwise the reason and PIN are both mandatory, and the
// chosen lot must be able to carry the full requested quantity at
// authorization time (re-validated again at commit, since stock may move
// in between).
//
// The returned audit record has not been persisted; the caller must write
// it before proceeding to commit.
func (a *OverrideAuthorizer) Authorize(
	ctx context.Context,
	plan *AllocationPlan,
	req OverrideRequest,
	lots []StockLot,
) (*LotOverrideAudit, error) {
	if req.ChosenLotID == plan.RecommendedLotID {
		// Not an override.
		return nil, nil
	}

	if strings.TrimSpace(req.Reason) == "" {
		return nil, shared.NewFieldError(ErrCodeMissingReason, "reason", "Override reason is required")
	}

	if req.Pin == "" {
		return nil, shared.NewFieldError(ErrCodeInvalidPin, "pin", "Authorization PIN is required")
	}
	ok, err := a.pins.Validate(ctx, req.OperatorID, req.Pin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NewFieldError(ErrCodeInvalidPin, "pin", "Authorization PIN is invalid")
	}

	chosen := findLot(lots, req.ChosenLotID)
	if chosen == nil || chosen.ProductID != plan.ProductID {
		return nil, shared.NewFieldError(ErrCodeLotNotEligible, "lot_id", "Chosen lot does not exist for this product")
	}
	if !chosen.IsEligible() {
		return nil, shared.NewFieldError(ErrCodeLotNotEligible, "lot_id", "Chosen lot is expired or empty")
	}
	if !chosen.HasQuantity(plan.RequestedQty) {
		return nil, shared.NewFieldError(ErrCodeLotNotEligible, "lot_id", "Chosen lot cannot cover the requested quantity")
	}

	return NewLotOverrideAudit(
		req.SaleID,
		plan.ProductID,
		req.ChosenLotID,
		plan.RecommendedLotID,
		req.OperatorID,
		strings.TrimSpace(req.Reason),
	), nil
}

func findLot(lots []StockLot, id uuid.UUID) *StockLot {
	for i := range lots {
		if lots[i].ID == id {
			return &lots[i]
		}
	}
	return nil
}

// OverridePlan replaces a FEFO plan with a single-lot plan for the chosen
// lot, keeping the original recommendation for the audit trail
func OverridePlan(plan *AllocationPlan, chosen *StockLot) *AllocationPlan {
	return &AllocationPlan{
		ProductID:        plan.ProductID,
		RequestedQty:     plan.RequestedQty,
		Lines:            []PlanLine{{LotID: chosen.ID, LotCode: chosen.LotCode, Quantity: plan.RequestedQty}},
		RecommendedLotID: plan.RecommendedLotID,
	}
}
