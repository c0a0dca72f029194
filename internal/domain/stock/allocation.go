package stock

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PlanLine is one allocation step: take Quantity from the lot identified
// by LotID.
type PlanLine struct {
	LotID    uuid.UUID       `json:"lot_id"`
	LotCode  string          `json:"lot_code"`
	Quantity decimal.Decimal `json:"quantity"`
}

// AllocationPlan is the FEFO recommendation for a single product request.
// It is ephemeral: computed per request and never persisted.
type AllocationPlan struct {
	ProductID        uuid.UUID       `json:"product_id"`
	RequestedQty     decimal.Decimal `json:"requested_qty"`
	Lines            []PlanLine      `json:"lines"`
	RecommendedLotID uuid.UUID       `json:"recommended_lot_id"`
}

// QuantityFromLot returns the quantity the plan takes from the given lot,
// zero if the lot is not part of the plan
func (p *AllocationPlan) QuantityFromLot(lotID uuid.UUID) decimal.Decimal {
	for _, line := range p.Lines {
		if line.LotID == lotID {
			return line.Quantity
		}
	}
	return decimal.Zero
}

// TotalPlanned returns the sum of all plan line quantities. For any
// feasible plan this equals RequestedQty exactly.
func (p *AllocationPlan) TotalPlanned() decimal.Decimal {
	total := decimal.Zero
	for _, line := range p.Lines {
		total = total.Add(line.Quantity)
	}
	return total
}

// InfeasibleAllocationError is returned when the requested quantity exceeds
// the total eligible stock. It always carries the exact shortfall; a plan
// is never silently partial.
type InfeasibleAllocationError struct {
	ProductID uuid.UUID       `json:"product_id"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// Error implements the error interface
func (e *InfeasibleAllocationError) Error() string {
	return fmt.Sprintf("insufficient eligible stock for product %s: requested=%s available=%s shortfall=%s",
		e.ProductID, e.Requested.String(), e.Available.String(), e.Shortfall.String())
}

// SortLotsFEFO sorts lots in place into First-Expired-First-Out order:
// earliest expiry first, lots without an expiry date last (perishables are
// consumed before non-perishables). Equal expiry dates tie-break on the
// lowest lot ID so plans are deterministic and reproducible.
func SortLotsFEFO(lots []StockLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		ei, ej := lots[i].ExpiryDate, lots[j].ExpiryDate
		switch {
		case ei != nil && ej != nil:
			if !ei.Equal(*ej) {
				return ei.Before(*ej)
			}
		case ei != nil:
			return true
		case ej != nil:
			return false
		}
		return bytes.Compare(lots[i].ID[:], lots[j].ID[:]) < 0
	})
}

// PlanAllocation computes the FEFO allocation plan for a product request.
// It is a pure read: lots are not modified. Expired lots are excluded
// unconditionally, then consumption proceeds greedily from the
// earliest-expiring eligible lot. If total eligible stock cannot satisfy
// the request, an InfeasibleAllocationError carrying the shortfall is
// returned instead of a partial plan.
func PlanAllocation(productID uuid.UUID, requestedQty decimal.Decimal, lots []StockLot) (*AllocationPlan, error) {
	requestedQty = NormalizeQuantity(requestedQty)
	if requestedQty.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Requested quantity must be positive")
	}

	eligible := make([]StockLot, 0, len(lots))
	available := decimal.Zero
	for _, lot := range lots {
		if lot.ProductID != productID || !lot.IsEligible() {
			continue
		}
		eligible = append(eligible, lot)
		available = available.Add(lot.QuantityOnHand)
	}

	if available.LessThan(requestedQty) {
		return nil, &InfeasibleAllocationError{
			ProductID: productID,
			Requested: requestedQty,
			Available: available,
			Shortfall: requestedQty.Sub(available),
		}
	}

	SortLotsFEFO(eligible)

	plan := &AllocationPlan{
		ProductID:    productID,
		RequestedQty: requestedQty,
		Lines:        make([]PlanLine, 0, len(eligible)),
	}

	remaining := requestedQty
	for _, lot := range eligible {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(remaining, lot.QuantityOnHand)
		plan.Lines = append(plan.Lines, PlanLine{
			LotID:    lot.ID,
			LotCode:  lot.LotCode,
			Quantity: take,
		})
		remaining = remaining.Sub(take)
	}

	// The first plan line is the recommendation: the lot FEFO exhausts first.
	plan.RecommendedLotID = plan.Lines[0].LotID

	return plan, nil
}
