package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retailpos/backend/internal/domain/stock"
)

// LotOptionsService answers the "which lot should this sale take from"
// question the terminal asks before checkout. It is a pure read: nothing
// is reserved, so the answer can go stale and the commit re-validates.
type LotOptionsService struct {
	lotRepo stock.StockLotRepository
	limit   int
}

// NewLotOptionsService creates a new LotOptionsService. limit caps the
// number of options returned per product; zero means no cap.
func NewLotOptionsService(lotRepo stock.StockLotRepository, limit int) *LotOptionsService {
	return &LotOptionsService{lotRepo: lotRepo, limit: limit}
}

// ListOptions returns the eligible lots of a product in FEFO order,
// flagging the recommended lot and, when a quantity is requested, the
// plan that satisfies it. A zero quantity lists options without a plan.
func (s *LotOptionsService) ListOptions(ctx context.Context, productID uuid.UUID, requestedQty decimal.Decimal) (*LotOptionsResponse, error) {
	lotPtrs, err := s.lotRepo.FindEligibleForAllocation(ctx, productID)
	if err != nil {
		return nil, err
	}
	lots := make([]stock.StockLot, len(lotPtrs))
	available := decimal.Zero
	for i, lot := range lotPtrs {
		lots[i] = *lot
		available = available.Add(lot.QuantityOnHand)
	}

	resp := &LotOptionsResponse{
		ProductID:    productID,
		RequestedQty: stock.NormalizeQuantity(requestedQty),
		Available:    available,
		Options:      make([]LotOptionResponse, 0, len(lots)),
	}

	var plan *stock.AllocationPlan
	if requestedQty.GreaterThan(decimal.Zero) {
		plan, err = stock.PlanAllocation(productID, requestedQty, lots)
		if err != nil {
			var infeasible *stock.InfeasibleAllocationError
			if !errors.As(err, &infeasible) {
				return nil, err
			}
			// Infeasible requests still list the options so the operator
			// sees what is on the shelf.
		}
	}
	if plan != nil {
		resp.Feasible = true
		resp.Plan = plan.Lines
	}

	recommended := uuid.Nil
	if plan != nil {
		recommended = plan.RecommendedLotID
	} else if len(lots) > 0 {
		recommended = lots[0].ID
	}
	if recommended != uuid.Nil {
		resp.RecommendedID = &recommended
	}

	for _, lot := range lots {
		if s.limit > 0 && len(resp.Options) >= s.limit {
			break
		}
		option := LotOptionResponse{
			LotID:          lot.ID,
			LotCode:        lot.LotCode,
			QuantityOnHand: lot.QuantityOnHand,
			ExpiryDate:     lot.ExpiryDate,
			Recommended:    lot.ID == recommended,
			Sufficient:     lot.HasQuantity(resp.RequestedQty),
		}
		if lot.ExpiryDate != nil {
			days := lot.DaysUntilExpiry()
			option.DaysToExpiry = &days
		}
		resp.Options = append(resp.Options, option)
	}

	return resp, nil
}
