package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
)

// StockEntryService accepts inbound stock reports and ledger queries.
// Entries are not applied inline: the service publishes a
// StockEntryRequested event and the entry handler applies it, so a burst
// of deliveries at the loading dock cannot stall the checkout path.
type StockEntryService struct {
	lotRepo   stock.StockLotRepository
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewStockEntryService creates a new StockEntryService
func NewStockEntryService(lotRepo stock.StockLotRepository, publisher shared.EventPublisher, logger *zap.Logger) *StockEntryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockEntryService{
		lotRepo:   lotRepo,
		publisher: publisher,
		logger:    logger,
	}
}

// RequestEntry validates and publishes an inbound stock entry
func (s *StockEntryService) RequestEntry(ctx context.Context, req StockEntryRequest) (*StockEntryResponse, error) {
	// Reuse the lot constructor's validation without persisting anything.
	if _, err := stock.NewStockLot(req.ProductID, req.WarehouseID, req.LotCode, req.Quantity, req.ExpiryDate); err != nil {
		return nil, err
	}

	entryID := uuid.New()
	event := stock.NewStockEntryRequestedEvent(
		entryID, req.ProductID, req.WarehouseID, req.LotCode, stock.NormalizeQuantity(req.Quantity), req.ExpiryDate)
	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to publish stock entry: %w", err)
	}

	s.logger.Info("stock entry accepted",
		zap.String("entry_id", entryID.String()),
		zap.String("product_id", req.ProductID.String()),
		zap.String("lot_code", req.LotCode))

	return &StockEntryResponse{
		EntryID:   entryID,
		ProductID: req.ProductID,
		LotCode:   req.LotCode,
		Accepted:  true,
	}, nil
}

// RequestValidation publishes a stock validation request. The answer
// arrives on the bus as a ProductValidated event.
func (s *StockEntryService) RequestValidation(ctx context.Context, req ValidateStockRequest) (*ValidateStockResponse, error) {
	if req.ProductID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID is required")
	}
	requestID := uuid.New()
	event := stock.NewStockValidationRequestedEvent(requestID, req.ProductID, stock.NormalizeQuantity(req.RequestedQty))
	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to publish validation request: %w", err)
	}
	return &ValidateStockResponse{RequestID: requestID, ProductID: req.ProductID}, nil
}

// ListLots returns every lot of a product, including empty and expired
// ones, for the ledger view
func (s *StockEntryService) ListLots(ctx context.Context, productID uuid.UUID) ([]LotResponse, error) {
	lots, err := s.lotRepo.FindByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	result := make([]LotResponse, len(lots))
	for i, lot := range lots {
		result[i] = LotResponse{
			ID:             lot.ID,
			ProductID:      lot.ProductID,
			WarehouseID:    lot.WarehouseID,
			LotCode:        lot.LotCode,
			QuantityOnHand: lot.QuantityOnHand,
			ExpiryDate:     lot.ExpiryDate,
			Expired:        lot.IsExpired(),
			CreatedAt:      lot.CreatedAt,
			UpdatedAt:      lot.UpdatedAt,
			Version:        lot.Version,
		}
	}
	return result, nil
}
