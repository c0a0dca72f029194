package stock

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
)

// StockEntryRequestedHandler applies inbound stock entries to the lot
// ledger: an entry for a known product and lot code tops up that lot,
// anything else creates a new one. Redelivery of the same event is
// absorbed by the idempotency layer, not here.
type StockEntryRequestedHandler struct {
	lotRepo stock.StockLotRepository
	logger  *zap.Logger
}

// NewStockEntryRequestedHandler creates a new handler for stock entry events
func NewStockEntryRequestedHandler(lotRepo stock.StockLotRepository, logger *zap.Logger) *StockEntryRequestedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockEntryRequestedHandler{lotRepo: lotRepo, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *StockEntryRequestedHandler) EventTypes() []string {
	return []string{stock.EventTypeStockEntryRequested}
}

// Handle processes a StockEntryRequestedEvent
func (h *StockEntryRequestedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	entry, ok := event.(*stock.StockEntryRequestedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			stock.EventTypeStockEntryRequested, event.EventType())
	}

	existing, err := h.lotRepo.FindByLotCode(ctx, entry.ProductID, entry.LotCode)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("failed to look up lot %s: %w", entry.LotCode, err)
	}

	if existing != nil {
		if err := existing.Receive(entry.Quantity); err != nil {
			return err
		}
		if err := h.lotRepo.Save(ctx, existing); err != nil {
			return fmt.Errorf("failed to top up lot %s: %w", entry.LotCode, err)
		}
		h.logger.Info("lot topped up",
			zap.String("lot_code", entry.LotCode),
			zap.String("product_id", entry.ProductID.String()),
			zap.String("quantity", entry.Quantity.String()))
		return nil
	}

	lot, err := stock.NewStockLot(entry.ProductID, entry.WarehouseID, entry.LotCode, entry.Quantity, entry.ExpiryDate)
	if err != nil {
		return err
	}
	if err := h.lotRepo.Create(ctx, lot); err != nil {
		return fmt.Errorf("failed to create lot %s: %w", entry.LotCode, err)
	}
	h.logger.Info("lot created",
		zap.String("lot_code", entry.LotCode),
		zap.String("product_id", entry.ProductID.String()),
		zap.String("quantity", entry.Quantity.String()))
	return nil
}
