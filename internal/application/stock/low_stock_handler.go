package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
)

// ReplenishmentNotifier is notified when a product's eligible stock has
// fallen to or below the replenishment threshold
type ReplenishmentNotifier interface {
	NotifyLowStock(ctx context.Context, productID uuid.UUID, available, threshold decimal.Decimal) error
}

// LowStockHandler watches committed sales and checks each sold product
// against the replenishment threshold. A notifier failure is logged but
// does not fail the event: the alert is advisory, the sale is done.
type LowStockHandler struct {
	lotRepo   stock.StockLotRepository
	threshold decimal.Decimal
	notifier  ReplenishmentNotifier
	logger    *zap.Logger
}

// NewLowStockHandler creates a new low stock watcher
func NewLowStockHandler(lotRepo stock.StockLotRepository, threshold decimal.Decimal, logger *zap.Logger) *LowStockHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowStockHandler{lotRepo: lotRepo, threshold: threshold, logger: logger}
}

// WithNotifier sets the replenishment notifier
func (h *LowStockHandler) WithNotifier(notifier ReplenishmentNotifier) *LowStockHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *LowStockHandler) EventTypes() []string {
	return []string{stock.EventTypeStockCommitted}
}

// Handle processes a StockCommittedEvent
func (h *LowStockHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	committed, ok := event.(*stock.StockCommittedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			stock.EventTypeStockCommitted, event.EventType())
	}

	// A sale can draw one product from several lots; check each product once.
	seen := make(map[uuid.UUID]struct{}, len(committed.Lines))
	for _, line := range committed.Lines {
		if _, done := seen[line.ProductID]; done {
			continue
		}
		seen[line.ProductID] = struct{}{}

		available, err := h.lotRepo.AvailableQuantity(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("failed to read availability for product %s: %w", line.ProductID, err)
		}
		if available.GreaterThan(h.threshold) {
			continue
		}

		h.logger.Warn("product at or below replenishment threshold",
			zap.String("product_id", line.ProductID.String()),
			zap.String("available", available.String()),
			zap.String("threshold", h.threshold.String()))

		if h.notifier != nil {
			if err := h.notifier.NotifyLowStock(ctx, line.ProductID, available, h.threshold); err != nil {
				h.logger.Error("low stock notification failed",
					zap.String("product_id", line.ProductID.String()),
					zap.Error(err))
			}
		}
	}
	return nil
}
