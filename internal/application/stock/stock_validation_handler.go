package stock

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
)

// StockValidationHandler answers stock validation requests with the
// current eligible availability of the product
type StockValidationHandler struct {
	lotRepo   stock.StockLotRepository
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewStockValidationHandler creates a new handler for validation requests
func NewStockValidationHandler(lotRepo stock.StockLotRepository, publisher shared.EventPublisher, logger *zap.Logger) *StockValidationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockValidationHandler{lotRepo: lotRepo, publisher: publisher, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *StockValidationHandler) EventTypes() []string {
	return []string{stock.EventTypeStockValidationRequested}
}

// Handle processes a StockValidationRequestedEvent
func (h *StockValidationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	request, ok := event.(*stock.StockValidationRequestedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			stock.EventTypeStockValidationRequested, event.EventType())
	}

	available, err := h.lotRepo.AvailableQuantity(ctx, request.ProductID)
	if err != nil {
		return fmt.Errorf("failed to read availability for product %s: %w", request.ProductID, err)
	}

	sufficient := available.GreaterThanOrEqual(request.RequestedQty)
	answer := stock.NewProductValidatedEvent(request.RequestID, request.ProductID, available, sufficient)
	if err := h.publisher.Publish(ctx, answer); err != nil {
		return fmt.Errorf("failed to publish validation answer: %w", err)
	}

	h.logger.Debug("stock validation answered",
		zap.String("request_id", request.RequestID.String()),
		zap.String("product_id", request.ProductID.String()),
		zap.String("available", available.String()),
		zap.Bool("sufficient", sufficient))
	return nil
}
