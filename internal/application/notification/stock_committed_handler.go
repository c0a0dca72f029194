package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
)

// Notification is one outbound message produced for a committed sale,
// e.g. a receipt for the customer or a ledger digest for ops
type Notification struct {
	ID        uuid.UUID `json:"id"`
	SaleID    uuid.UUID `json:"sale_id"`
	Channel   string    `json:"channel"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification channels
const (
	ChannelReceipt = "receipt"
	ChannelOps     = "ops"
)

// NotificationStore persists outbound notifications for delivery
type NotificationStore interface {
	Save(ctx context.Context, n Notification) error
}

// StockCommittedHandler turns committed sales into notification records.
// The handler itself is not idempotent: it is meant to be wrapped by the
// idempotency layer, which is what keeps a redelivered StockCommitted
// event from producing a duplicate receipt.
type StockCommittedHandler struct {
	store  NotificationStore
	logger *zap.Logger
}

// NewStockCommittedHandler creates a new notification producer
func NewStockCommittedHandler(store NotificationStore, logger *zap.Logger) *StockCommittedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockCommittedHandler{store: store, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *StockCommittedHandler) EventTypes() []string {
	return []string{stock.EventTypeStockCommitted}
}

// Handle processes a StockCommittedEvent
func (h *StockCommittedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	committed, ok := event.(*stock.StockCommittedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			stock.EventTypeStockCommitted, event.EventType())
	}

	receipt := Notification{
		ID:        uuid.New(),
		SaleID:    committed.SaleID,
		Channel:   ChannelReceipt,
		Subject:   fmt.Sprintf("Receipt for sale %s", committed.SaleID),
		Body:      receiptBody(committed),
		CreatedAt: time.Now(),
	}
	if err := h.store.Save(ctx, receipt); err != nil {
		return fmt.Errorf("failed to save receipt notification: %w", err)
	}

	h.logger.Info("receipt notification recorded",
		zap.String("sale_id", committed.SaleID.String()),
		zap.Int("lines", len(committed.Lines)))
	return nil
}

func receiptBody(committed *stock.StockCommittedEvent) string {
	body := fmt.Sprintf("Sale %s committed with %d line(s):", committed.SaleID, len(committed.Lines))
	for _, line := range committed.Lines {
		body += fmt.Sprintf("\n- %s x %s (lot %s)", line.ProductID, line.Quantity.String(), line.LotCode)
	}
	return body
}

// InMemoryNotificationStore keeps notifications in memory. Delivery over
// real channels (mail, SMS) plugs in behind NotificationStore.
type InMemoryNotificationStore struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewInMemoryNotificationStore creates a new in-memory store
func NewInMemoryNotificationStore() *InMemoryNotificationStore {
	return &InMemoryNotificationStore{}
}

// Save stores a notification
func (s *InMemoryNotificationStore) Save(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

// All returns every stored notification
func (s *InMemoryNotificationStore) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Notification, len(s.notifications))
	copy(result, s.notifications)
	return result
}
