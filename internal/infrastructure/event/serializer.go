package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
)

// EventSerializer handles JSON serialization of domain events. The type
// registry is the closed set of events this service knows; deserializing
// an unregistered type is an error.
type EventSerializer struct {
	mu              sync.RWMutex
	registry        map[string]reflect.Type     // eventType -> Go type
	currentVersions map[string]int              // eventType -> current schema version
	upgraders       map[string]map[int]Upgrader // eventType -> fromVersion -> upgrader
}

// NewEventSerializer creates a new event serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry:        make(map[string]reflect.Type),
		currentVersions: make(map[string]int),
		upgraders:       make(map[string]map[int]Upgrader),
	}
}

// NewStockEventSerializer creates a serializer with the stock domain's
// event set registered
func NewStockEventSerializer() *EventSerializer {
	s := NewEventSerializer()
	s.Register(stock.EventTypeStockEntryRequested, &stock.StockEntryRequestedEvent{})
	s.Register(stock.EventTypeStockValidationRequested, &stock.StockValidationRequestedEvent{})
	s.Register(stock.EventTypeProductValidated, &stock.ProductValidatedEvent{})
	s.Register(stock.EventTypeStockCommitted, &stock.StockCommittedEvent{})
	s.Register(stock.EventTypeStockCommitFailed, &stock.StockCommitFailedEvent{})
	return s
}

// Register registers an event type for deserialization.
// The eventType must match what EventType() returns on the event.
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize serializes a domain event to JSON bytes
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Deserialize deserializes JSON bytes to a domain event
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	data, err := s.upgradePayload(eventType, data)
	if err != nil {
		return nil, err
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns all registered event types
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	return types
}
