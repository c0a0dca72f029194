package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOutboxRepository is an in-memory OutboxRepository for testing
type mockOutboxRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*shared.OutboxEntry
	order   []uuid.UUID
}

func newMockOutboxRepository() *mockOutboxRepository {
	return &mockOutboxRepository{
		entries: make(map[uuid.UUID]*shared.OutboxEntry),
	}
}

func (r *mockOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		if _, ok := r.entries[e.ID]; !ok {
			r.order = append(r.order, e.ID)
		}
		r.entries[e.ID] = e
	}
	return nil
}

func (r *mockOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, id := range r.order {
		e := r.entries[id]
		if e.Status != shared.OutboxStatusPending || r.hasOlderUndelivered(e) {
			continue
		}
		result = append(result, e)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// hasOlderUndelivered mirrors the FindPending contract: a pending entry
// waits while an older entry of its aggregate is FAILED or PROCESSING.
func (r *mockOutboxRepository) hasOlderUndelivered(e *shared.OutboxEntry) bool {
	for _, other := range r.entries {
		if other.AggregateID != e.AggregateID || !other.CreatedAt.Before(e.CreatedAt) {
			continue
		}
		if other.Status == shared.OutboxStatusFailed || other.Status == shared.OutboxStatusProcessing {
			return true
		}
	}
	return false
}

func (r *mockOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, id := range r.order {
		e := r.entries[id]
		if e.Status == shared.OutboxStatusFailed && e.NextRetryAt != nil && e.NextRetryAt.Before(before) {
			result = append(result, e)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, id := range r.order {
		if r.entries[id].Status == shared.OutboxStatusDead {
			result = append(result, r.entries[id])
		}
	}
	return result, int64(len(result)), nil
}

func (r *mockOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.ErrNotFound
}

func (r *mockOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, id := range ids {
		if e, ok := r.entries[id]; ok {
			e.Status = shared.OutboxStatusProcessing
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = entry
	return nil
}

func (r *mockOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *mockOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (r *mockOutboxRepository) statusOf(id uuid.UUID) shared.OutboxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id].Status
}

func saveTestEntry(t *testing.T, repo *mockOutboxRepository, serializer *EventSerializer, event shared.DomainEvent) *shared.OutboxEntry {
	t.Helper()
	payload, err := serializer.Serialize(event)
	require.NoError(t, err)
	entry := shared.NewOutboxEntry(event, payload)
	require.NoError(t, repo.Save(context.Background(), entry))
	return entry
}

func runProcessorOnce(t *testing.T, processor *OutboxProcessor) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, processor.Start(ctx))
	time.Sleep(200 * time.Millisecond)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, processor.Stop(stopCtx))
}

func TestOutboxProcessor_ProcessesPendingEntries(t *testing.T) {
	logger := zap.NewNop()
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})

	repo := newMockOutboxRepository()
	eventBus := NewInMemoryEventBus(logger)

	handler := newTestHandler("TestEvent")
	eventBus.Subscribe(handler, "TestEvent")

	entry := saveTestEntry(t, repo, serializer, newBusTestEvent("TestEvent"))

	config := OutboxProcessorConfig{BatchSize: 100, PollInterval: 50 * time.Millisecond}
	processor := NewOutboxProcessor(repo, eventBus, serializer, config, logger)

	runProcessorOnce(t, processor)

	assert.Len(t, handler.getHandled(), 1)
	assert.Equal(t, shared.OutboxStatusSent, repo.statusOf(entry.ID))
}

func TestOutboxProcessor_SameAggregateDispatchesInOrder(t *testing.T) {
	logger := zap.NewNop()
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})

	repo := newMockOutboxRepository()
	eventBus := NewInMemoryEventBus(logger)

	handler := newTestHandler("TestEvent")
	eventBus.Subscribe(handler, "TestEvent")

	aggregateID := uuid.New()
	var entries []*shared.OutboxEntry
	base := time.Now()
	for i := 0; i < 4; i++ {
		event := &testEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent("TestEvent", "TestAggregate", aggregateID),
			Data:            "test data",
		}
		entry := saveTestEntry(t, repo, serializer, event)
		entry.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		entries = append(entries, entry)
	}

	config := OutboxProcessorConfig{BatchSize: 100, PollInterval: 50 * time.Millisecond}
	processor := NewOutboxProcessor(repo, eventBus, serializer, config, logger)

	runProcessorOnce(t, processor)

	handled := handler.getHandled()
	require.Len(t, handled, 4)
	for i, event := range handled {
		assert.Equal(t, entries[i].EventID, event.EventID(), "event %d out of order", i)
	}
}

func TestOutboxProcessor_FailureBlocksLaterEventsOfSameAggregate(t *testing.T) {
	logger := zap.NewNop()
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})

	repo := newMockOutboxRepository()
	eventBus := NewInMemoryEventBus(logger)

	aggregateID := uuid.New()
	first := saveTestEntry(t, repo, serializer, &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("TestEvent", "TestAggregate", aggregateID),
	})
	second := saveTestEntry(t, repo, serializer, &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("TestEvent", "TestAggregate", aggregateID),
	})
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)

	// Corrupt the first payload so its dispatch fails.
	first.Payload = []byte(`{invalid json`)

	config := OutboxProcessorConfig{BatchSize: 100, PollInterval: time.Hour}
	processor := NewOutboxProcessor(repo, eventBus, serializer, config, logger)
	processor.processBatch(context.Background())

	assert.Equal(t, shared.OutboxStatusFailed, repo.statusOf(first.ID))
	// The second event must not overtake the failed one.
	assert.Equal(t, shared.OutboxStatusProcessing, repo.statusOf(second.ID))
}

func TestOutboxProcessor_DistinctAggregatesAreIndependent(t *testing.T) {
	logger := zap.NewNop()
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})

	repo := newMockOutboxRepository()
	eventBus := NewInMemoryEventBus(logger)

	failing := saveTestEntry(t, repo, serializer, newBusTestEvent("TestEvent"))
	failing.Payload = []byte(`{invalid json`)
	healthy := saveTestEntry(t, repo, serializer, newBusTestEvent("TestEvent"))

	config := OutboxProcessorConfig{BatchSize: 100, PollInterval: time.Hour}
	processor := NewOutboxProcessor(repo, eventBus, serializer, config, logger)
	processor.processBatch(context.Background())

	assert.Equal(t, shared.OutboxStatusFailed, repo.statusOf(failing.ID))
	assert.Equal(t, shared.OutboxStatusSent, repo.statusOf(healthy.ID))
}

func TestOutboxProcessor_HandlerFailureDrivesRetryLadder(t *testing.T) {
	logger := zap.NewNop()
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})

	repo := newMockOutboxRepository()
	eventBus := NewInMemoryEventBus(logger)

	failing := newTestHandler("TestEvent")
	failing.err = errors.New("consumer store unavailable")
	eventBus.Subscribe(failing, "TestEvent")

	entry := saveTestEntry(t, repo, serializer, newBusTestEvent("TestEvent"))

	config := OutboxProcessorConfig{BatchSize: 100, PollInterval: time.Hour}
	processor := NewOutboxProcessor(repo, eventBus, serializer, config, logger)
	processor.processBatch(context.Background())

	// A rejected delivery must not count as sent.
	assert.Equal(t, shared.OutboxStatusFailed, repo.statusOf(entry.ID))
	assert.Contains(t, repo.entries[entry.ID].LastError, "consumer store unavailable")

	for i := 1; i < shared.DefaultMaxRetries; i++ {
		// Make the failed entry immediately claimable again.
		repo.mu.Lock()
		repo.entries[entry.ID].Status = shared.OutboxStatusPending
		repo.mu.Unlock()

		processor.processBatch(context.Background())
	}

	assert.Equal(t, shared.OutboxStatusDead, repo.statusOf(entry.ID))
}

func TestOutboxProcessor_FailedAggregateHoldsBackLaterPolls(t *testing.T) {
	logger := zap.NewNop()
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})

	repo := newMockOutboxRepository()
	eventBus := NewInMemoryEventBus(logger)

	handler := newTestHandler("TestEvent")
	handler.err = errors.New("consumer store unavailable")
	eventBus.Subscribe(handler, "TestEvent")

	aggregateID := uuid.New()
	first := saveTestEntry(t, repo, serializer, &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("TestEvent", "TestAggregate", aggregateID),
	})
	config := OutboxProcessorConfig{BatchSize: 100, PollInterval: time.Hour}
	processor := NewOutboxProcessor(repo, eventBus, serializer, config, logger)
	processor.processBatch(context.Background())
	require.Equal(t, shared.OutboxStatusFailed, repo.statusOf(first.ID))

	// A newer event of the same aggregate arrives while the first one
	// waits for its retry window.
	second := saveTestEntry(t, repo, serializer, &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("TestEvent", "TestAggregate", aggregateID),
	})
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)

	processor.processBatch(context.Background())
	assert.Equal(t, shared.OutboxStatusFailed, repo.statusOf(first.ID))
	assert.Equal(t, shared.OutboxStatusPending, repo.statusOf(second.ID))
	require.Len(t, handler.getHandled(), 1)

	// Once the first entry retries successfully the second one flows.
	handler.mu.Lock()
	handler.err = nil
	handler.mu.Unlock()
	past := time.Now().Add(-time.Second)
	repo.mu.Lock()
	repo.entries[first.ID].NextRetryAt = &past
	repo.mu.Unlock()

	processor.processBatch(context.Background())
	processor.processBatch(context.Background())

	assert.Equal(t, shared.OutboxStatusSent, repo.statusOf(first.ID))
	assert.Equal(t, shared.OutboxStatusSent, repo.statusOf(second.ID))

	handled := handler.getHandled()
	require.Len(t, handled, 3)
	assert.Equal(t, first.EventID, handled[1].EventID())
	assert.Equal(t, second.EventID, handled[2].EventID())
}

func TestOutboxProcessor_DeadLetterAfterExhaustedRetries(t *testing.T) {
	logger := zap.NewNop()
	serializer := NewEventSerializer()

	repo := newMockOutboxRepository()
	eventBus := NewInMemoryEventBus(logger)

	entry := saveTestEntry(t, repo, serializer, newBusTestEvent("UnregisteredEvent"))

	config := OutboxProcessorConfig{BatchSize: 100, PollInterval: time.Hour}
	processor := NewOutboxProcessor(repo, eventBus, serializer, config, logger)

	for i := 0; i < shared.DefaultMaxRetries; i++ {
		// Make the failed entry immediately claimable again.
		repo.mu.Lock()
		if repo.entries[entry.ID].Status == shared.OutboxStatusFailed {
			repo.entries[entry.ID].Status = shared.OutboxStatusPending
		}
		repo.mu.Unlock()

		processor.processBatch(context.Background())
	}

	assert.Equal(t, shared.OutboxStatusDead, repo.statusOf(entry.ID))
	assert.Contains(t, repo.entries[entry.ID].LastError, "unknown event type")
}

func TestOutboxProcessor_StopGracefully(t *testing.T) {
	logger := zap.NewNop()
	processor := NewOutboxProcessor(newMockOutboxRepository(), NewInMemoryEventBus(logger), NewEventSerializer(), DefaultOutboxProcessorConfig(), logger)

	require.NoError(t, processor.Start(context.Background()))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, processor.Stop(stopCtx))
}

func TestDefaultOutboxProcessorConfig(t *testing.T) {
	config := DefaultOutboxProcessorConfig()

	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, 5*time.Second, config.PollInterval)
	assert.True(t, config.CleanupEnabled)
	assert.Equal(t, 7*24*time.Hour, config.CleanupRetention)
	assert.Equal(t, 1*time.Hour, config.CleanupInterval)
}
