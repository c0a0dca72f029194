package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxEntry(t *testing.T) {
	event := newBusTestEvent("TestEvent")
	payload := []byte(`{"test": true}`)

	entry := shared.NewOutboxEntry(event, payload)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, event.EventID(), entry.EventID)
	assert.Equal(t, "TestEvent", entry.EventType)
	assert.Equal(t, event.AggregateID(), entry.AggregateID)
	assert.Equal(t, "TestAggregate", entry.AggregateType)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, shared.OutboxStatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, shared.DefaultMaxRetries, entry.MaxRetries)
}

func TestOutboxEntry_CanRetry(t *testing.T) {
	tests := []struct {
		name       string
		status     shared.OutboxStatus
		retryCount int
		expected   bool
	}{
		{name: "pending cannot retry", status: shared.OutboxStatusPending, retryCount: 0, expected: false},
		{name: "failed with retries left can retry", status: shared.OutboxStatusFailed, retryCount: 2, expected: true},
		{name: "failed at max retries cannot retry", status: shared.OutboxStatusFailed, retryCount: 5, expected: false},
		{name: "sent cannot retry", status: shared.OutboxStatusSent, retryCount: 0, expected: false},
		{name: "dead cannot retry", status: shared.OutboxStatusDead, retryCount: 5, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := shared.NewOutboxEntry(newBusTestEvent("TestEvent"), nil)
			entry.Status = tt.status
			entry.RetryCount = tt.retryCount
			assert.Equal(t, tt.expected, entry.CanRetry())
		})
	}
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	t.Run("claims pending entry", func(t *testing.T) {
		entry := shared.NewOutboxEntry(newBusTestEvent("TestEvent"), nil)
		require.NoError(t, entry.MarkProcessing())
		assert.Equal(t, shared.OutboxStatusProcessing, entry.Status)
	})

	t.Run("claims failed entry for retry", func(t *testing.T) {
		entry := shared.NewOutboxEntry(newBusTestEvent("TestEvent"), nil)
		entry.Status = shared.OutboxStatusFailed
		require.NoError(t, entry.MarkProcessing())
		assert.Equal(t, shared.OutboxStatusProcessing, entry.Status)
	})

	t.Run("rejects sent entry", func(t *testing.T) {
		entry := shared.NewOutboxEntry(newBusTestEvent("TestEvent"), nil)
		entry.Status = shared.OutboxStatusSent
		assert.Error(t, entry.MarkProcessing())
	})
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	t.Run("backoff doubles with each failure", func(t *testing.T) {
		entry := shared.NewOutboxEntry(newBusTestEvent("TestEvent"), nil)

		expectedBackoffs := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
		}
		for i, expected := range expectedBackoffs {
			before := time.Now()
			entry.MarkFailed("publish failed")

			assert.Equal(t, i+1, entry.RetryCount)
			assert.Equal(t, shared.OutboxStatusFailed, entry.Status)
			require.NotNil(t, entry.NextRetryAt)

			gap := entry.NextRetryAt.Sub(before)
			assert.InDelta(t, expected.Seconds(), gap.Seconds(), 0.5)
		}
	})

	t.Run("moves to dead letter after max retries", func(t *testing.T) {
		entry := shared.NewOutboxEntry(newBusTestEvent("TestEvent"), nil)
		for i := 0; i < shared.DefaultMaxRetries; i++ {
			entry.MarkFailed("publish failed")
		}

		assert.Equal(t, shared.OutboxStatusDead, entry.Status)
		assert.Equal(t, shared.DefaultMaxRetries, entry.RetryCount)
		assert.Equal(t, "publish failed", entry.LastError)
	})
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	entry := shared.NewOutboxEntry(newBusTestEvent("TestEvent"), nil)
	require.NoError(t, entry.MarkProcessing())

	entry.MarkSent()

	assert.Equal(t, shared.OutboxStatusSent, entry.Status)
	require.NotNil(t, entry.ProcessedAt)
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	t.Run("revives dead letter entry", func(t *testing.T) {
		entry := shared.NewOutboxEntry(newBusTestEvent("TestEvent"), nil)
		for i := 0; i < shared.DefaultMaxRetries; i++ {
			entry.MarkFailed("publish failed")
		}
		require.Equal(t, shared.OutboxStatusDead, entry.Status)

		require.NoError(t, entry.ResetForRetry())

		assert.Equal(t, shared.OutboxStatusPending, entry.Status)
		assert.Equal(t, 0, entry.RetryCount)
		assert.Nil(t, entry.NextRetryAt)
	})

	t.Run("rejects entries that are not dead", func(t *testing.T) {
		entry := shared.NewOutboxEntry(newBusTestEvent("TestEvent"), nil)
		assert.Error(t, entry.ResetForRetry())
	})
}
