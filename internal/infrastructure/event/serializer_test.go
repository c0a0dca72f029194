package event

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpos/backend/internal/domain/stock"
)

func TestStockEventSerializer(t *testing.T) {
	s := NewStockEventSerializer()

	t.Run("all stock event types are registered", func(t *testing.T) {
		for _, eventType := range stock.EventTypes() {
			assert.True(t, s.IsRegistered(eventType), eventType)
		}
		assert.Len(t, s.RegisteredTypes(), 5)
	})

	t.Run("round trips a committed event", func(t *testing.T) {
		original := stock.NewStockCommittedEvent(uuid.New(), uuid.New(), []stock.CommittedLine{
			{ProductID: uuid.New(), LotID: uuid.New(), LotCode: "L1", Quantity: decimal.RequireFromString("2.5")},
		})

		data, err := s.Serialize(original)
		require.NoError(t, err)

		restored, err := s.Deserialize(stock.EventTypeStockCommitted, data)
		require.NoError(t, err)

		committed, ok := restored.(*stock.StockCommittedEvent)
		require.True(t, ok)
		assert.Equal(t, original.EventID(), committed.EventID())
		assert.Equal(t, original.SaleID, committed.SaleID)
		require.Len(t, committed.Lines, 1)
		assert.True(t, committed.Lines[0].Quantity.Equal(decimal.RequireFromString("2.5")))
	})

	t.Run("unknown type is an error", func(t *testing.T) {
		_, err := s.Deserialize("LotSplit", []byte("{}"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown event type")
	})

	t.Run("malformed payload is an error", func(t *testing.T) {
		_, err := s.Deserialize(stock.EventTypeStockCommitted, []byte("{not json"))
		assert.Error(t, err)
	})
}

func TestEventSerializer_Versioning(t *testing.T) {
	t.Run("extract version defaults to 1", func(t *testing.T) {
		assert.Equal(t, 1, ExtractVersion([]byte(`{"data":"x"}`)))
		assert.Equal(t, 3, ExtractVersion([]byte(`{"schema_version":3}`)))
		assert.Equal(t, 1, ExtractVersion([]byte(`not json`)))
	})

	t.Run("old payload is upgraded through the chain", func(t *testing.T) {
		s := NewStockEventSerializer()
		s.SetCurrentVersion(stock.EventTypeStockCommitted, 2)
		s.RegisterUpgrader(stock.EventTypeStockCommitted, 1, func(payload map[string]interface{}) (map[string]interface{}, error) {
			// v1 carried the operator under "cashier_id".
			if cashier, ok := payload["cashier_id"]; ok {
				payload["operator_id"] = cashier
				delete(payload, "cashier_id")
			}
			return payload, nil
		})

		operatorID := uuid.New()
		v1, err := json.Marshal(map[string]interface{}{
			"id":             uuid.New().String(),
			"type":           stock.EventTypeStockCommitted,
			"aggregate_id":   uuid.New().String(),
			"aggregate_type": stock.AggregateTypeSale,
			"sale_id":        uuid.New().String(),
			"cashier_id":     operatorID.String(),
			"schema_version": 1,
		})
		require.NoError(t, err)

		restored, err := s.Deserialize(stock.EventTypeStockCommitted, v1)
		require.NoError(t, err)

		committed, ok := restored.(*stock.StockCommittedEvent)
		require.True(t, ok)
		assert.Equal(t, operatorID, committed.OperatorID)
	})

	t.Run("gap in the upgrade chain fails loudly", func(t *testing.T) {
		s := NewStockEventSerializer()
		s.SetCurrentVersion(stock.EventTypeStockCommitted, 3)
		// Only 2->3 registered, 1->2 missing.
		s.RegisterUpgrader(stock.EventTypeStockCommitted, 2, func(p map[string]interface{}) (map[string]interface{}, error) {
			return p, nil
		})

		_, err := s.Deserialize(stock.EventTypeStockCommitted, []byte(`{"schema_version":1}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no upgrader")
	})

	t.Run("current payload passes through untouched", func(t *testing.T) {
		s := NewStockEventSerializer()
		event := stock.NewStockValidationRequestedEvent(uuid.New(), uuid.New(), decimal.NewFromInt(4))
		data, err := s.Serialize(event)
		require.NoError(t, err)

		restored, err := s.Deserialize(stock.EventTypeStockValidationRequested, data)
		require.NoError(t, err)
		assert.Equal(t, event.EventID(), restored.EventID())
	})
}
