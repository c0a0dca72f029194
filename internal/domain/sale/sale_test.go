package sale

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
)

func newTestSale(t *testing.T) *Sale {
	t.Helper()
	s, err := NewSale(uuid.New(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, s.AddItem(uuid.New(), decimal.NewFromInt(2), nil))
	return s
}

func advanceTo(t *testing.T, s *Sale, status SaleStatus) {
	t.Helper()
	steps := []struct {
		status SaleStatus
		fn     func() error
	}{
		{StatusPlanning, s.BeginPlanning},
		{StatusAuthorizing, s.BeginAuthorizing},
		{StatusCommitting, s.BeginCommitting},
	}
	for _, step := range steps {
		if s.Status == status {
			return
		}
		require.NoError(t, step.fn())
	}
	require.Equal(t, status, s.Status)
}

func TestNewSale(t *testing.T) {
	t.Run("keeps the caller supplied ID", func(t *testing.T) {
		id := uuid.New()
		s, err := NewSale(id, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, id, s.ID)
		assert.Equal(t, StatusReceived, s.Status)
	})

	t.Run("requires sale and operator IDs", func(t *testing.T) {
		_, err := NewSale(uuid.Nil, uuid.New())
		assert.Error(t, err)
		_, err = NewSale(uuid.New(), uuid.Nil)
		assert.Error(t, err)
	})
}

func TestSale_AddItem(t *testing.T) {
	t.Run("normalizes the quantity", func(t *testing.T) {
		s, err := NewSale(uuid.New(), uuid.New())
		require.NoError(t, err)
		require.NoError(t, s.AddItem(uuid.New(), decimal.RequireFromString("1.00049"), nil))
		assert.True(t, s.Items[0].Quantity.Equal(decimal.NewFromInt(1)))
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		s, err := NewSale(uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.Error(t, s.AddItem(uuid.New(), decimal.Zero, nil))
	})

	t.Run("rejects items after planning started", func(t *testing.T) {
		s := newTestSale(t)
		require.NoError(t, s.BeginPlanning())
		err := s.AddItem(uuid.New(), decimal.NewFromInt(1), nil)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestSale_StateMachine(t *testing.T) {
	t.Run("happy path through commit", func(t *testing.T) {
		s := newTestSale(t)
		require.NoError(t, s.BeginPlanning())
		require.NoError(t, s.BeginAuthorizing())
		require.NoError(t, s.BeginCommitting())
		require.NoError(t, s.MarkCommitted([]stock.CommittedLine{
			{ProductID: s.Items[0].ProductID, LotID: uuid.New(), LotCode: "L1", Quantity: s.Items[0].Quantity},
		}))

		assert.Equal(t, StatusCommitted, s.Status)
		assert.NotNil(t, s.CommittedAt)
		assert.True(t, s.IsTerminal())
	})

	t.Run("planning requires items", func(t *testing.T) {
		s, err := NewSale(uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.Error(t, s.BeginPlanning())
	})

	t.Run("skipping states is rejected", func(t *testing.T) {
		s := newTestSale(t)
		assert.ErrorIs(t, s.BeginCommitting(), shared.ErrInvalidState)
		assert.ErrorIs(t, s.MarkCommitted(nil), shared.ErrInvalidState)
	})

	t.Run("terminal states admit no transitions", func(t *testing.T) {
		s := newTestSale(t)
		advanceTo(t, s, StatusCommitting)
		require.NoError(t, s.MarkCommitted(nil))

		assert.ErrorIs(t, s.Reject("late", nil), shared.ErrInvalidState)
		assert.ErrorIs(t, s.BeginPlanning(), shared.ErrInvalidState)
	})

	t.Run("rejection is allowed from every non-terminal state", func(t *testing.T) {
		for _, status := range []SaleStatus{StatusReceived, StatusPlanning, StatusAuthorizing, StatusCommitting} {
			s := newTestSale(t)
			advanceTo(t, s, status)
			require.NoError(t, s.Reject("cancelled", nil), "from %s", status)
			assert.Equal(t, StatusRejected, s.Status)
		}
	})
}

func TestSale_Events(t *testing.T) {
	t.Run("commit raises StockCommitted", func(t *testing.T) {
		s := newTestSale(t)
		advanceTo(t, s, StatusCommitting)

		lines := []stock.CommittedLine{
			{ProductID: s.Items[0].ProductID, LotID: uuid.New(), LotCode: "L1", Quantity: s.Items[0].Quantity},
		}
		require.NoError(t, s.MarkCommitted(lines))

		events := s.GetDomainEvents()
		require.Len(t, events, 1)
		committed, ok := events[0].(*stock.StockCommittedEvent)
		require.True(t, ok)
		assert.Equal(t, s.ID, committed.SaleID)
		assert.Equal(t, lines, committed.Lines)
	})

	t.Run("conflict rejection raises StockCommitFailed with shortfalls", func(t *testing.T) {
		s := newTestSale(t)
		advanceTo(t, s, StatusCommitting)

		shortfalls := []stock.Shortfall{{
			ProductID: s.Items[0].ProductID,
			LotID:     uuid.New(),
			Requested: decimal.NewFromInt(2),
			Available: decimal.NewFromInt(1),
		}}
		require.NoError(t, s.Reject("stock conflict", shortfalls))

		events := s.GetDomainEvents()
		require.Len(t, events, 1)
		failed, ok := events[0].(*stock.StockCommitFailedEvent)
		require.True(t, ok)
		assert.Equal(t, shortfalls, failed.Shortfalls)
	})

	t.Run("plain rejection raises no event", func(t *testing.T) {
		s := newTestSale(t)
		require.NoError(t, s.Reject("cancelled by caller", nil))
		assert.Empty(t, s.GetDomainEvents())
	})
}

func TestSale_CanCancel(t *testing.T) {
	s := newTestSale(t)
	assert.True(t, s.CanCancel())

	require.NoError(t, s.BeginPlanning())
	assert.True(t, s.CanCancel())

	require.NoError(t, s.BeginAuthorizing())
	assert.True(t, s.CanCancel())

	require.NoError(t, s.BeginCommitting())
	assert.False(t, s.CanCancel())
}
