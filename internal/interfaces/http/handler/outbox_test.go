package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retailpos/backend/internal/application/event"
	"github.com/retailpos/backend/internal/domain/shared"
)

type mockOutboxRepository struct {
	entries map[uuid.UUID]*shared.OutboxEntry
}

func newMockOutboxRepository() *mockOutboxRepository {
	return &mockOutboxRepository{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (m *mockOutboxRepository) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return nil
}

func (m *mockOutboxRepository) FindPending(_ context.Context, limit int) ([]*shared.OutboxEntry, error) {
	return m.byStatus(shared.OutboxStatusPending, limit), nil
}

func (m *mockOutboxRepository) FindRetryable(_ context.Context, _ time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return m.byStatus(shared.OutboxStatusFailed, limit), nil
}

func (m *mockOutboxRepository) FindDead(_ context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	dead := m.byStatus(shared.OutboxStatusDead, 0)
	sort.Slice(dead, func(i, j int) bool {
		return dead[i].CreatedAt.Before(dead[j].CreatedAt)
	})
	total := int64(len(dead))
	start := (page - 1) * pageSize
	if start >= len(dead) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(dead) {
		end = len(dead)
	}
	return dead[start:end], total, nil
}

func (m *mockOutboxRepository) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return entry, nil
}

func (m *mockOutboxRepository) MarkProcessing(_ context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	var result []*shared.OutboxEntry
	for _, id := range ids {
		if entry, ok := m.entries[id]; ok && entry.MarkProcessing() == nil {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (m *mockOutboxRepository) Update(_ context.Context, entry *shared.OutboxEntry) error {
	m.entries[entry.ID] = entry
	return nil
}

func (m *mockOutboxRepository) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	var deleted int64
	for id, entry := range m.entries {
		if entry.Status == shared.OutboxStatusSent && entry.CreatedAt.Before(before) {
			delete(m.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockOutboxRepository) CountByStatus(_ context.Context) (map[shared.OutboxStatus]int64, error) {
	counts := make(map[shared.OutboxStatus]int64)
	for _, entry := range m.entries {
		counts[entry.Status]++
	}
	return counts, nil
}

func (m *mockOutboxRepository) byStatus(status shared.OutboxStatus, limit int) []*shared.OutboxEntry {
	var result []*shared.OutboxEntry
	for _, entry := range m.entries {
		if entry.Status == status {
			result = append(result, entry)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (m *mockOutboxRepository) addDead(t *testing.T, eventType string, age time.Duration) *shared.OutboxEntry {
	t.Helper()
	entry := &shared.OutboxEntry{
		BaseEntity: shared.BaseEntity{
			ID:        uuid.New(),
			CreatedAt: time.Now().Add(-age),
			UpdatedAt: time.Now(),
		},
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateID:   uuid.New(),
		AggregateType: "Sale",
		Payload:       []byte(`{}`),
		Status:        shared.OutboxStatusDead,
		RetryCount:    shared.DefaultMaxRetries,
		MaxRetries:    shared.DefaultMaxRetries,
		LastError:     "handler failed",
	}
	m.entries[entry.ID] = entry
	return entry
}

func newOutboxTestEnv(t *testing.T) (*gin.Engine, *mockOutboxRepository) {
	t.Helper()
	repo := newMockOutboxRepository()
	service := event.NewOutboxService(repo, zap.NewNop())

	router := gin.New()
	h := NewOutboxHandler(service)
	h.RegisterRoutes(router.Group("/api/v1"))
	return router, repo
}

func TestOutboxHandler_GetDeadLetterEntries(t *testing.T) {
	router, repo := newOutboxTestEnv(t)
	oldest := repo.addDead(t, "StockCommitted", 2*time.Hour)
	repo.addDead(t, "StockCommitFailed", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/dead", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	require.NotNil(t, env.Meta)
	assert.Equal(t, int64(2), env.Meta.Total)
	assert.Equal(t, 1, env.Meta.Page)

	var entries []event.OutboxEntryDTO
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, oldest.ID, entries[0].ID)
	assert.Equal(t, string(shared.OutboxStatusDead), entries[0].Status)
}

func TestOutboxHandler_GetDeadLetterEntriesPagination(t *testing.T) {
	router, repo := newOutboxTestEnv(t)
	for i := 0; i < 5; i++ {
		repo.addDead(t, "StockCommitted", time.Duration(i)*time.Minute)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/dead?page=2&page_size=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Meta)
	assert.Equal(t, int64(5), env.Meta.Total)
	assert.Equal(t, 2, env.Meta.Page)
	assert.Equal(t, 2, env.Meta.PageSize)
	assert.Equal(t, 3, env.Meta.TotalPages)

	var entries []event.OutboxEntryDTO
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	assert.Len(t, entries, 2)
}

func TestOutboxHandler_GetEntry(t *testing.T) {
	router, repo := newOutboxTestEnv(t)
	entry := repo.addDead(t, "StockCommitted", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/"+entry.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)

	var dtoEntry event.OutboxEntryDTO
	require.NoError(t, json.Unmarshal(env.Data, &dtoEntry))
	assert.Equal(t, entry.ID, dtoEntry.ID)
	assert.Equal(t, "StockCommitted", dtoEntry.EventType)
}

func TestOutboxHandler_GetEntryNotFound(t *testing.T) {
	router, _ := newOutboxTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "ERR_NOT_FOUND", env.Error.Code)
}

func TestOutboxHandler_RetryDeadEntry(t *testing.T) {
	router, repo := newOutboxTestEnv(t)
	entry := repo.addDead(t, "StockCommitted", time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/outbox/dead/"+entry.ID.String()+"/retry", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)

	var dtoEntry event.OutboxEntryDTO
	require.NoError(t, json.Unmarshal(env.Data, &dtoEntry))
	assert.Equal(t, string(shared.OutboxStatusPending), dtoEntry.Status)
	assert.Equal(t, 0, dtoEntry.RetryCount)
	assert.Equal(t, shared.OutboxStatusPending, repo.entries[entry.ID].Status)
}

func TestOutboxHandler_RetryDeadEntryInvalidID(t *testing.T) {
	router, _ := newOutboxTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/outbox/dead/not-a-uuid/retry", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutboxHandler_RetryAllDeadEntries(t *testing.T) {
	router, repo := newOutboxTestEnv(t)
	repo.addDead(t, "StockCommitted", time.Hour)
	repo.addDead(t, "StockCommitFailed", 2*time.Hour)
	repo.addDead(t, "StockEntryRequested", 3*time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/outbox/dead/retry-all", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)

	var result RetryAllResponse
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(3), result.Count)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[shared.OutboxStatusDead])
	assert.Equal(t, int64(3), counts[shared.OutboxStatusPending])
}

func TestOutboxHandler_GetStats(t *testing.T) {
	router, repo := newOutboxTestEnv(t)
	repo.addDead(t, "StockCommitted", time.Hour)
	pending := repo.addDead(t, "StockCommitFailed", time.Hour)
	pending.Status = shared.OutboxStatusPending

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)

	var stats event.OutboxStatsDTO
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(2), stats.Total)
}
