package event

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retailpos/backend/internal/domain/shared"
)

// stubOutboxRepo is an in-memory shared.OutboxRepository
type stubOutboxRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*shared.OutboxEntry
}

func newStubOutboxRepo() *stubOutboxRepo {
	return &stubOutboxRepo{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *stubOutboxRepo) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *stubOutboxRepo) FindPending(_ context.Context, _ int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *stubOutboxRepo) FindRetryable(_ context.Context, _ time.Time, _ int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *stubOutboxRepo) FindDead(_ context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dead []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			dead = append(dead, e)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].CreatedAt.Before(dead[j].CreatedAt) })
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

func (r *stubOutboxRepo) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return entry, nil
}

func (r *stubOutboxRepo) MarkProcessing(_ context.Context, _ []uuid.UUID) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *stubOutboxRepo) Update(_ context.Context, entry *shared.OutboxEntry) error {
	return r.Save(context.Background(), entry)
}

func (r *stubOutboxRepo) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *stubOutboxRepo) CountByStatus(_ context.Context) (map[shared.OutboxStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func deadEntry(t *testing.T, repo *stubOutboxRepo) *shared.OutboxEntry {
	t.Helper()
	entry := &shared.OutboxEntry{
		BaseEntity: shared.BaseEntity{
			ID:        uuid.New(),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		EventID:       uuid.New(),
		EventType:     "StockCommitted",
		AggregateID:   uuid.New(),
		AggregateType: "Sale",
		Payload:       []byte(`{}`),
		Status:        shared.OutboxStatusDead,
		RetryCount:    shared.DefaultMaxRetries,
		MaxRetries:    shared.DefaultMaxRetries,
		LastError:     "handler failed",
	}
	require.NoError(t, repo.Save(context.Background(), entry))
	return entry
}

func TestOutboxService_GetDeadLetterEntries(t *testing.T) {
	repo := newStubOutboxRepo()
	service := NewOutboxService(repo, zap.NewNop())
	deadEntry(t, repo)
	deadEntry(t, repo)

	result, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.Total)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, string(shared.OutboxStatusDead), result.Entries[0].Status)
}

func TestOutboxService_RetryDeadEntry(t *testing.T) {
	repo := newStubOutboxRepo()
	service := NewOutboxService(repo, zap.NewNop())
	entry := deadEntry(t, repo)

	dto, err := service.RetryDeadEntry(context.Background(), entry.ID)
	require.NoError(t, err)

	assert.Equal(t, string(shared.OutboxStatusPending), dto.Status)
	assert.Zero(t, dto.RetryCount)
	assert.Empty(t, dto.LastError)
}

func TestOutboxService_RetryDeadEntry_UnknownID(t *testing.T) {
	service := NewOutboxService(newStubOutboxRepo(), zap.NewNop())
	_, err := service.RetryDeadEntry(context.Background(), uuid.New())
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestOutboxService_RetryAllDeadEntries(t *testing.T) {
	repo := newStubOutboxRepo()
	service := NewOutboxService(repo, zap.NewNop())
	for i := 0; i < 3; i++ {
		deadEntry(t, repo)
	}

	count, err := service.RetryAllDeadEntries(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), count)
	counts, _ := repo.CountByStatus(context.Background())
	assert.Zero(t, counts[shared.OutboxStatusDead])
	assert.Equal(t, int64(3), counts[shared.OutboxStatusPending])
}

func TestOutboxService_GetStats(t *testing.T) {
	repo := newStubOutboxRepo()
	service := NewOutboxService(repo, zap.NewNop())
	deadEntry(t, repo)
	pending := deadEntry(t, repo)
	pending.Status = shared.OutboxStatusPending
	require.NoError(t, repo.Update(context.Background(), pending))

	stats, err := service.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(2), stats.Total)
}
