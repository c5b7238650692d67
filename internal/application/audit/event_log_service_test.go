package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verifactu/backend/internal/domain/audit"
	"github.com/verifactu/backend/internal/domain/shared"
)

type memoryEventLogRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]*audit.EventLogEntry
}

func newMemoryEventLogRepository() *memoryEventLogRepository {
	return &memoryEventLogRepository{entries: make(map[uuid.UUID][]*audit.EventLogEntry)}
}

func (r *memoryEventLogRepository) Create(_ context.Context, entry *audit.EventLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.TenantID] = append(r.entries[entry.TenantID], entry)
	return nil
}

func (r *memoryEventLogRepository) FindByTenant(_ context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*audit.EventLogEntry], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.entries[tenantID]
	return &shared.Paginated[*audit.EventLogEntry]{Items: items, Total: int64(len(items)), Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (r *memoryEventLogRepository) FindLatest(_ context.Context, tenantID uuid.UUID) (*audit.EventLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.entries[tenantID]
	if len(items) == 0 {
		return nil, shared.ErrNotFound
	}
	return items[len(items)-1], nil
}

func (r *memoryEventLogRepository) FindAllInChainOrder(_ context.Context, tenantID uuid.UUID) ([]*audit.EventLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[tenantID], nil
}

func TestLog_ChainsEntries(t *testing.T) {
	repo := newMemoryEventLogRepository()
	svc := NewEventLogService(repo, zap.NewNop())
	tenantID := uuid.New()
	ctx := context.Background()

	first, err := svc.Log(ctx, tenantID, nil, audit.EventSystemStart, audit.SeverityInfo, nil)
	require.NoError(t, err)
	second, err := svc.Log(ctx, tenantID, nil, audit.EventRecordCreate, audit.SeverityInfo, nil)
	require.NoError(t, err)

	assert.Nil(t, first.HashPrevious)
	require.NotNil(t, second.HashPrevious)
	assert.Equal(t, first.HashEvent, *second.HashPrevious)
}

func TestLog_LiftsDescriptionAndRecordID(t *testing.T) {
	repo := newMemoryEventLogRepository()
	svc := NewEventLogService(repo, zap.NewNop())
	tenantID := uuid.New()
	recordID := uuid.New()

	entry, err := svc.Log(context.Background(), tenantID, &recordID, audit.EventRecordCreate, audit.SeverityInfo, audit.Details{
		"description":    "Alta record created for invoice FAC-001",
		"invoice_number": "FAC-001",
	})

	require.NoError(t, err)
	assert.Equal(t, "Alta record created for invoice FAC-001", entry.Description)
	require.NotNil(t, entry.RelatedRecordID)
	assert.Equal(t, recordID, *entry.RelatedRecordID)
}

func TestLog_TakesClientIPFromContext(t *testing.T) {
	repo := newMemoryEventLogRepository()
	svc := NewEventLogService(repo, zap.NewNop())
	tenantID := uuid.New()

	ctx := audit.WithClientIP(context.Background(), "203.0.113.7")
	entry, err := svc.Log(ctx, tenantID, nil, audit.EventSystemStart, audit.SeverityInfo, nil)
	require.NoError(t, err)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "203.0.113.7", *entry.IPAddress)

	plain, err := svc.Log(context.Background(), tenantID, nil, audit.EventSystemStart, audit.SeverityInfo, nil)
	require.NoError(t, err)
	assert.Nil(t, plain.IPAddress)
}

func TestRecordFor_AttachesRecord(t *testing.T) {
	repo := newMemoryEventLogRepository()
	svc := NewEventLogService(repo, zap.NewNop())
	tenantID := uuid.New()
	recordID := uuid.New()

	svc.RecordFor(context.Background(), tenantID, recordID, audit.EventRecordCancel, audit.SeverityInfo, audit.Details{
		"description": "Cancellation record created for invoice FAC-001",
	})

	entries, err := repo.FindAllInChainOrder(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].RelatedRecordID)
	assert.Equal(t, recordID, *entries[0].RelatedRecordID)
	assert.Equal(t, "Cancellation record created for invoice FAC-001", entries[0].Description)
}
