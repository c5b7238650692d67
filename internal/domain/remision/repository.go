package remision

import (
	"context"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/shared"
)

// RemisionBatchRepository defines persistence operations for submission batches
type RemisionBatchRepository interface {
	Create(ctx context.Context, batch *RemisionBatch) error
	Update(ctx context.Context, batch *RemisionBatch) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*RemisionBatch, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*RemisionBatch], error)
	FindRetriable(ctx context.Context, tenantID uuid.UUID, limit int) ([]*RemisionBatch, error)
	ListTenantsWithRetriable(ctx context.Context, limit int) ([]uuid.UUID, error)
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[BatchStatus]int64, error)
}

// PipelineStateRepository persists the single shared pipeline row. Save
// applies an optimistic compare-and-swap on Version and returns
// shared.ErrConcurrencyConflict when the stored version has moved on.
type PipelineStateRepository interface {
	Load(ctx context.Context) (*PipelineState, error)
	Save(ctx context.Context, state *PipelineState) error
}
