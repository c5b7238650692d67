package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/shared"
)

// EventLogRepository defines persistence operations for audit entries
type EventLogRepository interface {
	Create(ctx context.Context, entry *EventLogEntry) error
	FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*EventLogEntry], error)
	FindLatest(ctx context.Context, tenantID uuid.UUID) (*EventLogEntry, error)
	FindAllInChainOrder(ctx context.Context, tenantID uuid.UUID) ([]*EventLogEntry, error)
}
