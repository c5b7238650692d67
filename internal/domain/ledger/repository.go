package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/shared"
)

// LedgerRecordRepository defines persistence operations for ledger records
type LedgerRecordRepository interface {
	Create(ctx context.Context, record *LedgerRecord) error
	Update(ctx context.Context, record *LedgerRecord) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*LedgerRecord, error)
	FindByInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (*LedgerRecord, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*LedgerRecord], error)
	FindAllInChainOrder(ctx context.Context, tenantID uuid.UUID) ([]*LedgerRecord, error)
	FindPending(ctx context.Context, tenantID uuid.UUID, limit int) ([]*LedgerRecord, error)
	CountPending(ctx context.Context, tenantID uuid.UUID) (int64, error)
	FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]*LedgerRecord, error)
	ExistsCancellation(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (bool, error)
}

// TenantLedgerStateRepository defines persistence operations for per-tenant
// chain state
type TenantLedgerStateRepository interface {
	Create(ctx context.Context, state *TenantLedgerState) error
	Update(ctx context.Context, state *TenantLedgerState) error
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*TenantLedgerState, error)
}
