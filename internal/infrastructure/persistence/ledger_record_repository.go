package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/ledger"
	"github.com/verifactu/backend/internal/domain/shared"
	"github.com/verifactu/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormLedgerRecordRepository implements LedgerRecordRepository using GORM
type GormLedgerRecordRepository struct {
	db *gorm.DB
}

// NewGormLedgerRecordRepository creates a new GormLedgerRecordRepository
func NewGormLedgerRecordRepository(db *gorm.DB) *GormLedgerRecordRepository {
	return &GormLedgerRecordRepository{db: db}
}

// Create persists a new ledger record
func (r *GormLedgerRecordRepository) Create(ctx context.Context, record *ledger.LedgerRecord) error {
	var model models.LedgerRecordModel
	model.FromDomain(record)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create ledger record: %w", err)
	}
	return nil
}

// Update persists changes to an existing ledger record
func (r *GormLedgerRecordRepository) Update(ctx context.Context, record *ledger.LedgerRecord) error {
	var model models.LedgerRecordModel
	model.FromDomain(record)
	result := r.db.WithContext(ctx).
		Model(&models.LedgerRecordModel{}).
		Where("id = ? AND tenant_id = ?", record.ID, record.TenantID).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to update ledger record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a ledger record by ID for a tenant
func (r *GormLedgerRecordRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.LedgerRecord, error) {
	var model models.LedgerRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoiceNumber finds the registration record for an invoice number.
// Cancellation records are excluded so the source invoice is always returned.
func (r *GormLedgerRecordRepository) FindByInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (*ledger.LedgerRecord, error) {
	var model models.LedgerRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_number = ? AND record_type <> ?",
			tenantID, invoiceNumber, ledger.RecordTypeAnulacion).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTenant finds ledger records for a tenant with filtering and pagination
func (r *GormLedgerRecordRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*ledger.LedgerRecord], error) {
	query := r.db.WithContext(ctx).Model(&models.LedgerRecordModel{}).
		Where("tenant_id = ?", tenantID)

	if v, ok := filter.Filters["record_type"]; ok {
		query = query.Where("record_type = ?", v)
	}
	if v, ok := filter.Filters["submission_status"]; ok {
		query = query.Where("submission_status = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var recordModels []models.LedgerRecordModel
	if err := query.
		Order(orderClause(filter, LedgerRecordSortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]*ledger.LedgerRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	page := shared.NewPaginated(records, total, filter.Page, filter.Limit())
	return &page, nil
}

// FindAllInChainOrder returns every record of the tenant in insertion order
func (r *GormLedgerRecordRepository) FindAllInChainOrder(ctx context.Context, tenantID uuid.UUID) ([]*ledger.LedgerRecord, error) {
	var recordModels []models.LedgerRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC, id ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	records := make([]*ledger.LedgerRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, nil
}

// FindPending returns unbatched pending records in chain order
func (r *GormLedgerRecordRepository) FindPending(ctx context.Context, tenantID uuid.UUID, limit int) ([]*ledger.LedgerRecord, error) {
	var recordModels []models.LedgerRecordModel
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND submission_status = ? AND batch_id IS NULL",
			tenantID, ledger.SubmissionStatusPending).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}
	records := make([]*ledger.LedgerRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, nil
}

// CountPending counts unbatched pending records for a tenant
func (r *GormLedgerRecordRepository) CountPending(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.LedgerRecordModel{}).
		Where("tenant_id = ? AND submission_status = ? AND batch_id IS NULL",
			tenantID, ledger.SubmissionStatusPending).
		Count(&count).Error
	return count, err
}

// FindByBatch returns the records assigned to a batch in chain order
func (r *GormLedgerRecordRepository) FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]*ledger.LedgerRecord, error) {
	var recordModels []models.LedgerRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND batch_id = ?", tenantID, batchID).
		Order("created_at ASC, id ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	records := make([]*ledger.LedgerRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, nil
}

// ExistsCancellation reports whether a cancellation record already exists
// for the invoice number
func (r *GormLedgerRecordRepository) ExistsCancellation(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.LedgerRecordModel{}).
		Where("tenant_id = ? AND invoice_number = ? AND record_type = ?",
			tenantID, invoiceNumber, ledger.RecordTypeAnulacion).
		Count(&count).Error
	return count > 0, err
}
