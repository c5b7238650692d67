package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/remision"
	"github.com/verifactu/backend/internal/domain/shared"
	"github.com/verifactu/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRemisionBatchRepository implements RemisionBatchRepository using GORM
type GormRemisionBatchRepository struct {
	db *gorm.DB
}

// NewGormRemisionBatchRepository creates a new GormRemisionBatchRepository
func NewGormRemisionBatchRepository(db *gorm.DB) *GormRemisionBatchRepository {
	return &GormRemisionBatchRepository{db: db}
}

// Create persists a new remission batch
func (r *GormRemisionBatchRepository) Create(ctx context.Context, batch *remision.RemisionBatch) error {
	var model models.RemisionBatchModel
	model.FromDomain(batch)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create remission batch: %w", err)
	}
	return nil
}

// Update persists changes to an existing remission batch
func (r *GormRemisionBatchRepository) Update(ctx context.Context, batch *remision.RemisionBatch) error {
	var model models.RemisionBatchModel
	model.FromDomain(batch)
	result := r.db.WithContext(ctx).
		Model(&models.RemisionBatchModel{}).
		Where("id = ? AND tenant_id = ?", batch.ID, batch.TenantID).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to update remission batch: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a remission batch by ID for a tenant
func (r *GormRemisionBatchRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*remision.RemisionBatch, error) {
	var model models.RemisionBatchModel
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

// FindByTenant finds remission batches for a tenant with pagination
func (r *GormRemisionBatchRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*remision.RemisionBatch], error) {
	query := r.db.WithContext(ctx).Model(&models.RemisionBatchModel{}).
		Where("tenant_id = ?", tenantID)

	if v, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var batchModels []models.RemisionBatchModel
	if err := query.
		Order(orderClause(filter, RemisionBatchSortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&batchModels).Error; err != nil {
		return nil, err
	}

	batches := make([]*remision.RemisionBatch, len(batchModels))
	for i := range batchModels {
		batches[i] = batchModels[i].ToDomain()
	}
	page := shared.NewPaginated(batches, total, filter.Page, filter.Limit())
	return &page, nil
}

// FindRetriable returns batches still waiting for a successful submission,
// oldest first
func (r *GormRemisionBatchRepository) FindRetriable(ctx context.Context, tenantID uuid.UUID, limit int) ([]*remision.RemisionBatch, error) {
	var batchModels []models.RemisionBatchModel
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, []string{
			string(remision.BatchStatusQueued),
			string(remision.BatchStatusError),
			string(remision.BatchStatusPartialError),
		}).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&batchModels).Error; err != nil {
		return nil, err
	}
	batches := make([]*remision.RemisionBatch, len(batchModels))
	for i := range batchModels {
		batches[i] = batchModels[i].ToDomain()
	}
	return batches, nil
}

// ListTenantsWithRetriable returns the tenants that currently have batches
// waiting for submission
func (r *GormRemisionBatchRepository) ListTenantsWithRetriable(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var tenantIDs []uuid.UUID
	query := r.db.WithContext(ctx).Model(&models.RemisionBatchModel{}).
		Distinct("tenant_id").
		Where("status IN ?", []string{
			string(remision.BatchStatusQueued),
			string(remision.BatchStatusError),
			string(remision.BatchStatusPartialError),
		})
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("tenant_id", &tenantIDs).Error; err != nil {
		return nil, err
	}
	return tenantIDs, nil
}

// CountByStatus counts the tenant's batches grouped by status
func (r *GormRemisionBatchRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[remision.BatchStatus]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := r.db.WithContext(ctx).Model(&models.RemisionBatchModel{}).
		Select("status, COUNT(*) as count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[remision.BatchStatus]int64, len(rows))
	for _, row := range rows {
		counts[remision.BatchStatus(row.Status)] = row.Count
	}
	return counts, nil
}
