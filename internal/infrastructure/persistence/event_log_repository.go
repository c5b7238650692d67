package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/audit"
	"github.com/verifactu/backend/internal/domain/shared"
	"github.com/verifactu/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormEventLogRepository implements EventLogRepository using GORM
type GormEventLogRepository struct {
	db *gorm.DB
}

// NewGormEventLogRepository creates a new GormEventLogRepository
func NewGormEventLogRepository(db *gorm.DB) *GormEventLogRepository {
	return &GormEventLogRepository{db: db}
}

// Create persists a new audit entry. Entries are append-only and never
// updated afterwards.
func (r *GormEventLogRepository) Create(ctx context.Context, entry *audit.EventLogEntry) error {
	var model models.EventLogEntryModel
	model.FromDomain(entry)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

// FindByTenant finds audit entries for a tenant with filtering and pagination
func (r *GormEventLogRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*audit.EventLogEntry], error) {
	query := r.db.WithContext(ctx).Model(&models.EventLogEntryModel{}).
		Where("tenant_id = ?", tenantID)

	if v, ok := filter.Filters["event_type"]; ok {
		query = query.Where("event_type = ?", v)
	}
	if v, ok := filter.Filters["severity"]; ok {
		query = query.Where("severity = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var entryModels []models.EventLogEntryModel
	if err := query.
		Order(orderClause(filter, EventLogSortFields, "occurred_at")).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&entryModels).Error; err != nil {
		return nil, err
	}

	entries := make([]*audit.EventLogEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = entryModels[i].ToDomain()
	}
	page := shared.NewPaginated(entries, total, filter.Page, filter.Limit())
	return &page, nil
}

// FindLatest returns the newest audit entry of the tenant, the chain head
func (r *GormEventLogRepository) FindLatest(ctx context.Context, tenantID uuid.UUID) (*audit.EventLogEntry, error) {
	var model models.EventLogEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("occurred_at DESC, created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllInChainOrder returns every audit entry of the tenant oldest first
func (r *GormEventLogRepository) FindAllInChainOrder(ctx context.Context, tenantID uuid.UUID) ([]*audit.EventLogEntry, error) {
	var entryModels []models.EventLogEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("occurred_at ASC, created_at ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	entries := make([]*audit.EventLogEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = entryModels[i].ToDomain()
	}
	return entries, nil
}
