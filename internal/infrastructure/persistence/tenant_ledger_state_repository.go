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

// GormTenantLedgerStateRepository implements TenantLedgerStateRepository using GORM
type GormTenantLedgerStateRepository struct {
	db *gorm.DB
}

// NewGormTenantLedgerStateRepository creates a new GormTenantLedgerStateRepository
func NewGormTenantLedgerStateRepository(db *gorm.DB) *GormTenantLedgerStateRepository {
	return &GormTenantLedgerStateRepository{db: db}
}

// Create persists a new tenant ledger state
func (r *GormTenantLedgerStateRepository) Create(ctx context.Context, state *ledger.TenantLedgerState) error {
	var model models.TenantLedgerStateModel
	model.FromDomain(state)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create tenant ledger state: %w", err)
	}
	return nil
}

// Update persists changes to a tenant ledger state
func (r *GormTenantLedgerStateRepository) Update(ctx context.Context, state *ledger.TenantLedgerState) error {
	var model models.TenantLedgerStateModel
	model.FromDomain(state)
	result := r.db.WithContext(ctx).
		Model(&models.TenantLedgerStateModel{}).
		Where("tenant_id = ?", state.TenantID).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to update tenant ledger state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByTenant finds the ledger state of a tenant
func (r *GormTenantLedgerStateRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*ledger.TenantLedgerState, error) {
	var model models.TenantLedgerStateModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
