package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	auditapp "github.com/verifactu/backend/internal/application/audit"
	auditdom "github.com/verifactu/backend/internal/domain/audit"
	"github.com/verifactu/backend/internal/domain/ledger"
	"github.com/verifactu/backend/internal/domain/shared"
)

// TenantConfigService manages per-tenant VeriFactu settings
type TenantConfigService struct {
	states ledger.TenantLedgerStateRepository
	locker shared.TenantLocker
	events *auditapp.EventLogService
}

// NewTenantConfigService creates a new TenantConfigService
func NewTenantConfigService(
	states ledger.TenantLedgerStateRepository,
	locker shared.TenantLocker,
	events *auditapp.EventLogService,
) *TenantConfigService {
	return &TenantConfigService{states: states, locker: locker, events: events}
}

// TenantConfigResponse represents tenant VeriFactu settings in API responses
type TenantConfigResponse struct {
	TenantID        uuid.UUID  `json:"tenant_id"`
	IssuerTaxID     string     `json:"issuer_tax_id"`
	IssuerLegalName string     `json:"issuer_legal_name"`
	SeriesPrefix    string     `json:"series_prefix"`
	NextSequence    int        `json:"next_sequence"`
	Environment     string     `json:"environment"`
	Active          bool       `json:"active"`
	LastChainHash   *string    `json:"last_chain_hash,omitempty"`
	LastRecordAt    *time.Time `json:"last_record_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// UpdateTenantConfigRequest represents a request to change tenant settings
type UpdateTenantConfigRequest struct {
	IssuerTaxID     string `json:"issuer_tax_id" binding:"required,nif"`
	IssuerLegalName string `json:"issuer_legal_name" binding:"required"`
	SeriesPrefix    string `json:"series_prefix"`
	Environment     string `json:"environment" binding:"required,oneof=production testing"`
	Active          bool   `json:"active"`
}

func toConfigResponse(s *ledger.TenantLedgerState) *TenantConfigResponse {
	return &TenantConfigResponse{
		TenantID:        s.TenantID,
		IssuerTaxID:     s.IssuerTaxID,
		IssuerLegalName: s.IssuerLegalName,
		SeriesPrefix:    s.SeriesPrefix,
		NextSequence:    s.NextSequence,
		Environment:     string(s.Environment),
		Active:          s.Active,
		LastChainHash:   s.LastChainHash,
		LastRecordAt:    s.LastRecordAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// GetConfig returns the tenant's VeriFactu settings
func (s *TenantConfigService) GetConfig(ctx context.Context, tenantID uuid.UUID) (*TenantConfigResponse, error) {
	state, err := s.states.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return toConfigResponse(state), nil
}

// UpdateConfig creates or updates the tenant's VeriFactu settings. Issuer
// identity cannot change once the chain has records; the series prefix and
// environment stay mutable.
func (s *TenantConfigService) UpdateConfig(ctx context.Context, tenantID uuid.UUID, req UpdateTenantConfigRequest) (*TenantConfigResponse, error) {
	var updated *ledger.TenantLedgerState

	err := s.locker.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		state, err := s.states.FindByTenant(ctx, tenantID)
		if errors.Is(err, shared.ErrNotFound) {
			state, err = ledger.NewTenantLedgerState(tenantID, req.IssuerTaxID, req.IssuerLegalName)
			if err != nil {
				return err
			}
			s.apply(state, req)
			if err := s.states.Create(ctx, state); err != nil {
				return err
			}
			updated = state
			return nil
		}
		if err != nil {
			return err
		}

		if state.LastChainHash != nil && state.IssuerTaxID != req.IssuerTaxID {
			return shared.NewValidationError("issuer tax ID cannot change once records exist")
		}
		state.IssuerTaxID = req.IssuerTaxID
		state.IssuerLegalName = req.IssuerLegalName
		s.apply(state, req)
		state.UpdatedAt = time.Now()
		if err := s.states.Update(ctx, state); err != nil {
			return err
		}
		updated = state
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, tenantID, auditdom.EventConfigChange, auditdom.SeverityInfo, auditdom.Details{
		"environment": string(updated.Environment),
		"active":      updated.Active,
	})
	return toConfigResponse(updated), nil
}

func (s *TenantConfigService) apply(state *ledger.TenantLedgerState, req UpdateTenantConfigRequest) {
	if req.SeriesPrefix != "" {
		state.SeriesPrefix = req.SeriesPrefix
	}
	state.Environment = ledger.Environment(req.Environment)
	if req.Active {
		state.Activate()
	} else {
		state.Deactivate()
	}
}
