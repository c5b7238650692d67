package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/shared"
)

// Environment selects which AEAT endpoint a tenant submits to
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentTesting    Environment = "testing"
)

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	return e == EnvironmentProduction || e == EnvironmentTesting
}

// TenantLedgerState is the per-tenant chain head plus invoicing settings.
// There is exactly one row per tenant and every chain mutation goes through
// it under the tenant lock.
type TenantLedgerState struct {
	shared.BaseEntity
	TenantID        uuid.UUID
	IssuerTaxID     string
	IssuerLegalName string
	SeriesPrefix    string
	NextSequence    int
	Environment     Environment
	Active          bool
	LastChainHash   *string
	LastRecordID    *uuid.UUID
	LastRecordAt    *time.Time
}

// NewTenantLedgerState creates ledger state for a tenant with sane defaults
func NewTenantLedgerState(tenantID uuid.UUID, issuerTaxID, issuerLegalName string) (*TenantLedgerState, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("tenant ID cannot be empty")
	}
	if issuerTaxID == "" {
		return nil, shared.NewValidationError("issuer tax ID cannot be empty")
	}
	if issuerLegalName == "" {
		return nil, shared.NewValidationError("issuer legal name cannot be empty")
	}
	return &TenantLedgerState{
		BaseEntity:      shared.NewBaseEntity(),
		TenantID:        tenantID,
		IssuerTaxID:     issuerTaxID,
		IssuerLegalName: issuerLegalName,
		SeriesPrefix:    "FAC",
		NextSequence:    1,
		Environment:     EnvironmentTesting,
		Active:          false,
	}, nil
}

// NextInvoiceNumber formats the next invoice number in the tenant's series
// and advances the sequence counter. Callers must hold the tenant lock.
func (s *TenantLedgerState) NextInvoiceNumber(now time.Time) string {
	number := fmt.Sprintf("%s-%d-%03d", s.SeriesPrefix, now.Year(), s.NextSequence)
	s.NextSequence++
	s.UpdatedAt = time.Now()
	return number
}

// AdvanceChainHead moves the chain head to the given record. Callers must
// hold the tenant lock.
func (s *TenantLedgerState) AdvanceChainHead(record *LedgerRecord) {
	hash := record.HashRecord
	id := record.ID
	at := record.CreatedAt
	s.LastChainHash = &hash
	s.LastRecordID = &id
	s.LastRecordAt = &at
	s.UpdatedAt = time.Now()
}

// Activate enables VeriFactu processing for the tenant
func (s *TenantLedgerState) Activate() {
	s.Active = true
	s.UpdatedAt = time.Now()
}

// Deactivate disables VeriFactu processing for the tenant
func (s *TenantLedgerState) Deactivate() {
	s.Active = false
	s.UpdatedAt = time.Now()
}
