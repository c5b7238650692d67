package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/verifactu/backend/internal/domain/shared"
)

// RecordType represents the kind of ledger record
type RecordType string

const (
	RecordTypeAlta          RecordType = "alta"
	RecordTypeAnulacion     RecordType = "anulacion"
	RecordTypeRectificativa RecordType = "rectificativa"
)

// Chain kinds are the literal record-type tags covered by the hash. A
// rectificativa is hashed as an alta; only the invoice type code (R1)
// distinguishes it on the wire.
const (
	chainKindAlta      = "alta"
	chainKindAnulacion = "anulacion"
)

// IsValid checks if the record type is valid
func (t RecordType) IsValid() bool {
	switch t {
	case RecordTypeAlta, RecordTypeAnulacion, RecordTypeRectificativa:
		return true
	}
	return false
}

// ChainKind returns the record-type tag used as hash input
func (t RecordType) ChainKind() string {
	if t == RecordTypeAnulacion {
		return chainKindAnulacion
	}
	return chainKindAlta
}

// IsCancellation returns true for anulación records
func (t RecordType) IsCancellation() bool {
	return t == RecordTypeAnulacion
}

// SubmissionStatus represents the AEAT submission state of a record
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusAccepted SubmissionStatus = "accepted"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// IsValid checks if the submission status is valid
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case SubmissionStatusPending, SubmissionStatusAccepted, SubmissionStatusRejected:
		return true
	}
	return false
}

// LedgerRecord is one entry of a tenant's tamper-evident invoicing ledger.
// Records are append-only: hash fields are computed once at construction and
// never change; only the submission outcome and batch assignment mutate.
type LedgerRecord struct {
	shared.TenantEntity
	RecordType      RecordType
	IssuerTaxID     string
	IssuerLegalName string
	InvoiceNumber   string
	IssueDate       time.Time
	InvoiceTypeCode string
	RegimeKey       string
	TaxBase         decimal.Decimal
	TaxRate         decimal.Decimal
	TaxAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
	HashRecord      string
	HashPrevious    *string

	SubmissionStatus    SubmissionStatus
	AeatResponseCode    *string
	AeatResponseMessage *string
	BatchID             *uuid.UUID

	SoftwareID      string
	SoftwareVersion string
	VerificationURL string
	SourceInvoiceID *uuid.UUID
}

// NewRecordParams carries everything needed to construct a ledger record.
// The hash pair must already be computed against the tenant's chain head.
type NewRecordParams struct {
	TenantID        uuid.UUID
	RecordType      RecordType
	Fields          ChainFields
	IssuerLegalName string
	RegimeKey       string
	TaxBase         decimal.Decimal
	TaxRate         decimal.Decimal
	HashRecord      string
	HashPrevious    *string
	SoftwareID      string
	SoftwareVersion string
	SourceInvoiceID *uuid.UUID
}

// NewLedgerRecord creates a new pending ledger record
func NewLedgerRecord(p NewRecordParams) (*LedgerRecord, error) {
	if p.TenantID == uuid.Nil {
		return nil, shared.NewValidationError("tenant ID cannot be empty")
	}
	if !p.RecordType.IsValid() {
		return nil, shared.NewValidationError("record type is not valid")
	}
	if err := p.Fields.Validate(); err != nil {
		return nil, err
	}
	if len(p.HashRecord) != 64 {
		return nil, shared.NewValidationError("record hash must be a 64-character SHA-256 hex digest")
	}
	regimeKey := p.RegimeKey
	if regimeKey == "" {
		regimeKey = "01"
	}

	return &LedgerRecord{
		TenantEntity:     shared.NewTenantEntity(p.TenantID),
		RecordType:       p.RecordType,
		IssuerTaxID:      p.Fields.IssuerTaxID,
		IssuerLegalName:  p.IssuerLegalName,
		InvoiceNumber:    p.Fields.InvoiceNumber,
		IssueDate:        p.Fields.IssueDate,
		InvoiceTypeCode:  p.Fields.InvoiceTypeCode,
		RegimeKey:        regimeKey,
		TaxBase:          p.TaxBase,
		TaxRate:          p.TaxRate,
		TaxAmount:        p.Fields.TaxAmount,
		TotalAmount:      p.Fields.TotalAmount,
		HashRecord:       p.HashRecord,
		HashPrevious:     p.HashPrevious,
		SubmissionStatus: SubmissionStatusPending,
		SoftwareID:       p.SoftwareID,
		SoftwareVersion:  p.SoftwareVersion,
		SourceInvoiceID:  p.SourceInvoiceID,
	}, nil
}

// ChainFields returns the hash-covered fields of the record
func (r *LedgerRecord) ChainFields() ChainFields {
	return ChainFields{
		IssuerTaxID:     r.IssuerTaxID,
		InvoiceNumber:   r.InvoiceNumber,
		IssueDate:       r.IssueDate,
		InvoiceTypeCode: r.InvoiceTypeCode,
		TaxAmount:       r.TaxAmount,
		TotalAmount:     r.TotalAmount,
	}
}

// IsPending returns true if the record has not been resolved by AEAT yet
func (r *LedgerRecord) IsPending() bool {
	return r.SubmissionStatus == SubmissionStatusPending
}

// AssignBatch stamps the record with the submission batch it belongs to
func (r *LedgerRecord) AssignBatch(batchID uuid.UUID) {
	r.BatchID = &batchID
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
}

// ClearBatch detaches the record from its batch so a later pass can pick
// it up again
func (r *LedgerRecord) ClearBatch() {
	r.BatchID = nil
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
}

// MarkAccepted records an AEAT acceptance for this record
func (r *LedgerRecord) MarkAccepted(code, message string) {
	r.SubmissionStatus = SubmissionStatusAccepted
	r.setResponse(code, message)
}

// MarkRejected records an AEAT rejection for this record
func (r *LedgerRecord) MarkRejected(code, message string) {
	r.SubmissionStatus = SubmissionStatusRejected
	r.setResponse(code, message)
}

func (r *LedgerRecord) setResponse(code, message string) {
	if code != "" {
		r.AeatResponseCode = &code
	}
	if message != "" {
		r.AeatResponseMessage = &message
	}
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
}
