package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/verifactu/backend/internal/domain/ledger"
)

// LedgerRecordModel is the persistence model for ledger records
type LedgerRecordModel struct {
	TenantModel
	RecordType      string          `gorm:"type:varchar(16);not null;index"`
	IssuerTaxID     string          `gorm:"type:varchar(16);not null"`
	IssuerLegalName string          `gorm:"type:varchar(255);not null"`
	InvoiceNumber   string          `gorm:"type:varchar(64);not null;index"`
	IssueDate       time.Time       `gorm:"not null"`
	InvoiceTypeCode string          `gorm:"type:varchar(4);not null"`
	RegimeKey       string          `gorm:"type:varchar(4);not null"`
	TaxBase         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TaxRate         decimal.Decimal `gorm:"type:decimal(6,2);not null"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	HashRecord      string          `gorm:"type:char(64);not null"`
	HashPrevious    *string         `gorm:"type:char(64)"`

	SubmissionStatus    string     `gorm:"type:varchar(16);not null;index"`
	AeatResponseCode    *string    `gorm:"type:varchar(16)"`
	AeatResponseMessage *string    `gorm:"type:text"`
	BatchID             *uuid.UUID `gorm:"type:uuid;index"`

	SoftwareID      string     `gorm:"type:varchar(64);not null"`
	SoftwareVersion string     `gorm:"type:varchar(32);not null"`
	VerificationURL string     `gorm:"type:text"`
	SourceInvoiceID *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (LedgerRecordModel) TableName() string {
	return "ledger_records"
}

// ToDomain converts the model to a domain LedgerRecord
func (m *LedgerRecordModel) ToDomain() *ledger.LedgerRecord {
	return &ledger.LedgerRecord{
		TenantEntity:        m.TenantModel.ToDomain(),
		RecordType:          ledger.RecordType(m.RecordType),
		IssuerTaxID:         m.IssuerTaxID,
		IssuerLegalName:     m.IssuerLegalName,
		InvoiceNumber:       m.InvoiceNumber,
		IssueDate:           m.IssueDate,
		InvoiceTypeCode:     m.InvoiceTypeCode,
		RegimeKey:           m.RegimeKey,
		TaxBase:             m.TaxBase,
		TaxRate:             m.TaxRate,
		TaxAmount:           m.TaxAmount,
		TotalAmount:         m.TotalAmount,
		HashRecord:          m.HashRecord,
		HashPrevious:        m.HashPrevious,
		SubmissionStatus:    ledger.SubmissionStatus(m.SubmissionStatus),
		AeatResponseCode:    m.AeatResponseCode,
		AeatResponseMessage: m.AeatResponseMessage,
		BatchID:             m.BatchID,
		SoftwareID:          m.SoftwareID,
		SoftwareVersion:     m.SoftwareVersion,
		VerificationURL:     m.VerificationURL,
		SourceInvoiceID:     m.SourceInvoiceID,
	}
}

// FromDomain populates the model from a domain LedgerRecord
func (m *LedgerRecordModel) FromDomain(r *ledger.LedgerRecord) {
	m.FromDomainTenantEntity(r.TenantEntity)
	m.RecordType = string(r.RecordType)
	m.IssuerTaxID = r.IssuerTaxID
	m.IssuerLegalName = r.IssuerLegalName
	m.InvoiceNumber = r.InvoiceNumber
	m.IssueDate = r.IssueDate
	m.InvoiceTypeCode = r.InvoiceTypeCode
	m.RegimeKey = r.RegimeKey
	m.TaxBase = r.TaxBase
	m.TaxRate = r.TaxRate
	m.TaxAmount = r.TaxAmount
	m.TotalAmount = r.TotalAmount
	m.HashRecord = r.HashRecord
	m.HashPrevious = r.HashPrevious
	m.SubmissionStatus = string(r.SubmissionStatus)
	m.AeatResponseCode = r.AeatResponseCode
	m.AeatResponseMessage = r.AeatResponseMessage
	m.BatchID = r.BatchID
	m.SoftwareID = r.SoftwareID
	m.SoftwareVersion = r.SoftwareVersion
	m.VerificationURL = r.VerificationURL
	m.SourceInvoiceID = r.SourceInvoiceID
}

// TenantLedgerStateModel is the persistence model for per-tenant chain state
type TenantLedgerStateModel struct {
	BaseModel
	TenantID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	IssuerTaxID     string     `gorm:"type:varchar(16);not null"`
	IssuerLegalName string     `gorm:"type:varchar(255);not null"`
	SeriesPrefix    string     `gorm:"type:varchar(16);not null"`
	NextSequence    int        `gorm:"not null;default:1"`
	Environment     string     `gorm:"type:varchar(16);not null"`
	Active          bool       `gorm:"not null;default:false"`
	LastChainHash   *string    `gorm:"type:char(64)"`
	LastRecordID    *uuid.UUID `gorm:"type:uuid"`
	LastRecordAt    *time.Time
}

// TableName returns the table name for GORM
func (TenantLedgerStateModel) TableName() string {
	return "tenant_ledger_states"
}

// ToDomain converts the model to a domain TenantLedgerState
func (m *TenantLedgerStateModel) ToDomain() *ledger.TenantLedgerState {
	return &ledger.TenantLedgerState{
		BaseEntity:      m.BaseModel.ToDomain(),
		TenantID:        m.TenantID,
		IssuerTaxID:     m.IssuerTaxID,
		IssuerLegalName: m.IssuerLegalName,
		SeriesPrefix:    m.SeriesPrefix,
		NextSequence:    m.NextSequence,
		Environment:     ledger.Environment(m.Environment),
		Active:          m.Active,
		LastChainHash:   m.LastChainHash,
		LastRecordID:    m.LastRecordID,
		LastRecordAt:    m.LastRecordAt,
	}
}

// FromDomain populates the model from a domain TenantLedgerState
func (m *TenantLedgerStateModel) FromDomain(s *ledger.TenantLedgerState) {
	m.FromDomainBaseEntity(s.BaseEntity)
	m.TenantID = s.TenantID
	m.IssuerTaxID = s.IssuerTaxID
	m.IssuerLegalName = s.IssuerLegalName
	m.SeriesPrefix = s.SeriesPrefix
	m.NextSequence = s.NextSequence
	m.Environment = string(s.Environment)
	m.Active = s.Active
	m.LastChainHash = s.LastChainHash
	m.LastRecordID = s.LastRecordID
	m.LastRecordAt = s.LastRecordAt
}
