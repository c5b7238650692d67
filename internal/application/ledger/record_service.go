package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	auditapp "github.com/verifactu/backend/internal/application/audit"
	auditdom "github.com/verifactu/backend/internal/domain/audit"
	"github.com/verifactu/backend/internal/domain/ledger"
	"github.com/verifactu/backend/internal/domain/shared"
)

// VerificationURLBuilder renders the AEAT QR validation URL for a record
type VerificationURLBuilder interface {
	VerificationURL(env ledger.Environment, issuerTaxID, invoiceNumber string, issueDate time.Time, total decimal.Decimal) string
}

// EnvelopeRenderer renders the AEAT registration envelope for ledger records
type EnvelopeRenderer interface {
	BuildEnvelope(records []*ledger.LedgerRecord) (string, error)
}

// SoftwareIdentity identifies the issuing software in every ledger record
type SoftwareIdentity struct {
	ID      string
	Version string
}

// RecordService provides application-level ledger operations. Every chain
// mutation runs under the per-tenant lock so the chain head never forks.
type RecordService struct {
	records  ledger.LedgerRecordRepository
	states   ledger.TenantLedgerStateRepository
	locker   shared.TenantLocker
	events   *auditapp.EventLogService
	qr       VerificationURLBuilder
	software SoftwareIdentity
	logger   *zap.Logger
	envelope EnvelopeRenderer
}

// SetEnvelopeRenderer wires the AEAT envelope codec used by RecordXML
func (s *RecordService) SetEnvelopeRenderer(renderer EnvelopeRenderer) {
	s.envelope = renderer
}

// NewRecordService creates a new RecordService
func NewRecordService(
	records ledger.LedgerRecordRepository,
	states ledger.TenantLedgerStateRepository,
	locker shared.TenantLocker,
	events *auditapp.EventLogService,
	qr VerificationURLBuilder,
	software SoftwareIdentity,
	logger *zap.Logger,
) *RecordService {
	return &RecordService{
		records:  records,
		states:   states,
		locker:   locker,
		events:   events,
		qr:       qr,
		software: software,
		logger:   logger,
	}
}

// CreateAltaRequest represents a request to register an issued invoice
type CreateAltaRequest struct {
	InvoiceNumber   string          `json:"invoice_number"`
	IssueDate       time.Time       `json:"issue_date" binding:"required"`
	InvoiceTypeCode string          `json:"invoice_type_code"`
	RegimeKey       string          `json:"regime_key"`
	TaxBase         decimal.Decimal `json:"tax_base"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount" binding:"required"`
}

// standardVATRate is the general Spanish IVA rate applied when a request
// carries only a total amount.
var standardVATRate = decimal.NewFromInt(21)

// applyDefaultVAT derives the tax breakdown from the total at the standard
// rate when the caller supplies no breakdown of its own.
func (req *CreateAltaRequest) applyDefaultVAT() {
	if !req.TaxBase.IsZero() || !req.TaxAmount.IsZero() || req.TotalAmount.IsZero() {
		return
	}
	rate := req.TaxRate
	if rate.IsZero() {
		rate = standardVATRate
	}
	divisor := decimal.NewFromInt(1).Add(rate.Div(decimal.NewFromInt(100)))
	req.TaxBase = req.TotalAmount.Div(divisor).Round(2)
	req.TaxAmount = req.TotalAmount.Sub(req.TaxBase)
	req.TaxRate = rate
}

// CreateRectificativaRequest represents a request to register a corrective invoice
type CreateRectificativaRequest struct {
	SourceInvoiceNumber string          `json:"source_invoice_number" binding:"required"`
	InvoiceNumber       string          `json:"invoice_number"`
	IssueDate           time.Time       `json:"issue_date" binding:"required"`
	TaxBase             decimal.Decimal `json:"tax_base" binding:"required"`
	TaxRate             decimal.Decimal `json:"tax_rate" binding:"required"`
	TaxAmount           decimal.Decimal `json:"tax_amount" binding:"required"`
	TotalAmount         decimal.Decimal `json:"total_amount" binding:"required"`
}

// RecordResponse represents a ledger record in API responses
type RecordResponse struct {
	ID                  uuid.UUID       `json:"id"`
	TenantID            uuid.UUID       `json:"tenant_id"`
	RecordType          string          `json:"record_type"`
	IssuerTaxID         string          `json:"issuer_tax_id"`
	IssuerLegalName     string          `json:"issuer_legal_name"`
	InvoiceNumber       string          `json:"invoice_number"`
	IssueDate           time.Time       `json:"issue_date"`
	InvoiceTypeCode     string          `json:"invoice_type_code"`
	RegimeKey           string          `json:"regime_key"`
	TaxBase             decimal.Decimal `json:"tax_base"`
	TaxRate             decimal.Decimal `json:"tax_rate"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	HashRecord          string          `json:"hash_record"`
	HashPrevious        *string         `json:"hash_previous,omitempty"`
	SubmissionStatus    string          `json:"submission_status"`
	AeatResponseCode    *string         `json:"aeat_response_code,omitempty"`
	AeatResponseMessage *string         `json:"aeat_response_message,omitempty"`
	BatchID             *uuid.UUID      `json:"batch_id,omitempty"`
	VerificationURL     string          `json:"verification_url"`
	SourceInvoiceID     *uuid.UUID      `json:"source_invoice_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

func toRecordResponse(r *ledger.LedgerRecord) *RecordResponse {
	return &RecordResponse{
		ID:                  r.ID,
		TenantID:            r.TenantID,
		RecordType:          string(r.RecordType),
		IssuerTaxID:         r.IssuerTaxID,
		IssuerLegalName:     r.IssuerLegalName,
		InvoiceNumber:       r.InvoiceNumber,
		IssueDate:           r.IssueDate,
		InvoiceTypeCode:     r.InvoiceTypeCode,
		RegimeKey:           r.RegimeKey,
		TaxBase:             r.TaxBase,
		TaxRate:             r.TaxRate,
		TaxAmount:           r.TaxAmount,
		TotalAmount:         r.TotalAmount,
		HashRecord:          r.HashRecord,
		HashPrevious:        r.HashPrevious,
		SubmissionStatus:    string(r.SubmissionStatus),
		AeatResponseCode:    r.AeatResponseCode,
		AeatResponseMessage: r.AeatResponseMessage,
		BatchID:             r.BatchID,
		VerificationURL:     r.VerificationURL,
		SourceInvoiceID:     r.SourceInvoiceID,
		CreatedAt:           r.CreatedAt,
	}
}

// CreateAlta registers an issued invoice as a new chained ledger record
func (s *RecordService) CreateAlta(ctx context.Context, tenantID uuid.UUID, req CreateAltaRequest) (*RecordResponse, error) {
	req.applyDefaultVAT()

	var created *ledger.LedgerRecord

	err := s.locker.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		state, err := s.activeState(ctx, tenantID)
		if err != nil {
			return err
		}

		invoiceNumber := req.InvoiceNumber
		if invoiceNumber == "" {
			invoiceNumber = state.NextInvoiceNumber(req.IssueDate)
		}
		if err := s.ensureUnusedInvoiceNumber(ctx, tenantID, invoiceNumber); err != nil {
			return err
		}

		typeCode := req.InvoiceTypeCode
		if typeCode == "" {
			typeCode = "F1"
		}
		fields := ledger.ChainFields{
			IssuerTaxID:     state.IssuerTaxID,
			InvoiceNumber:   invoiceNumber,
			IssueDate:       req.IssueDate,
			InvoiceTypeCode: typeCode,
			TaxAmount:       req.TaxAmount,
			TotalAmount:     req.TotalAmount,
		}
		hash, err := ledger.ComputeAltaHash(fields, state.LastChainHash)
		if err != nil {
			return err
		}

		record, err := ledger.NewLedgerRecord(ledger.NewRecordParams{
			TenantID:        tenantID,
			RecordType:      ledger.RecordTypeAlta,
			Fields:          fields,
			IssuerLegalName: state.IssuerLegalName,
			RegimeKey:       req.RegimeKey,
			TaxBase:         req.TaxBase,
			TaxRate:         req.TaxRate,
			HashRecord:      hash,
			HashPrevious:    state.LastChainHash,
			SoftwareID:      s.software.ID,
			SoftwareVersion: s.software.Version,
		})
		if err != nil {
			return err
		}
		record.VerificationURL = s.qr.VerificationURL(state.Environment, record.IssuerTaxID, record.InvoiceNumber, record.IssueDate, record.TotalAmount)

		if err := s.appendToChain(ctx, state, record); err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.RecordFor(ctx, tenantID, created.ID, auditdom.EventRecordCreate, auditdom.SeverityInfo, auditdom.Details{
		"description":    "Alta record created for invoice " + created.InvoiceNumber,
		"invoice_number": created.InvoiceNumber,
		"hash":           created.HashRecord,
	})
	return toRecordResponse(created), nil
}

// CreateAnulacion registers the cancellation of an existing invoice
func (s *RecordService) CreateAnulacion(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (*RecordResponse, error) {
	var created *ledger.LedgerRecord

	err := s.locker.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		state, err := s.activeState(ctx, tenantID)
		if err != nil {
			return err
		}

		source, err := s.records.FindByInvoiceNumber(ctx, tenantID, invoiceNumber)
		if err != nil {
			return err
		}
		if source.RecordType.IsCancellation() {
			return shared.NewValidationError("cannot cancel a cancellation record")
		}
		cancelled, err := s.records.ExistsCancellation(ctx, tenantID, invoiceNumber)
		if err != nil {
			return err
		}
		if cancelled {
			return fmt.Errorf("%w: invoice %s is already cancelled", shared.ErrInvalidState, invoiceNumber)
		}

		fields := source.ChainFields()
		hash, err := ledger.ComputeAnulacionHash(fields, state.LastChainHash)
		if err != nil {
			return err
		}

		sourceID := source.ID
		record, err := ledger.NewLedgerRecord(ledger.NewRecordParams{
			TenantID:        tenantID,
			RecordType:      ledger.RecordTypeAnulacion,
			Fields:          fields,
			IssuerLegalName: source.IssuerLegalName,
			RegimeKey:       source.RegimeKey,
			TaxBase:         source.TaxBase,
			TaxRate:         source.TaxRate,
			HashRecord:      hash,
			HashPrevious:    state.LastChainHash,
			SoftwareID:      s.software.ID,
			SoftwareVersion: s.software.Version,
			SourceInvoiceID: &sourceID,
		})
		if err != nil {
			return err
		}

		if err := s.appendToChain(ctx, state, record); err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.RecordFor(ctx, tenantID, created.ID, auditdom.EventRecordCancel, auditdom.SeverityInfo, auditdom.Details{
		"description":    "Cancellation record created for invoice " + created.InvoiceNumber,
		"invoice_number": created.InvoiceNumber,
		"hash":           created.HashRecord,
	})
	return toRecordResponse(created), nil
}

// CreateRectificativa registers a corrective invoice that supersedes an
// existing one. The record chains as an alta with invoice type R1.
func (s *RecordService) CreateRectificativa(ctx context.Context, tenantID uuid.UUID, req CreateRectificativaRequest) (*RecordResponse, error) {
	var created *ledger.LedgerRecord

	err := s.locker.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		state, err := s.activeState(ctx, tenantID)
		if err != nil {
			return err
		}

		source, err := s.records.FindByInvoiceNumber(ctx, tenantID, req.SourceInvoiceNumber)
		if err != nil {
			return err
		}
		if source.RecordType.IsCancellation() {
			return shared.NewValidationError("cannot rectify a cancellation record")
		}

		invoiceNumber := req.InvoiceNumber
		if invoiceNumber == "" {
			invoiceNumber = state.NextInvoiceNumber(req.IssueDate)
		}
		if err := s.ensureUnusedInvoiceNumber(ctx, tenantID, invoiceNumber); err != nil {
			return err
		}

		fields := ledger.ChainFields{
			IssuerTaxID:     state.IssuerTaxID,
			InvoiceNumber:   invoiceNumber,
			IssueDate:       req.IssueDate,
			InvoiceTypeCode: "R1",
			TaxAmount:       req.TaxAmount,
			TotalAmount:     req.TotalAmount,
		}
		hash, err := ledger.ComputeAltaHash(fields, state.LastChainHash)
		if err != nil {
			return err
		}

		sourceID := source.ID
		record, err := ledger.NewLedgerRecord(ledger.NewRecordParams{
			TenantID:        tenantID,
			RecordType:      ledger.RecordTypeRectificativa,
			Fields:          fields,
			IssuerLegalName: state.IssuerLegalName,
			RegimeKey:       source.RegimeKey,
			TaxBase:         req.TaxBase,
			TaxRate:         req.TaxRate,
			HashRecord:      hash,
			HashPrevious:    state.LastChainHash,
			SoftwareID:      s.software.ID,
			SoftwareVersion: s.software.Version,
			SourceInvoiceID: &sourceID,
		})
		if err != nil {
			return err
		}
		record.VerificationURL = s.qr.VerificationURL(state.Environment, record.IssuerTaxID, record.InvoiceNumber, record.IssueDate, record.TotalAmount)

		if err := s.appendToChain(ctx, state, record); err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.RecordFor(ctx, tenantID, created.ID, auditdom.EventRecordRectify, auditdom.SeverityInfo, auditdom.Details{
		"description":    "Corrective record created for invoice " + req.SourceInvoiceNumber,
		"invoice_number": created.InvoiceNumber,
		"source_invoice": req.SourceInvoiceNumber,
		"hash":           created.HashRecord,
	})
	return toRecordResponse(created), nil
}

// GetRecord returns a single ledger record
func (s *RecordService) GetRecord(ctx context.Context, tenantID, id uuid.UUID) (*RecordResponse, error) {
	record, err := s.records.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return toRecordResponse(record), nil
}

// RecordXML renders the registration envelope that would be sent to AEAT
// for a single record
func (s *RecordService) RecordXML(ctx context.Context, tenantID, id uuid.UUID) (string, error) {
	if s.envelope == nil {
		return "", shared.ErrInvalidState
	}
	record, err := s.records.FindByID(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	return s.envelope.BuildEnvelope([]*ledger.LedgerRecord{record})
}

// RecordListFilter defines filtering options for ledger record list queries
type RecordListFilter struct {
	RecordType       string `form:"record_type"`
	SubmissionStatus string `form:"submission_status"`
	Page             int    `form:"page"`
	PageSize         int    `form:"page_size"`
}

// ListRecords returns a page of the tenant's ledger records
func (s *RecordService) ListRecords(ctx context.Context, tenantID uuid.UUID, filter RecordListFilter) (*shared.Paginated[*RecordResponse], error) {
	f := shared.DefaultFilter()
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}
	if filter.RecordType != "" {
		f.Filters["record_type"] = filter.RecordType
	}
	if filter.SubmissionStatus != "" {
		f.Filters["submission_status"] = filter.SubmissionStatus
	}

	page, err := s.records.FindByTenant(ctx, tenantID, f)
	if err != nil {
		return nil, err
	}

	items := make([]*RecordResponse, 0, len(page.Items))
	for _, r := range page.Items {
		items = append(items, toRecordResponse(r))
	}
	result := shared.NewPaginated(items, page.Total, page.Page, page.PageSize)
	return &result, nil
}

// VerifyChain walks the tenant's full ledger chain under the tenant lock so
// no record is appended mid-walk.
func (s *RecordService) VerifyChain(ctx context.Context, tenantID uuid.UUID) (*ledger.ChainIntegrityResult, error) {
	var result ledger.ChainIntegrityResult

	err := s.locker.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		started := time.Now()
		records, err := s.records.FindAllInChainOrder(ctx, tenantID)
		if err != nil {
			return err
		}
		result = ledger.VerifyRecords(records)
		result.ElapsedMs = time.Since(started).Milliseconds()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Valid {
		s.events.Record(ctx, tenantID, auditdom.EventChainVerified, auditdom.SeverityInfo, auditdom.Details{
			"total_records": result.TotalRecords,
		})
	} else {
		details := auditdom.Details{
			"description":   "Hash chain break detected during integrity verification",
			"total_records": result.TotalRecords,
			"valid_records": result.ValidRecordsBeforeBreak,
			"expected_hash": result.ExpectedHash,
			"actual_hash":   result.ActualHash,
		}
		if result.BreakRecordID != nil {
			details["break_record_id"] = result.BreakRecordID.String()
			s.events.RecordFor(ctx, tenantID, *result.BreakRecordID, auditdom.EventChainBreakDetected, auditdom.SeverityCritical, details)
		} else {
			s.events.Record(ctx, tenantID, auditdom.EventChainBreakDetected, auditdom.SeverityCritical, details)
		}
		s.logger.Error("ledger chain break detected",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("valid_records", result.ValidRecordsBeforeBreak))
	}
	return &result, nil
}

func (s *RecordService) activeState(ctx context.Context, tenantID uuid.UUID) (*ledger.TenantLedgerState, error) {
	state, err := s.states.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !state.Active {
		return nil, shared.NewValidationError("VeriFactu processing is not active for this tenant")
	}
	return state, nil
}

func (s *RecordService) ensureUnusedInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) error {
	_, err := s.records.FindByInvoiceNumber(ctx, tenantID, invoiceNumber)
	if err == nil {
		return fmt.Errorf("%w: invoice number %s already registered", shared.ErrAlreadyExists, invoiceNumber)
	}
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	return err
}

// appendToChain persists the record and moves the chain head in one logical
// step. Callers hold the tenant lock.
func (s *RecordService) appendToChain(ctx context.Context, state *ledger.TenantLedgerState, record *ledger.LedgerRecord) error {
	if err := s.records.Create(ctx, record); err != nil {
		return err
	}
	state.AdvanceChainHead(record)
	return s.states.Update(ctx, state)
}
