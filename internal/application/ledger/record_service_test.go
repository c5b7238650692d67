package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	auditapp "github.com/verifactu/backend/internal/application/audit"
	auditdom "github.com/verifactu/backend/internal/domain/audit"
	"github.com/verifactu/backend/internal/domain/ledger"
	"github.com/verifactu/backend/internal/domain/shared"
)

// =============================================================================
// Mocks
// =============================================================================

type MockLedgerRecordRepository struct {
	mock.Mock
}

func (m *MockLedgerRecordRepository) Create(ctx context.Context, record *ledger.LedgerRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockLedgerRecordRepository) Update(ctx context.Context, record *ledger.LedgerRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockLedgerRecordRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.LedgerRecord, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.LedgerRecord), args.Error(1)
}

func (m *MockLedgerRecordRepository) FindByInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (*ledger.LedgerRecord, error) {
	args := m.Called(ctx, tenantID, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.LedgerRecord), args.Error(1)
}

func (m *MockLedgerRecordRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*ledger.LedgerRecord], error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[*ledger.LedgerRecord]), args.Error(1)
}

func (m *MockLedgerRecordRepository) FindAllInChainOrder(ctx context.Context, tenantID uuid.UUID) ([]*ledger.LedgerRecord, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.LedgerRecord), args.Error(1)
}

func (m *MockLedgerRecordRepository) FindPending(ctx context.Context, tenantID uuid.UUID, limit int) ([]*ledger.LedgerRecord, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.LedgerRecord), args.Error(1)
}

func (m *MockLedgerRecordRepository) CountPending(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRecordRepository) FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]*ledger.LedgerRecord, error) {
	args := m.Called(ctx, tenantID, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.LedgerRecord), args.Error(1)
}

func (m *MockLedgerRecordRepository) ExistsCancellation(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (bool, error) {
	args := m.Called(ctx, tenantID, invoiceNumber)
	return args.Bool(0), args.Error(1)
}

type MockTenantLedgerStateRepository struct {
	mock.Mock
}

func (m *MockTenantLedgerStateRepository) Create(ctx context.Context, state *ledger.TenantLedgerState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockTenantLedgerStateRepository) Update(ctx context.Context, state *ledger.TenantLedgerState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockTenantLedgerStateRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*ledger.TenantLedgerState, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.TenantLedgerState), args.Error(1)
}

type MockEventLogRepository struct {
	mock.Mock
}

func (m *MockEventLogRepository) Create(ctx context.Context, entry *auditdom.EventLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockEventLogRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*auditdom.EventLogEntry], error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[*auditdom.EventLogEntry]), args.Error(1)
}

func (m *MockEventLogRepository) FindLatest(ctx context.Context, tenantID uuid.UUID) (*auditdom.EventLogEntry, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditdom.EventLogEntry), args.Error(1)
}

func (m *MockEventLogRepository) FindAllInChainOrder(ctx context.Context, tenantID uuid.UUID) ([]*auditdom.EventLogEntry, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditdom.EventLogEntry), args.Error(1)
}

// passthroughLocker runs fn inline, as if the tenant lock were free
type passthroughLocker struct{}

func (passthroughLocker) WithTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// timeoutLocker always fails to acquire the lock
type timeoutLocker struct{}

func (timeoutLocker) WithTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return shared.ErrLockTimeout
}

type fakeQR struct{}

func (fakeQR) VerificationURL(env ledger.Environment, issuerTaxID, invoiceNumber string, issueDate time.Time, total decimal.Decimal) string {
	return "https://www2.agenciatributaria.gob.es/wlpl/TIKE-CONT/ValidarQR?nif=" + issuerTaxID
}

// =============================================================================
// Fixtures
// =============================================================================

func newAuditService(repo *MockEventLogRepository) *auditapp.EventLogService {
	repo.On("FindLatest", mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound).Maybe()
	repo.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	return auditapp.NewEventLogService(repo, zap.NewNop())
}

func newServiceUnderTest(records *MockLedgerRecordRepository, states *MockTenantLedgerStateRepository) *RecordService {
	return NewRecordService(
		records,
		states,
		passthroughLocker{},
		newAuditService(&MockEventLogRepository{}),
		fakeQR{},
		SoftwareIdentity{ID: "VF-001", Version: "1.0.0"},
		zap.NewNop(),
	)
}

func activeTenantState(t *testing.T, tenantID uuid.UUID) *ledger.TenantLedgerState {
	t.Helper()
	state, err := ledger.NewTenantLedgerState(tenantID, "B12345678", "Empresa Ejemplo SL")
	require.NoError(t, err)
	state.Activate()
	return state
}

func altaRequest() CreateAltaRequest {
	return CreateAltaRequest{
		InvoiceNumber: "FAC-2026-001",
		IssueDate:     time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC),
		TaxBase:       decimal.RequireFromString("100.00"),
		TaxRate:       decimal.RequireFromString("21.00"),
		TaxAmount:     decimal.RequireFromString("21.00"),
		TotalAmount:   decimal.RequireFromString("121.00"),
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestCreateAlta_FirstRecordOfChain(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}
	state := activeTenantState(t, tenantID)

	states.On("FindByTenant", mock.Anything, tenantID).Return(state, nil)
	records.On("FindByInvoiceNumber", mock.Anything, tenantID, "FAC-2026-001").Return(nil, shared.ErrNotFound)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)
	states.On("Update", mock.Anything, state).Return(nil)

	svc := newServiceUnderTest(records, states)
	resp, err := svc.CreateAlta(context.Background(), tenantID, altaRequest())

	require.NoError(t, err)
	assert.Equal(t, "7deeafbc9208677d687f5a02f11f3075b22eaa2700696cdfdd71b3d9ba8a2373", resp.HashRecord)
	assert.Nil(t, resp.HashPrevious)
	assert.Equal(t, "pending", resp.SubmissionStatus)
	assert.Contains(t, resp.VerificationURL, "B12345678")

	require.NotNil(t, state.LastChainHash)
	assert.Equal(t, resp.HashRecord, *state.LastChainHash)
	records.AssertExpectations(t)
	states.AssertExpectations(t)
}

func TestCreateAlta_ChainsOnPreviousHash(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}
	state := activeTenantState(t, tenantID)
	prev := "7deeafbc9208677d687f5a02f11f3075b22eaa2700696cdfdd71b3d9ba8a2373"
	state.LastChainHash = &prev

	states.On("FindByTenant", mock.Anything, tenantID).Return(state, nil)
	records.On("FindByInvoiceNumber", mock.Anything, tenantID, "FAC-2026-002").Return(nil, shared.ErrNotFound)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)
	states.On("Update", mock.Anything, state).Return(nil)

	req := altaRequest()
	req.InvoiceNumber = "FAC-2026-002"

	svc := newServiceUnderTest(records, states)
	resp, err := svc.CreateAlta(context.Background(), tenantID, req)

	require.NoError(t, err)
	assert.Equal(t, "f433a7f82dbacdf99bef7bccf420500c177d33af5345e45554953fbea0a23500", resp.HashRecord)
	require.NotNil(t, resp.HashPrevious)
	assert.Equal(t, prev, *resp.HashPrevious)
}

func TestCreateAlta_GeneratesInvoiceNumber(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}
	state := activeTenantState(t, tenantID)

	states.On("FindByTenant", mock.Anything, tenantID).Return(state, nil)
	records.On("FindByInvoiceNumber", mock.Anything, tenantID, "FAC-2026-001").Return(nil, shared.ErrNotFound)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)
	states.On("Update", mock.Anything, state).Return(nil)

	req := altaRequest()
	req.InvoiceNumber = ""

	svc := newServiceUnderTest(records, states)
	resp, err := svc.CreateAlta(context.Background(), tenantID, req)

	require.NoError(t, err)
	assert.Equal(t, "FAC-2026-001", resp.InvoiceNumber)
	assert.Equal(t, 2, state.NextSequence)
}

func TestCreateAlta_DuplicateInvoiceNumber(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}
	state := activeTenantState(t, tenantID)

	existing := &ledger.LedgerRecord{}
	states.On("FindByTenant", mock.Anything, tenantID).Return(state, nil)
	records.On("FindByInvoiceNumber", mock.Anything, tenantID, "FAC-2026-001").Return(existing, nil)

	svc := newServiceUnderTest(records, states)
	_, err := svc.CreateAlta(context.Background(), tenantID, altaRequest())

	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	records.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateAlta_InactiveTenantRejected(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}
	state := activeTenantState(t, tenantID)
	state.Deactivate()

	states.On("FindByTenant", mock.Anything, tenantID).Return(state, nil)

	svc := newServiceUnderTest(records, states)
	_, err := svc.CreateAlta(context.Background(), tenantID, altaRequest())

	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.CodeValidation, domainErr.Code)
}

func TestCreateAlta_LockTimeout(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}

	svc := NewRecordService(
		records, states, timeoutLocker{},
		newAuditService(&MockEventLogRepository{}),
		fakeQR{}, SoftwareIdentity{ID: "VF-001", Version: "1.0.0"}, zap.NewNop(),
	)
	_, err := svc.CreateAlta(context.Background(), tenantID, altaRequest())

	assert.ErrorIs(t, err, shared.ErrLockTimeout)
	records.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateAnulacion(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}
	state := activeTenantState(t, tenantID)

	fields := ledger.ChainFields{
		IssuerTaxID:     "B12345678",
		InvoiceNumber:   "FAC-2026-001",
		IssueDate:       time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC),
		InvoiceTypeCode: "F1",
		TaxAmount:       decimal.RequireFromString("21.00"),
		TotalAmount:     decimal.RequireFromString("121.00"),
	}
	firstHash, err := ledger.ComputeAltaHash(fields, nil)
	require.NoError(t, err)
	source, err := ledger.NewLedgerRecord(ledger.NewRecordParams{
		TenantID:        tenantID,
		RecordType:      ledger.RecordTypeAlta,
		Fields:          fields,
		IssuerLegalName: "Empresa Ejemplo SL",
		HashRecord:      firstHash,
		SoftwareID:      "VF-001",
		SoftwareVersion: "1.0.0",
	})
	require.NoError(t, err)
	state.AdvanceChainHead(source)

	states.On("FindByTenant", mock.Anything, tenantID).Return(state, nil)
	records.On("FindByInvoiceNumber", mock.Anything, tenantID, "FAC-2026-001").Return(source, nil)
	records.On("ExistsCancellation", mock.Anything, tenantID, "FAC-2026-001").Return(false, nil)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)
	states.On("Update", mock.Anything, state).Return(nil)

	svc := newServiceUnderTest(records, states)
	resp, err := svc.CreateAnulacion(context.Background(), tenantID, "FAC-2026-001")

	require.NoError(t, err)
	assert.Equal(t, "anulacion", resp.RecordType)
	assert.Equal(t, "a16ce450d4431c1ef4bc76a98143cdaab5ae4336c45f11bd321839c8ca32cde5", resp.HashRecord)
	require.NotNil(t, resp.SourceInvoiceID)
	assert.Equal(t, source.ID, *resp.SourceInvoiceID)
}

func TestCreateAnulacion_AlreadyCancelled(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}
	state := activeTenantState(t, tenantID)

	source := &ledger.LedgerRecord{RecordType: ledger.RecordTypeAlta}
	states.On("FindByTenant", mock.Anything, tenantID).Return(state, nil)
	records.On("FindByInvoiceNumber", mock.Anything, tenantID, "FAC-2026-001").Return(source, nil)
	records.On("ExistsCancellation", mock.Anything, tenantID, "FAC-2026-001").Return(true, nil)

	svc := newServiceUnderTest(records, states)
	_, err := svc.CreateAnulacion(context.Background(), tenantID, "FAC-2026-001")

	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCreateRectificativa_UsesR1TypeCode(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}
	state := activeTenantState(t, tenantID)

	source := &ledger.LedgerRecord{RecordType: ledger.RecordTypeAlta, RegimeKey: "01"}
	source.ID = uuid.New()

	states.On("FindByTenant", mock.Anything, tenantID).Return(state, nil)
	records.On("FindByInvoiceNumber", mock.Anything, tenantID, "FAC-2026-001").Return(source, nil)
	records.On("FindByInvoiceNumber", mock.Anything, tenantID, "FAC-2026-010").Return(nil, shared.ErrNotFound)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)
	states.On("Update", mock.Anything, state).Return(nil)

	svc := newServiceUnderTest(records, states)
	resp, err := svc.CreateRectificativa(context.Background(), tenantID, CreateRectificativaRequest{
		SourceInvoiceNumber: "FAC-2026-001",
		InvoiceNumber:       "FAC-2026-010",
		IssueDate:           time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		TaxBase:             decimal.RequireFromString("90.00"),
		TaxRate:             decimal.RequireFromString("21.00"),
		TaxAmount:           decimal.RequireFromString("18.90"),
		TotalAmount:         decimal.RequireFromString("108.90"),
	})

	require.NoError(t, err)
	assert.Equal(t, "rectificativa", resp.RecordType)
	assert.Equal(t, "R1", resp.InvoiceTypeCode)
	require.NotNil(t, resp.SourceInvoiceID)
}

func TestVerifyChain_ReportsBreak(t *testing.T) {
	tenantID := uuid.New()
	records := &MockLedgerRecordRepository{}
	states := &MockTenantLedgerStateRepository{}
	state := activeTenantState(t, tenantID)

	fields := ledger.ChainFields{
		IssuerTaxID:     "B12345678",
		InvoiceNumber:   "FAC-2026-001",
		IssueDate:       time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC),
		InvoiceTypeCode: "F1",
		TaxAmount:       decimal.RequireFromString("21.00"),
		TotalAmount:     decimal.RequireFromString("121.00"),
	}
	hash, err := ledger.ComputeAltaHash(fields, nil)
	require.NoError(t, err)
	record, err := ledger.NewLedgerRecord(ledger.NewRecordParams{
		TenantID:        tenantID,
		RecordType:      ledger.RecordTypeAlta,
		Fields:          fields,
		IssuerLegalName: "Empresa Ejemplo SL",
		HashRecord:      hash,
		SoftwareID:      "VF-001",
		SoftwareVersion: "1.0.0",
	})
	require.NoError(t, err)
	record.TotalAmount = decimal.RequireFromString("999.00")

	states.On("FindByTenant", mock.Anything, tenantID).Return(state, nil).Maybe()
	records.On("FindAllInChainOrder", mock.Anything, tenantID).Return([]*ledger.LedgerRecord{record}, nil)

	svc := newServiceUnderTest(records, states)
	result, err := svc.VerifyChain(context.Background(), tenantID)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, 0, result.ValidRecordsBeforeBreak)
	require.NotNil(t, result.BreakRecordID)
	assert.Equal(t, record.ID, *result.BreakRecordID)
}

func TestCreateAltaRequest_AppliesDefaultVAT(t *testing.T) {
	req := CreateAltaRequest{TotalAmount: decimal.RequireFromString("121.00")}
	req.applyDefaultVAT()

	assert.True(t, decimal.RequireFromString("100.00").Equal(req.TaxBase), req.TaxBase.String())
	assert.True(t, decimal.RequireFromString("21.00").Equal(req.TaxAmount), req.TaxAmount.String())
	assert.True(t, standardVATRate.Equal(req.TaxRate))
}

func TestCreateAltaRequest_KeepsExplicitBreakdown(t *testing.T) {
	req := altaRequest()
	req.applyDefaultVAT()

	assert.True(t, decimal.RequireFromString("100.00").Equal(req.TaxBase))
	assert.True(t, decimal.RequireFromString("21.00").Equal(req.TaxAmount))
}
