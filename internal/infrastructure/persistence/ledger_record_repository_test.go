package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verifactu/backend/internal/domain/ledger"
	"github.com/verifactu/backend/internal/domain/shared"
	"github.com/verifactu/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.LedgerRecordModel{}, &models.TenantLedgerStateModel{})
	require.NoError(t, err)

	return db
}

func newTestRecord(t *testing.T, tenantID uuid.UUID, invoiceNumber string, recordType ledger.RecordType, previousHash *string) *ledger.LedgerRecord {
	t.Helper()
	fields := ledger.ChainFields{
		IssuerTaxID:     "B12345678",
		InvoiceNumber:   invoiceNumber,
		IssueDate:       time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC),
		InvoiceTypeCode: "F1",
		TaxAmount:       decimal.NewFromFloat(21.00),
		TotalAmount:     decimal.NewFromFloat(121.00),
	}
	var hash string
	var hashErr error
	if recordType == ledger.RecordTypeAnulacion {
		hash, hashErr = ledger.ComputeAnulacionHash(fields, previousHash)
	} else {
		hash, hashErr = ledger.ComputeAltaHash(fields, previousHash)
	}
	require.NoError(t, hashErr)
	record, err := ledger.NewLedgerRecord(ledger.NewRecordParams{
		TenantID:        tenantID,
		RecordType:      recordType,
		Fields:          fields,
		IssuerLegalName: "Ejemplo SL",
		TaxBase:         decimal.NewFromFloat(100.00),
		TaxRate:         decimal.NewFromFloat(21.00),
		HashRecord:      hash,
		HashPrevious:    previousHash,
		SoftwareID:      "VF01",
		SoftwareVersion: "1.0.0",
	})
	require.NoError(t, err)
	return record
}

func TestGormLedgerRecordRepository_CreateAndFind(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormLedgerRecordRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	record := newTestRecord(t, tenantID, "FAC-2026-001", ledger.RecordTypeAlta, nil)
	require.NoError(t, repo.Create(ctx, record))

	t.Run("finds by ID", func(t *testing.T) {
		found, err := repo.FindByID(ctx, tenantID, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.InvoiceNumber, found.InvoiceNumber)
		assert.Equal(t, record.HashRecord, found.HashRecord)
		assert.Nil(t, found.HashPrevious)
		assert.True(t, record.TaxAmount.Equal(found.TaxAmount))
		assert.Equal(t, ledger.SubmissionStatusPending, found.SubmissionStatus)
	})

	t.Run("finds by invoice number", func(t *testing.T) {
		found, err := repo.FindByInvoiceNumber(ctx, tenantID, "FAC-2026-001")
		require.NoError(t, err)
		assert.Equal(t, record.ID, found.ID)
	})

	t.Run("not found in another tenant", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New(), record.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("not found by unknown invoice number", func(t *testing.T) {
		_, err := repo.FindByInvoiceNumber(ctx, tenantID, "FAC-9999-999")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormLedgerRecordRepository_FindByInvoiceNumberSkipsCancellation(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormLedgerRecordRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	alta := newTestRecord(t, tenantID, "FAC-2026-001", ledger.RecordTypeAlta, nil)
	require.NoError(t, repo.Create(ctx, alta))
	anulacion := newTestRecord(t, tenantID, "FAC-2026-001", ledger.RecordTypeAnulacion, &alta.HashRecord)
	require.NoError(t, repo.Create(ctx, anulacion))

	found, err := repo.FindByInvoiceNumber(ctx, tenantID, "FAC-2026-001")
	require.NoError(t, err)
	assert.Equal(t, ledger.RecordTypeAlta, found.RecordType)

	exists, err := repo.ExistsCancellation(ctx, tenantID, "FAC-2026-001")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsCancellation(ctx, tenantID, "FAC-2026-002")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGormLedgerRecordRepository_ChainOrderAndPending(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormLedgerRecordRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	var previous *string
	numbers := []string{"FAC-2026-001", "FAC-2026-002", "FAC-2026-003"}
	for i, number := range numbers {
		record := newTestRecord(t, tenantID, number, ledger.RecordTypeAlta, previous)
		// spread created_at so ordering is deterministic
		record.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, record))
		previous = &record.HashRecord
	}

	t.Run("returns records in chain order", func(t *testing.T) {
		records, err := repo.FindAllInChainOrder(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, number := range numbers {
			assert.Equal(t, number, records[i].InvoiceNumber)
		}
		result := ledger.VerifyRecords(records)
		assert.True(t, result.Valid)
	})

	t.Run("counts and lists pending records", func(t *testing.T) {
		count, err := repo.CountPending(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		pending, err := repo.FindPending(ctx, tenantID, 2)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
		assert.Equal(t, "FAC-2026-001", pending[0].InvoiceNumber)
	})

	t.Run("batched records leave the pending set", func(t *testing.T) {
		pending, err := repo.FindPending(ctx, tenantID, 0)
		require.NoError(t, err)

		batchID := uuid.New()
		first := pending[0]
		first.AssignBatch(batchID)
		require.NoError(t, repo.Update(ctx, first))

		count, err := repo.CountPending(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		batched, err := repo.FindByBatch(ctx, tenantID, batchID)
		require.NoError(t, err)
		require.Len(t, batched, 1)
		assert.Equal(t, first.ID, batched[0].ID)
	})
}

func TestGormLedgerRecordRepository_FindByTenant(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormLedgerRecordRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	alta := newTestRecord(t, tenantID, "FAC-2026-001", ledger.RecordTypeAlta, nil)
	require.NoError(t, repo.Create(ctx, alta))
	anulacion := newTestRecord(t, tenantID, "FAC-2026-001", ledger.RecordTypeAnulacion, &alta.HashRecord)
	require.NoError(t, repo.Create(ctx, anulacion))

	t.Run("filters by record type", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Filters["record_type"] = string(ledger.RecordTypeAnulacion)
		page, err := repo.FindByTenant(ctx, tenantID, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, ledger.RecordTypeAnulacion, page.Items[0].RecordType)
	})

	t.Run("paginates", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.PageSize = 1
		page, err := repo.FindByTenant(ctx, tenantID, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		assert.Len(t, page.Items, 1)
		assert.Equal(t, 2, page.TotalPages)
	})
}

func TestGormLedgerRecordRepository_UpdateStatus(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormLedgerRecordRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	record := newTestRecord(t, tenantID, "FAC-2026-001", ledger.RecordTypeAlta, nil)
	require.NoError(t, repo.Create(ctx, record))

	record.MarkAccepted("2000", "Correcto")
	require.NoError(t, repo.Update(ctx, record))

	found, err := repo.FindByID(ctx, tenantID, record.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.SubmissionStatusAccepted, found.SubmissionStatus)
	require.NotNil(t, found.AeatResponseCode)
	assert.Equal(t, "2000", *found.AeatResponseCode)
}

func TestGormTenantLedgerStateRepository(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormTenantLedgerStateRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("not found before creation", func(t *testing.T) {
		_, err := repo.FindByTenant(ctx, tenantID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	state, err := ledger.NewTenantLedgerState(tenantID, "B12345678", "Ejemplo SL")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, state))

	t.Run("round-trips the state", func(t *testing.T) {
		found, err := repo.FindByTenant(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, "B12345678", found.IssuerTaxID)
		assert.Equal(t, "FAC", found.SeriesPrefix)
		assert.Equal(t, 1, found.NextSequence)
		assert.False(t, found.Active)
		assert.Nil(t, found.LastChainHash)
	})

	t.Run("persists chain head advances", func(t *testing.T) {
		record := newTestRecord(t, tenantID, state.NextInvoiceNumber(time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC)), ledger.RecordTypeAlta, nil)
		state.Activate()
		state.AdvanceChainHead(record)
		require.NoError(t, repo.Update(ctx, state))

		found, err := repo.FindByTenant(ctx, tenantID)
		require.NoError(t, err)
		assert.True(t, found.Active)
		assert.Equal(t, 2, found.NextSequence)
		require.NotNil(t, found.LastChainHash)
		assert.Equal(t, record.HashRecord, *found.LastChainHash)
		require.NotNil(t, found.LastRecordID)
		assert.Equal(t, record.ID, *found.LastRecordID)
	})
}
