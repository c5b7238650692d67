package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields(invoiceNumber string) ChainFields {
	return ChainFields{
		IssuerTaxID:     "B12345678",
		InvoiceNumber:   invoiceNumber,
		IssueDate:       time.Date(2026, 2, 12, 10, 30, 0, 0, time.UTC),
		InvoiceTypeCode: "F1",
		TaxAmount:       decimal.RequireFromString("21.00"),
		TotalAmount:     decimal.RequireFromString("121.00"),
	}
}

func TestComputeAltaHash_FirstRecord(t *testing.T) {
	hash, err := ComputeAltaHash(testFields("FAC-2026-001"), nil)

	require.NoError(t, err)
	assert.Equal(t, "7deeafbc9208677d687f5a02f11f3075b22eaa2700696cdfdd71b3d9ba8a2373", hash)
}

func TestComputeAltaHash_ChainedRecord(t *testing.T) {
	first, err := ComputeAltaHash(testFields("FAC-2026-001"), nil)
	require.NoError(t, err)

	second, err := ComputeAltaHash(testFields("FAC-2026-002"), &first)

	require.NoError(t, err)
	assert.Equal(t, "f433a7f82dbacdf99bef7bccf420500c177d33af5345e45554953fbea0a23500", second)
}

func TestComputeAnulacionHash(t *testing.T) {
	first, err := ComputeAltaHash(testFields("FAC-2026-001"), nil)
	require.NoError(t, err)

	hash, err := ComputeAnulacionHash(testFields("FAC-2026-001"), &first)

	require.NoError(t, err)
	assert.Equal(t, "a16ce450d4431c1ef4bc76a98143cdaab5ae4336c45f11bd321839c8ca32cde5", hash)
}

func TestComputeAltaHash_AmountsNormalizedToTwoDecimals(t *testing.T) {
	fields := testFields("FAC-2026-001")
	fields.TaxAmount = decimal.RequireFromString("21")
	fields.TotalAmount = decimal.RequireFromString("121.0000")

	hash, err := ComputeAltaHash(fields, nil)

	require.NoError(t, err)
	assert.Equal(t, "7deeafbc9208677d687f5a02f11f3075b22eaa2700696cdfdd71b3d9ba8a2373", hash)
}

func TestComputeAltaHash_RectificativaHashesAsAlta(t *testing.T) {
	fields := testFields("FAC-2026-001")
	fields.InvoiceTypeCode = "R1"

	viaAlta, err := ComputeAltaHash(fields, nil)
	require.NoError(t, err)

	expected, err := computeChainHash(fields, RecordTypeRectificativa.ChainKind(), nil)
	require.NoError(t, err)
	assert.Equal(t, expected, viaAlta)
}

func TestComputeAltaHash_ValidatesFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ChainFields)
	}{
		{"missing issuer tax ID", func(f *ChainFields) { f.IssuerTaxID = "" }},
		{"missing invoice number", func(f *ChainFields) { f.InvoiceNumber = "" }},
		{"zero issue date", func(f *ChainFields) { f.IssueDate = time.Time{} }},
		{"missing invoice type code", func(f *ChainFields) { f.InvoiceTypeCode = "" }},
		{"negative tax amount", func(f *ChainFields) { f.TaxAmount = decimal.RequireFromString("-1") }},
		{"non-positive total amount", func(f *ChainFields) { f.TotalAmount = decimal.Zero }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := testFields("FAC-2026-001")
			tc.mutate(&fields)

			_, err := ComputeAltaHash(fields, nil)

			assert.Error(t, err)
		})
	}
}

func TestComputeAltaHash_DifferentPreviousHashChangesResult(t *testing.T) {
	prev := "0000000000000000000000000000000000000000000000000000000000000000"

	withPrev, err := ComputeAltaHash(testFields("FAC-2026-001"), &prev)
	require.NoError(t, err)

	withoutPrev, err := ComputeAltaHash(testFields("FAC-2026-001"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, withoutPrev, withPrev)
}
