package aeat

import (
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verifactu/backend/internal/domain/ledger"
)

func TestQRBuilder_VerificationURL(t *testing.T) {
	builder := NewQRBuilder("")
	issueDate := time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC)

	got := builder.VerificationURL(ledger.EnvironmentProduction, "B12345678", "FAC-2026-001", issueDate, decimal.NewFromFloat(121.00))

	parsed, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "www2.agenciatributaria.gob.es", parsed.Host)
	assert.Equal(t, "/wlpl/TIKE-CONT/ValidarQR", parsed.Path)

	query := parsed.Query()
	assert.Equal(t, "B12345678", query.Get("nif"))
	assert.Equal(t, "FAC-2026-001", query.Get("numserie"))
	assert.Equal(t, "12-02-2026", query.Get("fecha"))
	assert.Equal(t, "121.00", query.Get("importe"))
}

func TestQRBuilder_PercentEncodesQueryValues(t *testing.T) {
	builder := NewQRBuilder("https://prewww2.aeat.es/wlpl/TIKE-CONT/ValidarQR")
	issueDate := time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC)

	got := builder.VerificationURL(ledger.EnvironmentTesting, "B12345678", "FAC 2026/001", issueDate, decimal.NewFromFloat(0.50))

	assert.Contains(t, got, "numserie=FAC+2026%2F001")
	assert.Contains(t, got, "importe=0.50")

	parsed, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "FAC 2026/001", parsed.Query().Get("numserie"))
}
