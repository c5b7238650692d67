package aeat

import (
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/verifactu/backend/internal/domain/ledger"
)

// DefaultQRBaseURL is the AEAT invoice verification endpoint QR codes
// point at.
const DefaultQRBaseURL = "https://www2.agenciatributaria.gob.es/wlpl/TIKE-CONT/ValidarQR"

// QRBuilder renders AEAT verification URLs for ledger records
type QRBuilder struct {
	baseURL string
}

// NewQRBuilder creates a new QRBuilder. An empty baseURL falls back to the
// production AEAT endpoint.
func NewQRBuilder(baseURL string) *QRBuilder {
	if baseURL == "" {
		baseURL = DefaultQRBaseURL
	}
	return &QRBuilder{baseURL: baseURL}
}

// VerificationURL builds the validation URL stamped next to the invoice QR.
// The same URL shape is used in both environments.
func (b *QRBuilder) VerificationURL(env ledger.Environment, issuerTaxID, invoiceNumber string, issueDate time.Time, total decimal.Decimal) string {
	query := url.Values{}
	query.Set("nif", issuerTaxID)
	query.Set("numserie", invoiceNumber)
	query.Set("fecha", issueDate.Format("02-01-2006"))
	query.Set("importe", total.StringFixed(2))
	return b.baseURL + "?" + query.Encode()
}
