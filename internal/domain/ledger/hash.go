package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/verifactu/backend/internal/domain/shared"
)

// chainDateLayout is the issue-date format used in the hash input.
const chainDateLayout = "2006-01-02"

// ChainFields are the invoice fields covered by the record hash. The hash is
// a pure function of these fields plus the previous record's hash; amounts
// are formatted with exactly two decimal digits and a dot separator.
type ChainFields struct {
	IssuerTaxID     string
	InvoiceNumber   string
	IssueDate       time.Time
	InvoiceTypeCode string
	TaxAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
}

// Validate checks that every field covered by the hash is present.
func (f ChainFields) Validate() error {
	switch {
	case strings.TrimSpace(f.IssuerTaxID) == "":
		return shared.NewValidationError("issuer tax ID is required for hash computation")
	case strings.TrimSpace(f.InvoiceNumber) == "":
		return shared.NewValidationError("invoice number is required for hash computation")
	case f.IssueDate.IsZero():
		return shared.NewValidationError("issue date is required for hash computation")
	case strings.TrimSpace(f.InvoiceTypeCode) == "":
		return shared.NewValidationError("invoice type code is required for hash computation")
	case f.TaxAmount.IsNegative():
		return shared.NewValidationError("tax amount cannot be negative")
	case !f.TotalAmount.IsPositive():
		return shared.NewValidationError("total amount must be positive")
	}
	return nil
}

// ComputeAltaHash computes the chained SHA-256 hash for an alta (or
// rectificativa) record. previousHash is nil for the first record of a tenant.
func ComputeAltaHash(fields ChainFields, previousHash *string) (string, error) {
	return computeChainHash(fields, chainKindAlta, previousHash)
}

// ComputeAnulacionHash computes the chained SHA-256 hash for an anulación record.
func ComputeAnulacionHash(fields ChainFields, previousHash *string) (string, error) {
	return computeChainHash(fields, chainKindAnulacion, previousHash)
}

func computeChainHash(fields ChainFields, kind string, previousHash *string) (string, error) {
	if err := fields.Validate(); err != nil {
		return "", err
	}

	previous := ""
	if previousHash != nil {
		previous = *previousHash
	}

	input := strings.Join([]string{
		fields.IssuerTaxID,
		fields.InvoiceNumber,
		fields.IssueDate.Format(chainDateLayout),
		fields.InvoiceTypeCode,
		fields.TaxAmount.StringFixed(2),
		fields.TotalAmount.StringFixed(2),
		kind,
		previous,
	}, ",")

	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:]), nil
}
