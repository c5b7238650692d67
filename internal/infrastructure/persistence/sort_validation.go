package persistence

import (
	"fmt"
	"strings"

	"github.com/verifactu/backend/internal/domain/shared"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// CommonSortFields contains fields common to most entities
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// LedgerRecordSortFields contains allowed sort fields for ledger records
var LedgerRecordSortFields = map[string]bool{
	"id":                true,
	"created_at":        true,
	"updated_at":        true,
	"invoice_number":    true,
	"issue_date":        true,
	"record_type":       true,
	"submission_status": true,
	"total_amount":      true,
}

// RemisionBatchSortFields contains allowed sort fields for remission batches
var RemisionBatchSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"status":       true,
	"submitted_at": true,
	"completed_at": true,
}

// EventLogSortFields contains allowed sort fields for audit entries
var EventLogSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"occurred_at": true,
	"event_type":  true,
	"severity":    true,
}

// orderClause builds a validated ORDER BY clause from a filter
func orderClause(filter shared.Filter, allowedFields map[string]bool, defaultField string) string {
	field := ValidateSortField(filter.OrderBy, allowedFields, defaultField)
	order := ValidateSortOrder(filter.OrderDir)
	return fmt.Sprintf("%s %s", field, order)
}
