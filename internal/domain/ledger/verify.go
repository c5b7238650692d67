package ledger

import "github.com/google/uuid"

// ChainIntegrityResult is the outcome of walking a tenant's full chain
type ChainIntegrityResult struct {
	Valid                   bool
	TotalRecords            int
	ValidRecordsBeforeBreak int
	BreakRecordID           *uuid.UUID
	ExpectedHash            string
	ActualHash              string
	ElapsedMs               int64
}

// VerifyRecords recomputes the hash chain over records in creation order and
// reports the first break. Two checks run per record: the stored previous
// hash must match the preceding record's stored hash, and the recomputed
// hash must match the stored one. An empty chain is valid.
func VerifyRecords(records []*LedgerRecord) ChainIntegrityResult {
	result := ChainIntegrityResult{
		Valid:        true,
		TotalRecords: len(records),
	}

	var previousStored *string
	for i, record := range records {
		if !linkMatches(record.HashPrevious, previousStored) {
			return breakAt(result, record, i, derefOrEmpty(previousStored), derefOrEmpty(record.HashPrevious))
		}

		expected, err := computeChainHash(record.ChainFields(), record.RecordType.ChainKind(), previousStored)
		if err != nil {
			return breakAt(result, record, i, "", record.HashRecord)
		}
		if expected != record.HashRecord {
			return breakAt(result, record, i, expected, record.HashRecord)
		}

		hash := record.HashRecord
		previousStored = &hash
	}

	result.ValidRecordsBeforeBreak = len(records)
	return result
}

func linkMatches(got, want *string) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	return *got == *want
}

func breakAt(result ChainIntegrityResult, record *LedgerRecord, index int, expected, actual string) ChainIntegrityResult {
	id := record.ID
	result.Valid = false
	result.ValidRecordsBeforeBreak = index
	result.BreakRecordID = &id
	result.ExpectedHash = expected
	result.ActualHash = actual
	return result
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
