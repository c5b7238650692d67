package remision

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/shared"
)

// BatchStatus is the lifecycle state of a submission batch
type BatchStatus string

const (
	BatchStatusQueued       BatchStatus = "queued"
	BatchStatusSending      BatchStatus = "sending"
	BatchStatusSent         BatchStatus = "sent"
	BatchStatusPartialError BatchStatus = "partial_error"
	BatchStatusError        BatchStatus = "error"
)

// IsValid checks if the batch status is valid
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusQueued, BatchStatusSending, BatchStatusSent, BatchStatusPartialError, BatchStatusError:
		return true
	}
	return false
}

// IsTerminal returns true once a batch needs no further automatic processing
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusSent
}

// RecordIDList stores the ordered record membership of a batch as JSON
type RecordIDList []uuid.UUID

// Value implements driver.Valuer for database storage
func (l RecordIDList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

// Scan implements sql.Scanner for database retrieval
func (l *RecordIDList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into remision.RecordIDList", value)
	}
}

// RemisionBatch groups pending ledger records into one AEAT submission.
// Status transitions: queued -> sending -> sent | partial_error | error,
// and retriable outcomes (error, partial_error) may re-enter sending.
type RemisionBatch struct {
	shared.TenantEntity
	Status        BatchStatus
	RecordIDs     RecordIDList
	AttemptCount  int
	AcceptedCount int
	RejectedCount int
	AeatCSV       *string
	LastError     *string
	SubmittedAt   *time.Time
	CompletedAt   *time.Time
}

// NewRemisionBatch creates a queued batch over the given records
func NewRemisionBatch(tenantID uuid.UUID, recordIDs []uuid.UUID) (*RemisionBatch, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("tenant ID cannot be empty")
	}
	if len(recordIDs) == 0 {
		return nil, shared.NewValidationError("batch must contain at least one record")
	}
	return &RemisionBatch{
		TenantEntity: shared.NewTenantEntity(tenantID),
		Status:       BatchStatusQueued,
		RecordIDs:    RecordIDList(recordIDs),
	}, nil
}

// RecordCount returns the number of records in the batch
func (b *RemisionBatch) RecordCount() int {
	return len(b.RecordIDs)
}

// CanRetry returns true if the batch may be submitted again
func (b *RemisionBatch) CanRetry() bool {
	switch b.Status {
	case BatchStatusQueued, BatchStatusError, BatchStatusPartialError:
		return true
	}
	return false
}

// MarkSending moves the batch into the sending state and counts the attempt
func (b *RemisionBatch) MarkSending(now time.Time) error {
	if !b.CanRetry() {
		return fmt.Errorf("%w: cannot send batch in status %s", shared.ErrInvalidState, b.Status)
	}
	b.Status = BatchStatusSending
	b.AttemptCount++
	b.SubmittedAt = &now
	b.LastError = nil
	b.touch(now)
	return nil
}

// MarkOutcome resolves a sending batch from the per-record acceptance tally.
// errorMessage carries the first rejection reason and is stored when the
// whole batch was rejected.
func (b *RemisionBatch) MarkOutcome(accepted, rejected int, csv, errorMessage string, now time.Time) error {
	if b.Status != BatchStatusSending {
		return fmt.Errorf("%w: cannot resolve batch in status %s", shared.ErrInvalidState, b.Status)
	}
	b.AcceptedCount = accepted
	b.RejectedCount = rejected
	if csv != "" {
		b.AeatCSV = &csv
	}
	switch {
	case rejected == 0:
		b.Status = BatchStatusSent
	case accepted > 0:
		b.Status = BatchStatusPartialError
	default:
		b.Status = BatchStatusError
		if errorMessage != "" {
			b.LastError = &errorMessage
		}
	}
	b.CompletedAt = &now
	b.touch(now)
	return nil
}

// MarkFailed records a transport-level failure where no record was resolved
func (b *RemisionBatch) MarkFailed(reason string, now time.Time) error {
	if b.Status != BatchStatusSending {
		return fmt.Errorf("%w: cannot fail batch in status %s", shared.ErrInvalidState, b.Status)
	}
	b.Status = BatchStatusError
	b.LastError = &reason
	b.touch(now)
	return nil
}

func (b *RemisionBatch) touch(now time.Time) {
	b.UpdatedAt = now
	b.IncrementVersion()
}
