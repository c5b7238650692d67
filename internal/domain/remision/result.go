package remision

import "github.com/google/uuid"

// RemisionResult summarizes one pipeline pass for a batch
type RemisionResult struct {
	BatchID       uuid.UUID
	Status        BatchStatus
	Attempts      int
	AcceptedCount int
	RejectedCount int
	CSV           string
	LastError     string
}

// QueueStatus is a tenant-level snapshot of the submission queue
type QueueStatus struct {
	Counts         map[BatchStatus]int64
	PendingRecords int64
	BreakerOpen    bool
	PausedUntilUTC string
	NextAllowedIn  string
}
