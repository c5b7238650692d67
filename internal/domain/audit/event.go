package audit

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/shared"
)

// EventType classifies audit log entries
type EventType string

const (
	EventSystemStart        EventType = "SYSTEM_START"
	EventSystemStop         EventType = "SYSTEM_STOP"
	EventRecordCreate       EventType = "RECORD_CREATE"
	EventRecordCancel       EventType = "RECORD_CANCEL"
	EventRecordRectify      EventType = "RECORD_RECTIFY"
	EventAeatSubmit         EventType = "AEAT_SUBMIT"
	EventAeatResponse       EventType = "AEAT_RESPONSE"
	EventChainBreakDetected EventType = "CHAIN_BREAK_DETECTED"
	EventChainVerified      EventType = "CHAIN_VERIFIED"
	EventConfigChange       EventType = "CONFIG_CHANGE"
	EventCertificateUpload  EventType = "CERTIFICATE_UPLOAD"
	EventCircuitBreakerOpen EventType = "CIRCUIT_BREAKER_OPEN"
)

// IsValid checks if the event type is valid
func (t EventType) IsValid() bool {
	switch t {
	case EventSystemStart, EventSystemStop,
		EventRecordCreate, EventRecordCancel, EventRecordRectify,
		EventAeatSubmit, EventAeatResponse,
		EventChainBreakDetected, EventChainVerified,
		EventConfigChange, EventCertificateUpload, EventCircuitBreakerOpen:
		return true
	}
	return false
}

// Severity grades audit log entries
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Details holds free-form context for an audit entry, stored as JSONB
type Details map[string]any

// Value implements driver.Valuer for database storage
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for database retrieval
func (d *Details) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into audit.Details", value)
	}
}

// EventLogEntry is one entry of a tenant's hash-chained audit trail. The
// chain is independent of the invoice ledger chain and is append-only.
type EventLogEntry struct {
	shared.BaseEntity
	TenantID        uuid.UUID
	EventType       EventType
	Severity        Severity
	OccurredAt      time.Time
	Description     string
	Details         Details
	RelatedRecordID *uuid.UUID
	ActorID         *uuid.UUID
	IPAddress       *string
	HashEvent       string
	HashPrevious    *string
}

// ComputeEventHash computes the chained SHA-256 hash for an audit entry.
// previousHash is nil for the first entry of a tenant.
func ComputeEventHash(eventType EventType, tenantID uuid.UUID, severity Severity, occurredAt time.Time, previousHash *string) string {
	previous := ""
	if previousHash != nil {
		previous = *previousHash
	}
	input := strings.Join([]string{
		string(eventType),
		tenantID.String(),
		string(severity),
		occurredAt.UTC().Format(time.RFC3339Nano),
		previous,
	}, ",")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// NewEntryParams carries the attributes of a new audit entry. Description,
// RelatedRecordID, ActorID and IPAddress are optional context columns; the
// chain hash covers only type, tenant, severity and timestamp.
type NewEntryParams struct {
	TenantID        uuid.UUID
	EventType       EventType
	Severity        Severity
	Description     string
	RelatedRecordID *uuid.UUID
	ActorID         *uuid.UUID
	IPAddress       *string
	Details         Details
}

// NewEventLogEntry creates a chained audit entry linked to previousHash
func NewEventLogEntry(p NewEntryParams, previousHash *string) (*EventLogEntry, error) {
	if p.TenantID == uuid.Nil {
		return nil, shared.NewValidationError("tenant ID cannot be empty")
	}
	if !p.EventType.IsValid() {
		return nil, shared.NewValidationError("event type is not valid")
	}
	if !p.Severity.IsValid() {
		return nil, shared.NewValidationError("severity is not valid")
	}

	occurredAt := time.Now().UTC()
	return &EventLogEntry{
		BaseEntity:      shared.NewBaseEntity(),
		TenantID:        p.TenantID,
		EventType:       p.EventType,
		Severity:        p.Severity,
		OccurredAt:      occurredAt,
		Description:     p.Description,
		Details:         p.Details,
		RelatedRecordID: p.RelatedRecordID,
		ActorID:         p.ActorID,
		IPAddress:       p.IPAddress,
		HashEvent:       ComputeEventHash(p.EventType, p.TenantID, p.Severity, occurredAt, previousHash),
		HashPrevious:    previousHash,
	}, nil
}

// Recompute returns the hash the entry should carry given its stored fields
func (e *EventLogEntry) Recompute() string {
	return ComputeEventHash(e.EventType, e.TenantID, e.Severity, e.OccurredAt, e.HashPrevious)
}

// VerifyEntries walks a tenant's audit chain in order and returns the index
// of the first broken entry, or -1 when the chain is intact.
func VerifyEntries(entries []*EventLogEntry) int {
	var previous *string
	for i, entry := range entries {
		linkOK := (entry.HashPrevious == nil && previous == nil) ||
			(entry.HashPrevious != nil && previous != nil && *entry.HashPrevious == *previous)
		if !linkOK || entry.Recompute() != entry.HashEvent {
			return i
		}
		hash := entry.HashEvent
		previous = &hash
	}
	return -1
}
