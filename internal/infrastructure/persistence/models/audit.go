package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/audit"
)

// EventLogEntryModel is the persistence model for audit event log entries
type EventLogEntryModel struct {
	BaseModel
	TenantID        uuid.UUID     `gorm:"type:uuid;not null;index"`
	EventType       string        `gorm:"type:varchar(32);not null;index"`
	Severity        string        `gorm:"type:varchar(16);not null"`
	OccurredAt      time.Time     `gorm:"not null;index"`
	Description     string        `gorm:"type:text"`
	Details         audit.Details `gorm:"type:jsonb"`
	RelatedRecordID *uuid.UUID    `gorm:"type:uuid;index"`
	ActorID         *uuid.UUID    `gorm:"type:uuid"`
	IPAddress       *string       `gorm:"type:varchar(45)"`
	HashEvent       string        `gorm:"type:char(64);not null"`
	HashPrevious    *string       `gorm:"type:char(64)"`
}

// TableName returns the table name for GORM
func (EventLogEntryModel) TableName() string {
	return "event_log_entries"
}

// ToDomain converts the model to a domain EventLogEntry
func (m *EventLogEntryModel) ToDomain() *audit.EventLogEntry {
	return &audit.EventLogEntry{
		BaseEntity:      m.BaseModel.ToDomain(),
		TenantID:        m.TenantID,
		EventType:       audit.EventType(m.EventType),
		Severity:        audit.Severity(m.Severity),
		OccurredAt:      m.OccurredAt,
		Description:     m.Description,
		Details:         m.Details,
		RelatedRecordID: m.RelatedRecordID,
		ActorID:         m.ActorID,
		IPAddress:       m.IPAddress,
		HashEvent:       m.HashEvent,
		HashPrevious:    m.HashPrevious,
	}
}

// FromDomain populates the model from a domain EventLogEntry
func (m *EventLogEntryModel) FromDomain(e *audit.EventLogEntry) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.TenantID = e.TenantID
	m.EventType = string(e.EventType)
	m.Severity = string(e.Severity)
	m.OccurredAt = e.OccurredAt
	m.Description = e.Description
	m.Details = e.Details
	m.RelatedRecordID = e.RelatedRecordID
	m.ActorID = e.ActorID
	m.IPAddress = e.IPAddress
	m.HashEvent = e.HashEvent
	m.HashPrevious = e.HashPrevious
}
