package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/remision"
)

// RemisionBatchModel is the persistence model for remission batches
type RemisionBatchModel struct {
	TenantModel
	Status        string                  `gorm:"type:varchar(16);not null;index"`
	RecordIDs     remision.RecordIDList   `gorm:"type:jsonb"`
	AttemptCount  int                     `gorm:"not null;default:0"`
	AcceptedCount int                     `gorm:"not null;default:0"`
	RejectedCount int                     `gorm:"not null;default:0"`
	AeatCSV       *string                 `gorm:"type:varchar(64)"`
	LastError     *string                 `gorm:"type:text"`
	SubmittedAt   *time.Time
	CompletedAt   *time.Time
}

// TableName returns the table name for GORM
func (RemisionBatchModel) TableName() string {
	return "remision_batches"
}

// ToDomain converts the model to a domain RemisionBatch
func (m *RemisionBatchModel) ToDomain() *remision.RemisionBatch {
	return &remision.RemisionBatch{
		TenantEntity:  m.TenantModel.ToDomain(),
		Status:        remision.BatchStatus(m.Status),
		RecordIDs:     m.RecordIDs,
		AttemptCount:  m.AttemptCount,
		AcceptedCount: m.AcceptedCount,
		RejectedCount: m.RejectedCount,
		AeatCSV:       m.AeatCSV,
		LastError:     m.LastError,
		SubmittedAt:   m.SubmittedAt,
		CompletedAt:   m.CompletedAt,
	}
}

// FromDomain populates the model from a domain RemisionBatch
func (m *RemisionBatchModel) FromDomain(b *remision.RemisionBatch) {
	m.FromDomainTenantEntity(b.TenantEntity)
	m.Status = string(b.Status)
	m.RecordIDs = b.RecordIDs
	m.AttemptCount = b.AttemptCount
	m.AcceptedCount = b.AcceptedCount
	m.RejectedCount = b.RejectedCount
	m.AeatCSV = b.AeatCSV
	m.LastError = b.LastError
	m.SubmittedAt = b.SubmittedAt
	m.CompletedAt = b.CompletedAt
}

// PipelineStateModel is the persistence model for the shared submission
// pipeline state. The table holds a single row guarded by an optimistic
// version column.
type PipelineStateModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key"`
	LastSubmitAt        *time.Time
	ConsecutiveFailures int        `gorm:"not null;default:0"`
	PausedUntil         *time.Time
	Version             int       `gorm:"not null;default:1"`
	UpdatedAt           time.Time
}

// TableName returns the table name for GORM
func (PipelineStateModel) TableName() string {
	return "pipeline_states"
}

// ToDomain converts the model to a domain PipelineState
func (m *PipelineStateModel) ToDomain() *remision.PipelineState {
	return &remision.PipelineState{
		ID:                  m.ID,
		LastSubmitAt:        m.LastSubmitAt,
		ConsecutiveFailures: m.ConsecutiveFailures,
		PausedUntil:         m.PausedUntil,
		Version:             m.Version,
		UpdatedAt:           m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain PipelineState
func (m *PipelineStateModel) FromDomain(s *remision.PipelineState) {
	m.ID = s.ID
	m.LastSubmitAt = s.LastSubmitAt
	m.ConsecutiveFailures = s.ConsecutiveFailures
	m.PausedUntil = s.PausedUntil
	m.Version = s.Version
	m.UpdatedAt = s.UpdatedAt
}
