package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verifactu/backend/internal/domain/audit"
	"github.com/verifactu/backend/internal/domain/shared"
)

// EventLogService appends entries to the per-tenant audit chain and exposes
// read access to it. Appends are serialized per tenant in-process so the
// chain head read and the insert stay consistent.
type EventLogService struct {
	repo   audit.EventLogRepository
	logger *zap.Logger

	mu      sync.Mutex
	tenants map[uuid.UUID]*sync.Mutex
}

// NewEventLogService creates a new EventLogService
func NewEventLogService(repo audit.EventLogRepository, logger *zap.Logger) *EventLogService {
	return &EventLogService{
		repo:    repo,
		logger:  logger,
		tenants: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *EventLogService) tenantMutex(tenantID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tenants[tenantID]
	if !ok {
		m = &sync.Mutex{}
		s.tenants[tenantID] = m
	}
	return m
}

// Log appends one chained audit entry for the tenant, optionally linked to a
// ledger record. A "description" string in details is lifted into the entry's
// description column; the client address travels in from the request context.
func (s *EventLogService) Log(ctx context.Context, tenantID uuid.UUID, relatedRecordID *uuid.UUID, eventType audit.EventType, severity audit.Severity, details audit.Details) (*audit.EventLogEntry, error) {
	m := s.tenantMutex(tenantID)
	m.Lock()
	defer m.Unlock()

	var previous *string
	latest, err := s.repo.FindLatest(ctx, tenantID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if latest != nil {
		previous = &latest.HashEvent
	}

	description := ""
	if d, ok := details["description"].(string); ok {
		description = d
	}

	entry, err := audit.NewEventLogEntry(audit.NewEntryParams{
		TenantID:        tenantID,
		EventType:       eventType,
		Severity:        severity,
		Description:     description,
		RelatedRecordID: relatedRecordID,
		IPAddress:       audit.ClientIPFromContext(ctx),
		Details:         details,
	}, previous)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Record appends an audit entry without failing the caller. Audit problems
// are logged and swallowed so business operations do not roll back on them.
func (s *EventLogService) Record(ctx context.Context, tenantID uuid.UUID, eventType audit.EventType, severity audit.Severity, details audit.Details) {
	if _, err := s.Log(ctx, tenantID, nil, eventType, severity, details); err != nil {
		s.logger.Warn("audit event not recorded",
			zap.String("tenant_id", tenantID.String()),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

// RecordFor is Record with the originating ledger record attached
func (s *EventLogService) RecordFor(ctx context.Context, tenantID, recordID uuid.UUID, eventType audit.EventType, severity audit.Severity, details audit.Details) {
	if _, err := s.Log(ctx, tenantID, &recordID, eventType, severity, details); err != nil {
		s.logger.Warn("audit event not recorded",
			zap.String("tenant_id", tenantID.String()),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

// EventListFilter defines filtering options for audit log queries
type EventListFilter struct {
	EventType string `form:"event_type"`
	Severity  string `form:"severity"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// List returns a page of the tenant's audit trail, newest first
func (s *EventLogService) List(ctx context.Context, tenantID uuid.UUID, filter EventListFilter) (*shared.Paginated[*audit.EventLogEntry], error) {
	f := shared.DefaultFilter()
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}
	f.OrderBy = "occurred_at"
	f.OrderDir = "desc"
	if filter.EventType != "" {
		f.Filters["event_type"] = filter.EventType
	}
	if filter.Severity != "" {
		f.Filters["severity"] = filter.Severity
	}
	return s.repo.FindByTenant(ctx, tenantID, f)
}

// ChainVerification is the outcome of an audit chain walk
type ChainVerification struct {
	Valid        bool  `json:"valid"`
	TotalEntries int   `json:"total_entries"`
	BreakIndex   int   `json:"break_index"`
	ElapsedMs    int64 `json:"elapsed_ms"`
}

// VerifyChain recomputes the tenant's full audit chain
func (s *EventLogService) VerifyChain(ctx context.Context, tenantID uuid.UUID) (*ChainVerification, error) {
	started := time.Now()
	entries, err := s.repo.FindAllInChainOrder(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	breakIndex := audit.VerifyEntries(entries)
	return &ChainVerification{
		Valid:        breakIndex < 0,
		TotalEntries: len(entries),
		BreakIndex:   breakIndex,
		ElapsedMs:    time.Since(started).Milliseconds(),
	}, nil
}
