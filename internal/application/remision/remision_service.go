package remision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	auditapp "github.com/verifactu/backend/internal/application/audit"
	auditdom "github.com/verifactu/backend/internal/domain/audit"
	"github.com/verifactu/backend/internal/domain/ledger"
	"github.com/verifactu/backend/internal/domain/remision"
	"github.com/verifactu/backend/internal/domain/shared"
)

// Submitter sends a set of ledger records to AEAT and parses the response.
// A non-nil error means a transport-level failure where no record was
// resolved; per-record rejections come back inside the response.
type Submitter interface {
	Submit(ctx context.Context, env ledger.Environment, records []*ledger.LedgerRecord) (*remision.AeatResponse, error)
}

// PipelineConfig tunes the submission pipeline. MaxRetries counts additional
// attempts after the first one.
type PipelineConfig struct {
	MaxRetries          int
	RetryBackoffBase    time.Duration
	MaxRecordsPerBatch  int
	FlowControlInterval time.Duration
}

// DefaultPipelineConfig returns the pipeline tuning mandated for VeriFactu
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxRetries:          5,
		RetryBackoffBase:    30 * time.Second,
		MaxRecordsPerBatch:  1000,
		FlowControlInterval: remision.FlowControlInterval,
	}
}

// Sleeper blocks for d or until ctx is done. Injected so backoff waits are
// testable without real time.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RemisionService drives the AEAT submission pipeline: it groups pending
// records into batches and pushes them through flow control, retries and the
// circuit breaker.
type RemisionService struct {
	batches  remision.RemisionBatchRepository
	records  ledger.LedgerRecordRepository
	states   ledger.TenantLedgerStateRepository
	pipeline remision.PipelineStateRepository
	aeat     Submitter
	events   *auditapp.EventLogService
	logger   *zap.Logger
	config   PipelineConfig
	clock    func() time.Time
	sleep    Sleeper

	queue chan queuedBatch
}

type queuedBatch struct {
	tenantID uuid.UUID
	batchID  uuid.UUID
}

// NewRemisionService creates a new RemisionService
func NewRemisionService(
	batches remision.RemisionBatchRepository,
	records ledger.LedgerRecordRepository,
	states ledger.TenantLedgerStateRepository,
	pipeline remision.PipelineStateRepository,
	aeat Submitter,
	events *auditapp.EventLogService,
	logger *zap.Logger,
	config PipelineConfig,
) *RemisionService {
	return &RemisionService{
		batches:  batches,
		records:  records,
		states:   states,
		pipeline: pipeline,
		aeat:     aeat,
		events:   events,
		logger:   logger,
		config:   config,
		clock:    time.Now,
		sleep:    defaultSleeper,
		queue:    make(chan queuedBatch, 256),
	}
}

// WithClock replaces the wall clock, for tests
func (s *RemisionService) WithClock(clock func() time.Time) *RemisionService {
	s.clock = clock
	return s
}

// WithSleeper replaces the blocking wait, for tests
func (s *RemisionService) WithSleeper(sleep Sleeper) *RemisionService {
	s.sleep = sleep
	return s
}

// BatchResponse represents a submission batch in API responses
type BatchResponse struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Status        string     `json:"status"`
	RecordCount   int        `json:"record_count"`
	AttemptCount  int        `json:"attempt_count"`
	AcceptedCount int        `json:"accepted_count"`
	RejectedCount int        `json:"rejected_count"`
	AeatCSV       *string    `json:"aeat_csv,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toBatchResponse(b *remision.RemisionBatch) *BatchResponse {
	return &BatchResponse{
		ID:            b.ID,
		TenantID:      b.TenantID,
		Status:        string(b.Status),
		RecordCount:   b.RecordCount(),
		AttemptCount:  b.AttemptCount,
		AcceptedCount: b.AcceptedCount,
		RejectedCount: b.RejectedCount,
		AeatCSV:       b.AeatCSV,
		LastError:     b.LastError,
		SubmittedAt:   b.SubmittedAt,
		CompletedAt:   b.CompletedAt,
		CreatedAt:     b.CreatedAt,
	}
}

// QueueProcessResult reports one queue-processing pass
type QueueProcessResult struct {
	BatchesCreated int              `json:"batches_created"`
	Batches        []*BatchResponse `json:"batches"`
}

// ProcessQueue chunks every unassigned pending record of the tenant into
// queued batches of at most MaxRecordsPerBatch and schedules each one for
// background submission.
func (s *RemisionService) ProcessQueue(ctx context.Context, tenantID uuid.UUID) (*QueueProcessResult, error) {
	result := &QueueProcessResult{Batches: []*BatchResponse{}}
	for {
		pending, err := s.records.FindPending(ctx, tenantID, s.config.MaxRecordsPerBatch)
		if err != nil {
			return nil, err
		}
		if len(pending) == 0 {
			return result, nil
		}
		batch, err := s.createBatch(ctx, tenantID, pending)
		if err != nil {
			return nil, err
		}
		result.BatchesCreated++
		result.Batches = append(result.Batches, toBatchResponse(batch))
		s.Enqueue(tenantID, batch.ID)
	}
}

func (s *RemisionService) createBatch(ctx context.Context, tenantID uuid.UUID, pending []*ledger.LedgerRecord) (*remision.RemisionBatch, error) {
	ids := make([]uuid.UUID, 0, len(pending))
	for _, r := range pending {
		ids = append(ids, r.ID)
	}
	batch, err := remision.NewRemisionBatch(tenantID, ids)
	if err != nil {
		return nil, err
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}
	for _, r := range pending {
		r.AssignBatch(batch.ID)
		if err := s.records.Update(ctx, r); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// Enqueue schedules a batch for background submission. Drops the request
// when the queue is full; the batch stays retriable and a later
// ProcessQueue pass picks it up.
func (s *RemisionService) Enqueue(tenantID, batchID uuid.UUID) {
	select {
	case s.queue <- queuedBatch{tenantID: tenantID, batchID: batchID}:
	default:
		s.logger.Warn("submission queue full, batch left for next sweep",
			zap.String("batch_id", batchID.String()))
	}
}

// Run consumes the background submission queue until ctx is cancelled
func (s *RemisionService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.queue:
			if _, err := s.SubmitBatch(ctx, item.tenantID, item.batchID); err != nil {
				s.logger.Error("batch submission failed",
					zap.String("tenant_id", item.tenantID.String()),
					zap.String("batch_id", item.batchID.String()),
					zap.Error(err))
			}
		}
	}
}

// SubmitBatch pushes one batch through the pipeline. The circuit breaker and
// flow control are checked up front and reject without touching the batch;
// once sending starts, the transport is retried with exponential backoff and
// an exhausted submission counts as one failure toward the breaker.
func (s *RemisionService) SubmitBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*remision.RemisionResult, error) {
	batch, err := s.batches.FindByID(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.CanRetry() {
		return nil, fmt.Errorf("%w: batch is in status %s", shared.ErrInvalidState, batch.Status)
	}

	state, err := s.states.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	records, err := s.records.FindByBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}

	p, err := s.pipeline.Load(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if p.BreakerOpen(now) {
		return nil, shared.ErrCircuitBreakerOpen
	}
	if ok, wait := p.CanSubmit(now, s.config.FlowControlInterval); !ok {
		return nil, shared.NewFlowControlError(
			fmt.Sprintf("Flow control window active, next submission allowed in %s", wait.Round(time.Second)))
	}

	if err := batch.MarkSending(s.clock()); err != nil {
		return nil, err
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, err
	}

	s.events.Record(ctx, tenantID, auditdom.EventAeatSubmit, auditdom.SeverityInfo, auditdom.Details{
		"description": fmt.Sprintf("Submitting batch of %d records to AEAT", len(records)),
		"batch_id":    batchID.String(),
		"records":     len(records),
	})

	maxAttempts := s.config.MaxRetries + 1
	breakerOpened := false
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// another worker may have opened the breaker meanwhile
			if p, perr := s.pipeline.Load(ctx); perr == nil && p.BreakerOpen(s.clock()) {
				lastErr = shared.ErrCircuitBreakerOpen
				breakerOpened = true
				break
			}
		}

		if _, perr := s.updatePipeline(ctx, func(p *remision.PipelineState) {
			p.RecordSubmission(s.clock())
		}); perr != nil {
			s.logger.Warn("pipeline state not updated before attempt", zap.Error(perr))
		}

		resp, err := s.aeat.Submit(ctx, state.Environment, records)
		if err == nil {
			if _, perr := s.updatePipeline(ctx, func(p *remision.PipelineState) {
				p.RecordSuccess(s.clock())
			}); perr != nil {
				s.logger.Warn("pipeline state not updated after success", zap.Error(perr))
			}
			return s.resolve(ctx, batch, records, resp)
		}

		lastErr = err
		s.logger.Warn("submission attempt failed",
			zap.String("batch_id", batchID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < maxAttempts {
			backoff := s.config.RetryBackoffBase << (attempt - 1)
			if err := s.sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
		}
	}

	reason := "submission failed"
	if lastErr != nil {
		reason = lastErr.Error()
	}

	// the whole submission counts as one failure toward the breaker
	if !breakerOpened {
		opened := false
		if _, perr := s.updatePipeline(ctx, func(p *remision.PipelineState) {
			opened = p.RecordFailure(s.clock())
		}); perr != nil {
			s.logger.Warn("pipeline state not updated after failure", zap.Error(perr))
		}
		if opened {
			s.events.Record(ctx, tenantID, auditdom.EventCircuitBreakerOpen, auditdom.SeverityCritical, auditdom.Details{
				"description": "Circuit breaker opened after repeated failed submissions",
				"batch_id":    batchID.String(),
			})
		}
	}

	if err := s.failBatch(ctx, batch, reason); err != nil {
		return nil, err
	}
	s.events.Record(ctx, tenantID, auditdom.EventAeatResponse, auditdom.SeverityError, auditdom.Details{
		"description": "AEAT submission failed after exhausting retries",
		"batch_id":    batchID.String(),
		"error":       reason,
	})
	commErr := shared.NewCommunicationError(reason)
	return s.result(batch, commErr), commErr
}

// resolve applies the AEAT verdicts to the batch's records and closes the
// batch from the tally. Records AEAT did not answer for are accepted only
// when the whole submission came back Correcto; otherwise they drop out of
// the batch and stay pending for a later pass.
func (s *RemisionService) resolve(ctx context.Context, batch *remision.RemisionBatch, records []*ledger.LedgerRecord, resp *remision.AeatResponse) (*remision.RemisionResult, error) {
	accepted, rejected := 0, 0
	for _, record := range records {
		line, ok := resp.LineFor(record.InvoiceNumber)
		switch {
		case ok && line.Accepted():
			record.MarkAccepted(line.ErrorCode, line.ErrorMessage)
			accepted++
		case ok:
			record.MarkRejected(line.ErrorCode, line.ErrorMessage)
			rejected++
		case resp.Success():
			record.MarkAccepted("", "")
			accepted++
		default:
			record.ClearBatch()
		}
		if err := s.records.Update(ctx, record); err != nil {
			return nil, err
		}
	}

	if err := batch.MarkOutcome(accepted, rejected, resp.CSV, resp.FirstRejection(), s.clock()); err != nil {
		return nil, err
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, err
	}

	severity := auditdom.SeverityInfo
	if rejected > 0 {
		severity = auditdom.SeverityWarning
	}
	s.events.Record(ctx, batch.TenantID, auditdom.EventAeatResponse, severity, auditdom.Details{
		"description": fmt.Sprintf("AEAT resolved batch as %s", batch.Status),
		"batch_id":    batch.ID.String(),
		"status":      string(batch.Status),
		"accepted":    accepted,
		"rejected":    rejected,
		"csv":         resp.CSV,
	})

	return s.result(batch, nil), nil
}

func (s *RemisionService) failBatch(ctx context.Context, batch *remision.RemisionBatch, reason string) error {
	if err := batch.MarkFailed(reason, s.clock()); err != nil {
		return err
	}
	return s.batches.Update(ctx, batch)
}

func (s *RemisionService) result(batch *remision.RemisionBatch, err error) *remision.RemisionResult {
	result := &remision.RemisionResult{
		BatchID:       batch.ID,
		Status:        batch.Status,
		Attempts:      batch.AttemptCount,
		AcceptedCount: batch.AcceptedCount,
		RejectedCount: batch.RejectedCount,
	}
	if batch.AeatCSV != nil {
		result.CSV = *batch.AeatCSV
	}
	if err != nil {
		result.LastError = err.Error()
	}
	return result
}

// updatePipeline applies mutate to the shared pipeline row with an
// optimistic compare-and-swap, reloading on conflict.
func (s *RemisionService) updatePipeline(ctx context.Context, mutate func(*remision.PipelineState)) (*remision.PipelineState, error) {
	const casAttempts = 5
	for i := 0; i < casAttempts; i++ {
		p, err := s.pipeline.Load(ctx)
		if err != nil {
			return nil, err
		}
		mutate(p)
		err = s.pipeline.Save(ctx, p)
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, shared.ErrConcurrencyConflict
}

// drainRetriable submits the tenant's retriable batches in order, stopping
// as soon as the breaker or flow control rejects. Rejected batches stay
// queued for the next sweep.
func (s *RemisionService) drainRetriable(ctx context.Context, tenantID uuid.UUID) error {
	batches, err := s.batches.FindRetriable(ctx, tenantID, 50)
	if err != nil {
		return err
	}
	for _, batch := range batches {
		if _, err := s.SubmitBatch(ctx, tenantID, batch.ID); err != nil {
			var domainErr *shared.DomainError
			if errors.As(err, &domainErr) &&
				(domainErr.Code == shared.CodeCircuitBreakerOpen || domainErr.Code == shared.CodeFlowControl) {
				return nil
			}
			s.logger.Warn("batch submission failed during drain",
				zap.String("tenant_id", tenantID.String()),
				zap.String("batch_id", batch.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// Sweep drains the retriable queue of every tenant that has one. Flow
// control and the circuit breaker still gate each submission, so a sweep
// during a breaker pause is a cheap no-op.
func (s *RemisionService) Sweep(ctx context.Context) error {
	tenantIDs, err := s.batches.ListTenantsWithRetriable(ctx, 100)
	if err != nil {
		return err
	}
	for _, tenantID := range tenantIDs {
		if err := s.drainRetriable(ctx, tenantID); err != nil {
			s.logger.Error("queue sweep failed for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// RetryBatch re-runs a failed or partially failed batch
func (s *RemisionService) RetryBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*remision.RemisionResult, error) {
	return s.SubmitBatch(ctx, tenantID, batchID)
}

// GetBatch returns one submission batch
func (s *RemisionService) GetBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*BatchResponse, error) {
	batch, err := s.batches.FindByID(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	return toBatchResponse(batch), nil
}

// BatchListFilter defines filtering options for batch list queries
type BatchListFilter struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ListBatches returns a page of the tenant's submission batches
func (s *RemisionService) ListBatches(ctx context.Context, tenantID uuid.UUID, filter BatchListFilter) (*shared.Paginated[*BatchResponse], error) {
	f := shared.DefaultFilter()
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}
	if filter.Status != "" {
		f.Filters["status"] = filter.Status
	}

	page, err := s.batches.FindByTenant(ctx, tenantID, f)
	if err != nil {
		return nil, err
	}
	items := make([]*BatchResponse, 0, len(page.Items))
	for _, b := range page.Items {
		items = append(items, toBatchResponse(b))
	}
	result := shared.NewPaginated(items, page.Total, page.Page, page.PageSize)
	return &result, nil
}

// QueueStatus snapshots the tenant's queue and the shared pipeline guards
func (s *RemisionService) QueueStatus(ctx context.Context, tenantID uuid.UUID) (*remision.QueueStatus, error) {
	counts, err := s.batches.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	pendingRecords, err := s.records.CountPending(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	p, err := s.pipeline.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	status := &remision.QueueStatus{
		Counts:         counts,
		PendingRecords: pendingRecords,
		BreakerOpen:    p.BreakerOpen(now),
	}
	if p.PausedUntil != nil && now.Before(*p.PausedUntil) {
		status.PausedUntilUTC = p.PausedUntil.UTC().Format(time.RFC3339)
	}
	if ok, wait := p.CanSubmit(now, s.config.FlowControlInterval); !ok {
		status.NextAllowedIn = wait.Round(time.Second).String()
	}
	return status, nil
}
