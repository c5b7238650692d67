package remision

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline protection constants. Flow control is the minimum spacing AEAT
// imposes between submissions; the breaker opens after consecutive
// transport failures and holds the pipeline closed for the pause duration.
const (
	FlowControlInterval = 60 * time.Second
	BreakerThreshold    = 5
	BreakerPause        = 300 * time.Second
)

// PipelineState is the single shared row guarding the submission pipeline.
// Updates race across workers, so writers persist it with an optimistic
// compare-and-swap on Version.
type PipelineState struct {
	ID                  uuid.UUID
	LastSubmitAt        *time.Time
	ConsecutiveFailures int
	PausedUntil         *time.Time
	Version             int
	UpdatedAt           time.Time
}

// NewPipelineState creates a closed-breaker, unthrottled pipeline state
func NewPipelineState() *PipelineState {
	return &PipelineState{
		ID:        uuid.New(),
		UpdatedAt: time.Now(),
	}
}

// CanSubmit reports whether a submission may start now given the configured
// flow-control spacing, and if not, how long to wait. The breaker pause
// dominates flow control.
func (s *PipelineState) CanSubmit(now time.Time, interval time.Duration) (bool, time.Duration) {
	if s.PausedUntil != nil && now.Before(*s.PausedUntil) {
		return false, s.PausedUntil.Sub(now)
	}
	if s.LastSubmitAt != nil {
		elapsed := now.Sub(*s.LastSubmitAt)
		if elapsed < interval {
			return false, interval - elapsed
		}
	}
	return true, 0
}

// BreakerOpen reports whether the circuit breaker currently blocks submissions
func (s *PipelineState) BreakerOpen(now time.Time) bool {
	return s.PausedUntil != nil && now.Before(*s.PausedUntil)
}

// RecordSubmission stamps the start of a submission for flow control
func (s *PipelineState) RecordSubmission(now time.Time) {
	s.LastSubmitAt = &now
	s.UpdatedAt = now
}

// RecordSuccess closes the breaker and clears the failure streak
func (s *PipelineState) RecordSuccess(now time.Time) {
	s.ConsecutiveFailures = 0
	s.PausedUntil = nil
	s.UpdatedAt = now
}

// RecordFailure counts a transport failure and opens the breaker once the
// streak reaches the threshold. Returns true when this failure opened it.
func (s *PipelineState) RecordFailure(now time.Time) bool {
	s.ConsecutiveFailures++
	s.UpdatedAt = now
	if s.ConsecutiveFailures >= BreakerThreshold {
		until := now.Add(BreakerPause)
		s.PausedUntil = &until
		return s.ConsecutiveFailures == BreakerThreshold
	}
	return false
}
