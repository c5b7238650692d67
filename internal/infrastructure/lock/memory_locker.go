package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/verifactu/backend/internal/domain/shared"
)

// MemoryTenantLocker implements shared.TenantLocker with in-process mutexes.
// It is suitable for single-instance deployments and tests; distributed
// deployments need RedisTenantLocker.
type MemoryTenantLocker struct {
	mu          sync.Mutex
	locks       map[uuid.UUID]chan struct{}
	waitTimeout time.Duration
}

// NewMemoryTenantLocker creates a new MemoryTenantLocker
func NewMemoryTenantLocker(waitTimeout time.Duration) *MemoryTenantLocker {
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	return &MemoryTenantLocker{
		locks:       make(map[uuid.UUID]chan struct{}),
		waitTimeout: waitTimeout,
	}
}

func (l *MemoryTenantLocker) lockChan(tenantID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[tenantID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[tenantID] = ch
	}
	return ch
}

// WithTenantLock runs fn while holding the tenant's chain lock
func (l *MemoryTenantLocker) WithTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	ch := l.lockChan(tenantID)

	timer := time.NewTimer(l.waitTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-timer.C:
		return shared.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()

	return fn(ctx)
}

// Ensure MemoryTenantLocker implements TenantLocker
var _ shared.TenantLocker = (*MemoryTenantLocker)(nil)
