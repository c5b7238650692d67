package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verifactu/backend/internal/domain/shared"
)

func TestMemoryTenantLocker_SerializesPerTenant(t *testing.T) {
	locker := NewMemoryTenantLocker(time.Second)
	tenantID := uuid.New()
	ctx := context.Background()

	var mu sync.Mutex
	inSection := 0
	maxInSection := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
				mu.Lock()
				inSection++
				if inSection > maxInSection {
					maxInSection = inSection
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inSection--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInSection)
}

func TestMemoryTenantLocker_IndependentTenants(t *testing.T) {
	locker := NewMemoryTenantLocker(100 * time.Millisecond)
	ctx := context.Background()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.WithTenantLock(ctx, uuid.New(), func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	// a different tenant acquires immediately
	err := locker.WithTenantLock(ctx, uuid.New(), func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestMemoryTenantLocker_Timeout(t *testing.T) {
	locker := NewMemoryTenantLocker(50 * time.Millisecond)
	tenantID := uuid.New()
	ctx := context.Background()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := locker.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		t.Fatal("should not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, shared.ErrLockTimeout)
}

func TestMemoryTenantLocker_ContextCancellation(t *testing.T) {
	locker := NewMemoryTenantLocker(time.Minute)
	tenantID := uuid.New()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.WithTenantLock(context.Background(), tenantID, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := locker.WithTenantLock(ctx, tenantID, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
