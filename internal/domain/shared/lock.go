package shared

import (
	"context"

	"github.com/google/uuid"
)

// TenantLocker serializes chain mutations for a tenant. Acquisition waits up
// to the implementation's bound and returns ErrLockTimeout when the bound is
// exceeded; fn runs only while the lock is held.
type TenantLocker interface {
	WithTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error
}
