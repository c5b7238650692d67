package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/verifactu/backend/internal/domain/shared"
)

// releaseScript deletes the lock key only when it still holds our token, so
// an expired lease never releases a lock acquired by someone else.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Config holds lock acquisition settings
type Config struct {
	WaitTimeout   time.Duration
	LeaseTTL      time.Duration
	RetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 30 * time.Second
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 60 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	return c
}

// RedisTenantLocker implements shared.TenantLocker with a Redis SET NX lease.
// It is suitable for distributed deployments where multiple instances append
// to the same tenant chain.
type RedisTenantLocker struct {
	client    *redis.Client
	keyPrefix string
	config    Config
}

// NewRedisTenantLocker creates a new RedisTenantLocker
func NewRedisTenantLocker(client *redis.Client, config Config) *RedisTenantLocker {
	return &RedisTenantLocker{
		client:    client,
		keyPrefix: "ledger:tenant-lock:",
		config:    config.withDefaults(),
	}
}

// WithTenantLock runs fn while holding the tenant's chain lock. Acquisition
// waits up to WaitTimeout and then returns shared.ErrLockTimeout.
func (l *RedisTenantLocker) WithTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	key := l.keyPrefix + tenantID.String()
	token := uuid.NewString()

	acquired, err := l.acquire(ctx, key, token)
	if err != nil {
		return err
	}
	if !acquired {
		return shared.ErrLockTimeout
	}
	defer l.release(key, token)

	return fn(ctx)
}

func (l *RedisTenantLocker) acquire(ctx context.Context, key, token string) (bool, error) {
	deadline := time.Now().Add(l.config.WaitTimeout)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.config.LeaseTTL).Result()
		if err != nil {
			return false, fmt.Errorf("failed to acquire tenant lock: %w", err)
		}
		if ok {
			return true, nil
		}
		if time.Now().Add(l.config.RetryInterval).After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.config.RetryInterval):
		}
	}
}

func (l *RedisTenantLocker) release(key, token string) {
	// Release runs on a fresh context so a cancelled request still frees
	// the lock.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = l.client.Eval(ctx, releaseScript, []string{key}, token).Err()
}

// Ensure RedisTenantLocker implements TenantLocker
var _ shared.TenantLocker = (*RedisTenantLocker)(nil)
