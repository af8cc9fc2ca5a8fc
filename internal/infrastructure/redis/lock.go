package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a single SET NX lease on a key, owned through a random token.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	token    string
	ttl      time.Duration
	acquired bool
}

// NewDistributedLock creates a new distributed lock
func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lease without waiting.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domainErrors.ErrLockAcquisitionFailed, err)
	}
	l.acquired = ok
	return ok, nil
}

// Extend pushes the lease deadline out by ttl.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return domainErrors.ErrLockNotHeld
	}
	res, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if res == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// Release drops the lease if this lock still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	res, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.acquired = false
	if res == 0 {
		// The lease expired and may belong to someone else by now.
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// Locker hands out DistributedLocks.
type Locker struct {
	client redis.Cmdable
}

// NewLocker creates a new Locker.
func NewLocker(client redis.Cmdable) *Locker {
	return &Locker{client: client}
}

// TryLock takes the lease on key if it is free. When acquired is false the
// returned lock is nil.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, bool, error) {
	lock := NewDistributedLock(l.client, key, ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return lock, true, nil
}
