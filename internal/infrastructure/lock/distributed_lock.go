package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis SET NX + Lua-verified delete. The lock value identifies the holder
// so an expired holder cannot release a lock someone else now owns.

var ErrLockFailed = errors.New("failed to acquire distributed lock")

// DistributedLock is a single-key Redis lock.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // holder identity, verified on release
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts to acquire the lock without blocking.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock acquires the lock, retrying up to maxRetries times.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock if this holder still owns it. The check-and-delete
// must be atomic, hence the Lua script.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewTopUpLock guards processing of a single top-up request so two admins
// cannot approve or reject it concurrently. The database status guard is
// the final arbiter; the lock keeps the window short.
func NewTopUpLock(client *redis.Client, requestID, holder string) *DistributedLock {
	key := fmt.Sprintf("topup:lock:request:%s", requestID)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}
