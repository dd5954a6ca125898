// Package locker serialises work on one tenant's queue across processes.
package locker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock held by another worker")

// Locker hands out exclusive, expiring locks keyed by name.
type Locker interface {
	// Acquire waits up to the locker's wait time for key. The returned func
	// releases the lock.
	Acquire(ctx context.Context, key string) (func(), error)
}

// TenantKey is the lock name for a tenant's queue.
func TenantKey(tenantKey string) string {
	return "reshare:lock:queue:" + tenantKey
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, wait: wait, poll: 50 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// the caller's context may already be cancelled
				releaseScript.Run(context.Background(), l.client, []string{key}, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockHeld
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

// MemoryLocker is a single-process Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
	wait time.Duration
}

func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{}), wait: wait}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	deadline := time.Now().Add(l.wait)
	for {
		l.mu.Lock()
		if _, busy := l.held[key]; !busy {
			l.held[key] = struct{}{}
			l.mu.Unlock()
			return func() {
				l.mu.Lock()
				delete(l.held, key)
				l.mu.Unlock()
			}, nil
		}
		l.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
