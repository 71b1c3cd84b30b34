// Package joblock provides a per-key lease used to keep duplicate issuance
// runs from starting for the same patient. The redis implementation is a
// plain SET NX PX lease shared across instances; the in-memory one covers
// single-process deployments and tests.
package joblock

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Lock is a lease: Acquire returns false while another holder has the key.
// Leases expire after their TTL so a crashed holder cannot block forever.
type Lock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// ---------------------------------------------------------------------------
// Redis implementation
// ---------------------------------------------------------------------------

// RedisLock implements Lock on a redis instance.
type RedisLock struct {
	client *redis.Client
	prefix string
}

// NewRedisLock wraps an existing redis client. Keys are namespaced with the
// given prefix.
func NewRedisLock(client *redis.Client, prefix string) *RedisLock {
	return &RedisLock{client: client, prefix: prefix}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, "1", ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// InMemoryLock implements Lock inside one process.
type InMemoryLock struct {
	mu     sync.Mutex
	leases map[string]time.Time
}

// NewInMemoryLock returns an empty InMemoryLock.
func NewInMemoryLock() *InMemoryLock {
	return &InMemoryLock{leases: make(map[string]time.Time)}
}

func (l *InMemoryLock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if deadline, ok := l.leases[key]; ok && deadline.After(now) {
		return false, nil
	}
	l.leases[key] = now.Add(ttl)
	return true, nil
}

func (l *InMemoryLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, key)
	return nil
}
