package lock

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Unlock releases a lock obtained from a Locker. It is safe to call once.
type Unlock func()

// Locker serialises work on a key across goroutines, and for RedisLocker
// across processes. Waiting is bounded; when the bound is hit the call fails
// with ErrLockFailed.
type Locker interface {
	Lock(ctx context.Context, key, owner string) (Unlock, error)
}

// RedisLocker hands out DistributedLocks.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (r *RedisLocker) Lock(ctx context.Context, key, owner string) (Unlock, error) {
	l := NewDistributedLock(r.client, key, owner, r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		// The caller's context may already be done; releasing must still happen.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.Unlock(unlockCtx); err != nil {
			log.Printf("[Lock] release failed: key=%s, owner=%s, err=%v", key, owner, err)
		}
	}, nil
}

// LocalLocker is an in-process Locker for single-instance deployments and
// tests. Each key is a one-slot semaphore that is dropped once nobody holds
// or waits for it.
type LocalLocker struct {
	mu      sync.Mutex
	keys    map[string]*localKey
	maxWait time.Duration
}

type localKey struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker(maxWait time.Duration) *LocalLocker {
	return &LocalLocker{
		keys:    make(map[string]*localKey),
		maxWait: maxWait,
	}
}

func (l *LocalLocker) Lock(ctx context.Context, key, _ string) (Unlock, error) {
	k := l.acquireRef(key)

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case k.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(key, k)
		return nil, ctx.Err()
	case <-timer.C:
		l.releaseRef(key, k)
		return nil, ErrLockFailed
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.sem
			l.releaseRef(key, k)
		})
	}, nil
}

func (l *LocalLocker) acquireRef(key string) *localKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.keys[key]
	if !ok {
		k = &localKey{sem: make(chan struct{}, 1)}
		l.keys[key] = k
	}
	k.refs++
	return k
}

func (l *LocalLocker) releaseRef(key string, k *localKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.keys, key)
	}
}
