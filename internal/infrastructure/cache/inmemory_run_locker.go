package cache

import (
	"context"
	"sync"
	"time"

	"github.com/beautyops/backend/internal/domain/integration"
)

// heldLock is one channel lock with expiration
type heldLock struct {
	token     uint64
	expiresAt time.Time
}

// InMemoryRunLocker implements integration.RunLocker with a map.
// It only serializes runs inside one process.
type InMemoryRunLocker struct {
	mu    sync.Mutex
	locks map[integration.ChannelCode]heldLock
	next  uint64
	now   func() time.Time
}

// NewInMemoryRunLocker creates a new in-memory run locker
func NewInMemoryRunLocker() *InMemoryRunLocker {
	return &InMemoryRunLocker{
		locks: make(map[integration.ChannelCode]heldLock),
		now:   time.Now,
	}
}

// Acquire takes the channel lock. An expired lock is taken over.
func (l *InMemoryRunLocker) Acquire(ctx context.Context, channel integration.ChannelCode, ttl time.Duration) (integration.RunLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.locks[channel]; ok && now.Before(held.expiresAt) {
		return nil, integration.ErrSyncInProgress
	}

	l.next++
	l.locks[channel] = heldLock{token: l.next, expiresAt: now.Add(ttl)}
	return &inMemoryRunLease{locker: l, channel: channel, token: l.next}, nil
}

type inMemoryRunLease struct {
	locker  *InMemoryRunLocker
	channel integration.ChannelCode
	token   uint64
}

// Extend moves the expiry forward unless the lease already lapsed
func (l *inMemoryRunLease) Extend(ctx context.Context, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	now := l.locker.now()
	held, ok := l.locker.locks[l.channel]
	if !ok || held.token != l.token || !now.Before(held.expiresAt) {
		return ErrLockNotHeld
	}
	held.expiresAt = now.Add(ttl)
	l.locker.locks[l.channel] = held
	return nil
}

func (l *inMemoryRunLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	held, ok := l.locker.locks[l.channel]
	if !ok || held.token != l.token {
		return ErrLockNotHeld
	}
	delete(l.locker.locks, l.channel)
	return nil
}

// Held reports whether channel is currently locked
func (l *InMemoryRunLocker) Held(channel integration.ChannelCode) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.locks[channel]
	return ok && l.now().Before(held.expiresAt)
}

// Ensure InMemoryRunLocker implements RunLocker
var _ integration.RunLocker = (*InMemoryRunLocker)(nil)
