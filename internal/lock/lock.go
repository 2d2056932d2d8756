// Package lock provides the cluster-wide locks that keep the sync jobs
// single-flight: one lock per job name, held for at most the job's lock
// limit. A node that cannot acquire the lock skips that tick.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock not acquired")

// Lease is a held lock. Release is idempotent and only releases the lease
// that acquired it; a lease that expired and was re-acquired elsewhere is
// not released by the old holder.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker acquires named locks with a time limit. maxHold is both the lease
// TTL and the upper bound on how long the job may run under the lock.
type Locker interface {
	Acquire(ctx context.Context, name string, maxHold time.Duration) (Lease, error)
}

// MemoryLocker is the single-instance locker for the in-memory profile.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]time.Time)}
}

func (l *MemoryLocker) Acquire(_ context.Context, name string, maxHold time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if exp, ok := l.leases[name]; ok && exp.After(time.Now()) {
		return nil, ErrNotAcquired
	}

	expiry := time.Now().Add(maxHold)
	l.leases[name] = expiry
	return &memoryLease{locker: l, name: name, expiry: expiry}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	name   string
	expiry time.Time
}

func (m *memoryLease) Release(_ context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	// only release our own lease; an expired lease may have been re-acquired
	if exp, ok := m.locker.leases[m.name]; ok && exp.Equal(m.expiry) {
		delete(m.locker.leases, m.name)
	}
	return nil
}
