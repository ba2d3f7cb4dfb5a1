package luxdb

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mutex is a FIFO-fair, timeout-bounded exclusive lock.
//
// It guards all mutations of the in-memory table and all persistence
// operations of a [DB]. Waiters are granted the lock in strict arrival
// order. On [Mutex.Release], ownership transfers directly to the head
// waiter without the lock ever re-entering a free state, so a third
// party can never acquire between release and wake.
//
// Safe for concurrent use. The zero value is not usable; create with
// [NewMutex].
type Mutex struct {
	mu      sync.Mutex
	held    bool
	timeout time.Duration
	queue   []*waiter
}

// waiter is a queued acquirer. Exactly one value is ever sent on grant:
// nil transfers ownership, non-nil aborts the acquire.
type waiter struct {
	grant chan error
}

// NewMutex creates a Mutex with the given acquire timeout.
// A zero or negative timeout selects the default (5s).
func NewMutex(timeout time.Duration) *Mutex {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}

	return &Mutex{timeout: timeout}
}

// Acquire blocks until exclusive access is granted, the configured
// timeout elapses ([ErrLockTimeout]), ctx is canceled, or the lock is
// force-released ([ErrLockRevoked]).
//
// A free lock is granted immediately without suspending.
func (m *Mutex) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()

	if !m.held {
		m.held = true
		m.mu.Unlock()

		return nil
	}

	w := &waiter{grant: make(chan error, 1)}
	m.queue = append(m.queue, w)
	m.mu.Unlock()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case err := <-w.grant:
		return err
	case <-timer.C:
		return m.abandon(w, ErrLockTimeout)
	case <-ctx.Done():
		return m.abandon(w, fmt.Errorf("lock: %w", context.Cause(ctx)))
	}
}

// abandon removes w from the wait queue and returns reason.
// If a grant raced ahead of the removal, the grant wins: ownership was
// already transferred to w, so the acquire succeeds after all.
func (m *Mutex) abandon(w *waiter, reason error) error {
	m.mu.Lock()

	for i, queued := range m.queue {
		if queued == w {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.mu.Unlock()

			return reason
		}
	}

	m.mu.Unlock()

	// Not queued anymore: Release or ForceRelease already signaled us.
	err := <-w.grant
	if err != nil {
		return err
	}

	return nil
}

// Release hands the lock to the next queued waiter if any, otherwise
// marks it free. Releasing a free lock is a no-op.
func (m *Mutex) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) > 0 {
		// Direct handoff: held stays true for the new owner.
		next := m.queue[0]
		m.queue = m.queue[1:]
		next.grant <- nil

		return
	}

	m.held = false
}

// ForceRelease unconditionally clears the held flag and drops all
// waiters; every pending [Mutex.Acquire] fails with [ErrLockRevoked].
//
// Escape hatch for recovering a stuck lock. Never used during normal
// operation.
func (m *Mutex) ForceRelease() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.held = false

	for _, w := range m.queue {
		w.grant <- ErrLockRevoked
	}

	m.queue = nil
}

// IsLocked reports whether the lock is currently held. Never blocks.
// Observability only; the answer may be stale by the time it is read.
func (m *Mutex) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.held
}

// QueueDepth reports the number of pending acquirers. Never blocks.
// Observability only.
func (m *Mutex) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queue)
}
