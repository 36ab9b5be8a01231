package condmutex

import (
	"context"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
)

var defaultLogger = log.Default.WithNames("condmutex")

// Mutex serializes tasks over a single Cond. Lock is the safe entry point: the lock is released on
// every path out of the closure, including panics. Acquire and Release are for callers that need
// to hold the lock across several operations.
//
// Nested acquisition by the task that already holds the lock deadlocks. The zero value is an
// unlocked Mutex.
type Mutex struct {
	cond Cond
	// Run on Release, before the lock is given up. Only touched with the lock held.
	unlockActions []func()
}

// Option configures a Mutex in New.
type Option func(*Mutex)

// WithLogger sets the logger used for contention and cancellation messages.
func WithLogger(logger log.Logger) Option {
	return func(m *Mutex) {
		m.cond.logger = g.Some(logger)
	}
}

// WithName tags log messages with name, in addition to the package name.
func WithName(name string) Option {
	return func(m *Mutex) {
		m.cond.logger = g.Some(m.cond.log().WithNames(name))
	}
}

// New returns an unlocked Mutex configured by opts.
func New(opts ...Option) *Mutex {
	m := &Mutex{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Locked reports whether a task holds the lock. It reads false while the holder is suspended in
// Cond.Wait.
func (m *Mutex) Locked() bool {
	return m.cond.Held()
}

// Cond returns the condition variable owned by m.
func (m *Mutex) Cond() *Cond {
	return &m.cond
}

// Acquire suspends until the lock is held by the caller, or ctx is done.
func (m *Mutex) Acquire(ctx context.Context) error {
	return m.cond.LockAcquire(ctx)
}

// TryAcquire takes the lock only if it's free and nobody is queued for it.
func (m *Mutex) TryAcquire() bool {
	return m.cond.tryAcquire()
}

// Release runs deferred actions and then gives up the lock. The caller must hold it. The lock is
// given up even if an action panics, in which case the remaining actions are dropped and the panic
// continues.
func (m *Mutex) Release() {
	unlockActions := m.unlockActions
	m.unlockActions = nil
	defer m.cond.LockRelease()
	for i := 0; i < len(unlockActions); i += 1 {
		unlockActions[i]()
	}
}

// Defer queues action to run at the next Release. Suspending in Cond.Wait doesn't run them. The
// caller must hold the lock.
func (m *Mutex) Defer(action func()) {
	m.cond.mustHold("defer")
	m.unlockActions = append(m.unlockActions, action)
}

// Lock runs f with the lock held and the Cond available for Wait and Signal. The lock is released
// exactly once before Lock returns f's error or re-panics f's panic. If the lock can't be acquired
// before ctx is done, f isn't run and the context error is returned.
func (m *Mutex) Lock(ctx context.Context, f func(*Cond) error) error {
	_, err := LockValue(ctx, m, func(c *Cond) (struct{}, error) {
		return struct{}{}, f(c)
	})
	return err
}

// LockValue is Lock for closures that produce a value.
func LockValue[T any](ctx context.Context, m *Mutex, f func(*Cond) (T, error)) (ret T, err error) {
	err = m.Acquire(ctx)
	if err != nil {
		return
	}
	defer m.Release()
	return f(&m.cond)
}

// Stats returns a snapshot of m's counters.
func (m *Mutex) Stats() Stats {
	return m.cond.stats.Copy()
}
