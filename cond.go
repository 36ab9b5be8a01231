package condmutex

import (
	"context"

	"github.com/anacrolix/chansync"
	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"
	list "github.com/bahlo/generic-list-go"
	"github.com/pkg/errors"
)

// A suspended task. Woken by closing its channel, which happens at most once.
type waiter struct {
	woken chansync.SetOnce
	elem  *list.Element[*waiter]
}

// Cond is a lock paired with named-event wait queues. Tasks holding the lock may Wait on an event
// name and are resumed in FIFO order by Signal with the same name. Waiters on different names are
// independent.
//
// A Cond is owned by a Mutex and must not be copied.
type Cond struct {
	mu sync.Mutex // guards everything below

	held bool
	// Tasks blocked in LockAcquire. Release hands the lock to the front.
	lockers list.List[*waiter]
	events  map[string]*list.List[*waiter]

	logger g.Option[log.Logger]
	stats  Stats
}

func (c *Cond) log() log.Logger {
	if c.logger.Ok {
		return c.logger.Value
	}
	return defaultLogger
}

// Held reports whether some task currently holds the lock.
func (c *Cond) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// LockAcquire suspends the caller until the lock is free and takes it. Contending tasks are
// granted the lock in arrival order. If ctx is done first, the caller is removed from the queue and
// the context error is returned; the lock is not held in that case.
func (c *Cond) LockAcquire(ctx context.Context) error {
	w := c.queueForLock()
	if w == nil {
		return nil
	}
	select {
	case <-w.woken.Done():
		c.stats.Acquires.Add(1)
		return nil
	case <-ctx.Done():
		return c.abandonLock(ctx, w)
	}
}

// Takes the lock if it's free, otherwise returns the caller's place in the queue.
func (c *Cond) queueForLock() *waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tryAcquireLocked() {
		return nil
	}
	w := &waiter{}
	w.elem = c.lockers.PushBack(w)
	c.stats.Contended.Add(1)
	c.log().Levelf(log.Debug, "lock contended, %v queued", c.lockers.Len())
	return w
}

func (c *Cond) abandonLock(ctx context.Context, w *waiter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.woken.IsSet() {
		// Ownership was handed over as the context finished. Pass it on.
		c.releaseLocked()
	} else {
		c.lockers.Remove(w.elem)
	}
	c.stats.Cancelled.Add(1)
	c.log().Levelf(log.Debug, "lock acquire abandoned: %v", ctx.Err())
	return errors.Wrap(ctx.Err(), "acquiring lock")
}

func (c *Cond) tryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tryAcquireLocked()
}

func (c *Cond) tryAcquireLocked() bool {
	// Queued acquirers have priority, otherwise a releaser could barge past them.
	if c.held || c.lockers.Len() != 0 {
		return false
	}
	c.held = true
	c.stats.Acquires.Add(1)
	return true
}

// LockRelease gives up the lock. If tasks are queued in LockAcquire, the oldest becomes the owner
// without the lock ever appearing free. Releasing a lock that isn't held panics.
func (c *Cond) LockRelease() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

func (c *Cond) releaseLocked() {
	if !c.held {
		panic("condmutex: release of unlocked lock")
	}
	front := c.lockers.Front()
	if front == nil {
		c.held = false
		return
	}
	c.lockers.Remove(front)
	front.Value.woken.Set()
}

// Wait suspends the caller on the named event. The caller must hold the lock. The lock is given up
// while suspended so that other tasks can enter and Signal, and it's held again when Wait returns,
// whatever the outcome. Callers should re-check their predicate in a loop.
//
// If ctx is done before a Signal arrives, the waiter is dequeued and the context error returned. A
// Signal that races the cancellation is not lost: Wait returns nil.
func (c *Cond) Wait(ctx context.Context, name string) (err error) {
	w := c.suspend(name)
	select {
	case <-w.woken.Done():
	case <-ctx.Done():
		err = c.abandonWait(ctx, name, w)
	}
	// The caller entered holding the lock and will release it, so this mustn't be abandoned. A
	// background context never finishes, so there's no error to handle.
	_ = c.LockAcquire(context.Background())
	return
}

// Queues the caller on the named event and gives up the lock.
func (c *Cond) suspend(name string) *waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustHoldLocked("wait")
	g.MakeMapIfNil(&c.events)
	q := c.events[name]
	if q == nil {
		q = list.New[*waiter]()
		c.events[name] = q
	}
	w := &waiter{}
	w.elem = q.PushBack(w)
	c.stats.Waits.Add(1)
	c.releaseLocked()
	return w
}

// Dequeues a waiter whose context finished, unless a Signal got to it first.
func (c *Cond) abandonWait(ctx context.Context, name string, w *waiter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.woken.IsSet() {
		return nil
	}
	c.removeWaiterLocked(name, w)
	c.stats.Cancelled.Add(1)
	c.log().Levelf(log.Debug, "wait for %q abandoned: %v", name, ctx.Err())
	return errors.Wrapf(ctx.Err(), "waiting for %q", name)
}

func (c *Cond) removeWaiterLocked(name string, w *waiter) {
	q := c.events[name]
	q.Remove(w.elem)
	if q.Len() == 0 {
		delete(c.events, name)
	}
}

// Signal wakes the longest waiting task on the named event, if there is one. The caller must hold
// the lock.
func (c *Cond) Signal(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustHoldLocked("signal")
	c.stats.Signals.Add(1)
	q := c.events[name]
	if q == nil {
		return
	}
	c.wakeLocked(name, q.Front().Value)
}

// Broadcast wakes every task waiting on the named event. The caller must hold the lock.
func (c *Cond) Broadcast(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustHoldLocked("broadcast")
	c.stats.Broadcasts.Add(1)
	for q := c.events[name]; q != nil; q = c.events[name] {
		c.wakeLocked(name, q.Front().Value)
	}
}

func (c *Cond) wakeLocked(name string, w *waiter) {
	c.removeWaiterLocked(name, w)
	w.woken.Set()
}

// Waiting returns the number of tasks suspended on the named event.
func (c *Cond) Waiting(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q := c.events[name]; q != nil {
		return q.Len()
	}
	return 0
}

func (c *Cond) mustHold(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustHoldLocked(op)
}

func (c *Cond) mustHoldLocked(op string) {
	if !c.held {
		panic("condmutex: " + op + " without holding lock")
	}
}
