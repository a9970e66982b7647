package guarded

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	stateHeld int32 = iota
	stateSuspended
	stateReleased
)

type wakeReason int

const (
	wokenByNotify wakeReason = iota
	wokenByTimeout
	wokenByCancel
)

// Guard proves that its goroutine holds the monitor's lock. It is created by
// WithLock and is valid only inside the function passed to it. Every method
// panics when called on a guard that is released or suspended in a wait.
type Guard[T any] struct {
	m     *Monitor[T]
	state atomic.Int32
}

func (g *Guard[T]) mustHold(op string) {
	switch g.state.Load() {
	case stateHeld:
	case stateSuspended:
		panic("guarded: " + op + " called on a guard suspended in a wait")
	default:
		panic("guarded: " + op + " called on a released guard")
	}
}

// Value returns a pointer to the protected value. The pointer must not be
// retained past the end of the critical section or used across a wait.
func (g *Guard[T]) Value() *T {
	g.mustHold("Value")
	return &g.m.value
}

// Get returns a copy of the protected value.
func (g *Guard[T]) Get() T {
	g.mustHold("Get")
	return g.m.value
}

// Set replaces the protected value.
func (g *Guard[T]) Set(v T) {
	g.mustHold("Set")
	g.m.value = v
}

// Wait releases the lock, suspends until NotifyOne or NotifyAll is called on
// the monitor, and reacquires the lock before returning. Returning does not
// mean the awaited condition holds; callers re-check it in a loop.
func (g *Guard[T]) Wait() error {
	_, err := g.wait("Wait", nil, nil)
	return err
}

// WaitTimeout is Wait bounded by d. timedOut is true when d elapsed without a
// notification. A wake by notification can still find the condition false,
// so callers loop against an absolute deadline; see WaitForTimeout.
func (g *Guard[T]) WaitTimeout(d time.Duration) (timedOut bool, err error) {
	g.mustHold("WaitTimeout")

	timer := time.NewTimer(d)
	defer timer.Stop()

	reason, err := g.wait("WaitTimeout", timer.C, nil)
	return reason == wokenByTimeout, err
}

// WaitDeadline is WaitTimeout with an absolute deadline.
func (g *Guard[T]) WaitDeadline(deadline time.Time) (timedOut bool, err error) {
	return g.WaitTimeout(time.Until(deadline))
}

// WaitContext is Wait that also returns ctx.Err() once ctx is done.
func (g *Guard[T]) WaitContext(ctx context.Context) error {
	g.mustHold("WaitContext")
	if err := ctx.Err(); err != nil {
		return err
	}

	reason, err := g.wait("WaitContext", nil, ctx.Done())
	if err != nil {
		return err
	}
	if reason == wokenByCancel {
		return ctx.Err()
	}
	return nil
}

// WaitFor waits until pred holds for the protected value. pred runs with the
// lock held.
func (g *Guard[T]) WaitFor(pred func(v *T) bool) error {
	for !pred(g.Value()) {
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// WaitForTimeout waits until pred holds or d has elapsed, recomputing the
// remaining time after every wake. timedOut is false whenever pred held
// before the deadline.
func (g *Guard[T]) WaitForTimeout(d time.Duration, pred func(v *T) bool) (timedOut bool, err error) {
	deadline := time.Now().Add(d)
	for !pred(g.Value()) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true, nil
		}
		if _, err := g.WaitTimeout(remaining); err != nil {
			return false, err
		}
	}
	return false, nil
}

// NotifyOne wakes one goroutine waiting on the monitor, if any. Which one is
// unspecified. The lock stays held.
func (g *Guard[T]) NotifyOne() {
	g.mustHold("NotifyOne")
	g.m.stats.notifyOne.Add(1)
	g.m.queue.notifyOne()
}

// NotifyAll wakes every goroutine waiting on the monitor. The lock stays held.
func (g *Guard[T]) NotifyAll() {
	g.mustHold("NotifyAll")
	g.m.stats.notifyAll.Add(1)
	g.m.queue.notifyAll()
}

// wait suspends on the monitor's queue until notified, timeout fires or done
// is closed. Nil channels never fire. The lock is held on entry and on return.
func (g *Guard[T]) wait(op string, timeout <-chan time.Time, done <-chan struct{}) (wakeReason, error) {
	g.mustHold(op)
	m := g.m

	w := m.queue.enqueue()
	m.stats.waits.Add(1)
	m.stats.waiters.Add(1)
	g.state.Store(stateSuspended)
	start := time.Now()
	m.mu.Unlock()

	reason := wokenByNotify
	select {
	case <-w.ch:
	case <-timeout:
		reason = wokenByTimeout
	case <-done:
		reason = wokenByCancel
	}

	m.mu.Lock()
	g.state.Store(stateHeld)
	m.stats.waiters.Add(-1)
	m.stats.waitTime.observe(time.Since(start).Seconds())

	// A notification that raced with the timer or the context still counts,
	// otherwise a NotifyOne would be lost.
	if w.notified {
		reason = wokenByNotify
	} else {
		m.queue.remove(w)
	}

	switch reason {
	case wokenByNotify:
		m.stats.wakeups.Add(1)
	case wokenByTimeout:
		m.stats.timeouts.Add(1)
	case wokenByCancel:
		m.stats.cancellations.Add(1)
	}

	return reason, m.checkPoison()
}
