// Package guarded provides a monitor: a value of any type protected by a
// mutex, paired with a condition variable that supports timed and
// cancellable waits.
//
// The value is only reachable inside a critical section, through the Guard
// passed to WithLock. Inside the section a goroutine may read or replace the
// value, suspend until another goroutine signals (Wait, WaitTimeout,
// WaitContext), or signal others (NotifyOne, NotifyAll). The lock is released
// when the section returns or panics.
//
// Design goals:
//   - State changes and the notifications that announce them happen under one lock
//   - Timeouts are values, not errors
//   - A panicking critical section poisons the monitor instead of leaking the lock
//   - Every monitor exports counters through the Collector interface
//
// Basic usage:
//
//	done := guarded.New(false)
//
//	go func() {
//	  _ = done.WithLock(func(g *guarded.Guard[bool]) error {
//	    g.Set(true)
//	    g.NotifyOne()
//	    return nil
//	  })
//	}()
//
//	err := done.WithLock(func(g *guarded.Guard[bool]) error {
//	  timedOut, err := g.WaitForTimeout(time.Second, func(v *bool) bool { return *v })
//	  if err != nil {
//	    return err
//	  }
//	  if timedOut {
//	    return errors.New("gave up")
//	  }
//	  return nil
//	})
//
// Waiters are woken in FIFO order, but callers must not rely on it. Build
// with -tags=deadlock to run every monitor on github.com/sasha-s/go-deadlock.
package guarded
