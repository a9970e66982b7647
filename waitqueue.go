package guarded

// waiter is one goroutine suspended on a monitor. ch is closed when the
// waiter is notified; notified is written under the monitor lock so that a
// waiter whose timer raced with a notification can tell which one won.
type waiter struct {
	ch       chan struct{}
	notified bool
}

// waitQueue is the condition variable of a monitor. All methods require the
// monitor lock.
type waitQueue struct {
	waiters []*waiter
}

func (q *waitQueue) enqueue() *waiter {
	w := &waiter{ch: make(chan struct{})}
	q.waiters = append(q.waiters, w)
	return w
}

// remove drops a waiter that gave up (timeout or cancellation) without being
// notified.
func (q *waitQueue) remove(w *waiter) {
	for i, other := range q.waiters {
		if other == w {
			copy(q.waiters[i:], q.waiters[i+1:])
			q.waiters[len(q.waiters)-1] = nil
			q.waiters = q.waiters[:len(q.waiters)-1]
			return
		}
	}
}

// notifyOne wakes the longest-suspended waiter and reports whether there was one.
func (q *waitQueue) notifyOne() bool {
	if len(q.waiters) == 0 {
		return false
	}
	w := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	w.wake()
	return true
}

// notifyAll wakes every waiter and returns how many there were.
func (q *waitQueue) notifyAll() int {
	n := len(q.waiters)
	for i, w := range q.waiters {
		w.wake()
		q.waiters[i] = nil
	}
	q.waiters = q.waiters[:0]
	return n
}

func (q *waitQueue) len() int {
	return len(q.waiters)
}

func (w *waiter) wake() {
	w.notified = true
	close(w.ch)
}
