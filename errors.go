package guarded

import (
	"errors"
	"fmt"
)

// ErrPoisoned is wrapped by every PoisonError.
var ErrPoisoned = errors.New("monitor poisoned")

// PoisonError is returned when a monitor is entered, or a wait returns,
// after some critical section panicked while holding the lock. The protected
// value may violate its invariants, so the monitor refuses to hand it out
// until ClearPoison is called.
type PoisonError struct {
	// Monitor is the name of the poisoned monitor.
	Monitor string
	// Panic is the value the offending critical section panicked with.
	Panic any
}

func (e *PoisonError) Error() string {
	return fmt.Sprintf("monitor %q poisoned by panic: %v", e.Monitor, e.Panic)
}

func (e *PoisonError) Unwrap() error {
	return ErrPoisoned
}
