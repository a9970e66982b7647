//go:build deadlock

// Package syncutil provides the lock used by monitors, with optional deadlock
// detection. Build with -tags=deadlock to enable detection during development.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = true

func init() {
	deadlock.Opts.DeadlockTimeout = 30 * time.Second
}

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	deadlock.Mutex
}

// SetDeadlockHandler replaces the action taken when the detector reports a
// potential deadlock, which by default exits the process. It returns a
// function restoring the previous handler.
func SetDeadlockHandler(h func()) (restore func()) {
	prev := deadlock.Opts.OnPotentialDeadlock
	deadlock.Opts.OnPotentialDeadlock = h
	return func() { deadlock.Opts.OnPotentialDeadlock = prev }
}
