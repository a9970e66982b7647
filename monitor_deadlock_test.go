//go:build deadlock

package guarded

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nikiz24/guarded/internal/syncutil"
)

func TestContendedMonitorUnderDeadlockDetector(t *testing.T) {
	require.True(t, syncutil.DeadlockEnabled)

	var reported atomic.Int32
	t.Cleanup(syncutil.SetDeadlockHandler(func() { reported.Add(1) }))

	m := newTestMonitor(t, 0)

	var eg errgroup.Group
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			for j := 0; j < 20; j++ {
				err := m.WithLock(func(g *Guard[int]) error {
					*g.Value()++
					time.Sleep(100 * time.Microsecond)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	// A waiter and a notifier exercise release and reacquire around a wait.
	eg.Go(func() error {
		return m.WithLock(func(g *Guard[int]) error {
			return g.WaitFor(func(v *int) bool { return *v >= 8*20 })
		})
	})
	eg.Go(func() error {
		for {
			v, err := WithLockResult(m, func(g *Guard[int]) (int, error) {
				g.NotifyAll()
				return g.Get(), nil
			})
			if err != nil || v >= 8*20 {
				return err
			}
			time.Sleep(time.Millisecond)
		}
	})

	require.NoError(t, eg.Wait())
	assert.Zero(t, reported.Load())
}
