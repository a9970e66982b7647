package syncutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMutexExcludes(t *testing.T) {
	var (
		mu      Mutex
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				mu.Lock()
				counter++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 8000, counter)
}

// Mutex must satisfy sync.Locker in both build modes.
var _ sync.Locker = (*Mutex)(nil)
