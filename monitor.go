package guarded

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nikiz24/guarded/internal/syncutil"
)

// Monitor owns a value of type T together with the lock and the condition
// variable that guard it. The value is reachable only through the Guard
// handed to WithLock. A Monitor must not be copied after first use; share it
// by pointer.
//
// The zero value is a monitor over T's zero value with an empty name, no
// logging and no suspension-time histogram.
type Monitor[T any] struct {
	mu    syncutil.Mutex
	value T
	queue waitQueue

	name             string
	logger           *zap.Logger
	disablePoisoning bool
	poisoned         atomic.Bool
	poison           any // guarded by mu

	stats monitorStats
}

// New creates a monitor wrapping initial, using DefaultConfig.
func New[T any](initial T) *Monitor[T] {
	return newMonitor(initial, DefaultConfig())
}

// NewWithConfig creates a monitor wrapping initial.
func NewWithConfig[T any](initial T, config Config) (*Monitor[T], error) {
	if config.WaitBuckets == nil {
		config.WaitBuckets = DefaultWaitBuckets
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	m := newMonitor(initial, config)
	m.logger.Debug("monitor created",
		zap.String("monitor", m.name),
		zap.Bool("poisoning", !m.disablePoisoning))
	return m, nil
}

func newMonitor[T any](initial T, config Config) *Monitor[T] {
	return &Monitor[T]{
		value:            initial,
		name:             config.Name,
		logger:           config.Logger,
		disablePoisoning: config.DisablePoisoning,
		stats: monitorStats{
			waitTime: newHistogram(config.WaitBuckets),
		},
	}
}

// WithLock acquires the monitor's lock, blocking while another goroutine
// holds it, and runs f with a Guard over the protected value. The lock is
// released when f returns or panics. f's error is returned unchanged; a
// panic is re-raised after the lock is released and poisons the monitor
// unless poisoning is disabled. A poisoned monitor returns a *PoisonError
// without running f.
//
// WithLock is not reentrant: calling it on the same monitor from inside f
// deadlocks. The guard must not be used after f returns.
func (m *Monitor[T]) WithLock(f func(g *Guard[T]) error) error {
	m.mu.Lock()
	m.stats.acquisitions.Add(1)

	g := &Guard[T]{m: m}
	defer m.release(g)

	if err := m.checkPoison(); err != nil {
		m.log().Warn("entered poisoned monitor", zap.String("monitor", m.name))
		return err
	}
	return f(g)
}

// WithLockResult is WithLock for critical sections that produce a value.
func WithLockResult[T, U any](m *Monitor[T], f func(g *Guard[T]) (U, error)) (U, error) {
	var result U
	err := m.WithLock(func(g *Guard[T]) error {
		var err error
		result, err = f(g)
		return err
	})
	return result, err
}

// release ends the guard's scope. It runs deferred, so the recover below
// sees a panic raised by the critical section. The lock is dropped before
// anything else can fail.
func (m *Monitor[T]) release(g *Guard[T]) {
	g.state.Store(stateReleased)

	r := recover()
	if r == nil {
		m.mu.Unlock()
		return
	}

	m.stats.panics.Add(1)
	if !m.disablePoisoning {
		m.poison = r
		m.poisoned.Store(true)
	}
	m.mu.Unlock()

	defer panic(r)
	m.log().Error("critical section panicked",
		zap.String("monitor", m.name),
		zap.Any("panic", r),
		zap.Bool("poisoned", !m.disablePoisoning),
		zap.StackSkip("stack", 1))
}

func (m *Monitor[T]) log() *zap.Logger {
	if m.logger == nil {
		return zap.NewNop()
	}
	return m.logger
}

// checkPoison requires m.mu.
func (m *Monitor[T]) checkPoison() error {
	if !m.poisoned.Load() {
		return nil
	}
	return &PoisonError{Monitor: m.name, Panic: m.poison}
}

// IsPoisoned reports whether a critical section panicked and the poison has
// not been cleared.
func (m *Monitor[T]) IsPoisoned() bool {
	return m.poisoned.Load()
}

// ClearPoison makes a poisoned monitor usable again. The caller takes
// responsibility for the protected value's consistency. Must not be called
// from inside WithLock.
func (m *Monitor[T]) ClearPoison() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.poisoned.Load() {
		return
	}
	m.poison = nil
	m.poisoned.Store(false)
	m.log().Info("monitor poison cleared", zap.String("monitor", m.name))
}

// Name implements Collector interface
func (m *Monitor[T]) Name() string {
	return m.name
}

// Collect implements Collector interface
func (m *Monitor[T]) Collect() []Metric {
	return m.stats.collect(m.name, m.poisoned.Load())
}

// Stats returns a snapshot of the monitor's counters.
func (m *Monitor[T]) Stats() Stats {
	s := m.stats.snapshot()
	s.Poisoned = m.poisoned.Load()
	return s
}
