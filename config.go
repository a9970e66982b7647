package guarded

import (
	"fmt"

	"go.uber.org/zap"
)

// DefaultWaitBuckets are the upper bounds, in seconds, of the suspension time
// histogram.
var DefaultWaitBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Config defines the configuration of a monitor
type Config struct {
	// Name identifies the monitor in logs and metrics.
	Name string

	// Optional logger
	Logger *zap.Logger

	// DisablePoisoning keeps a monitor usable after a critical section
	// panicked. The protected value may then be observed half-updated.
	DisablePoisoning bool

	// WaitBuckets are histogram bounds in seconds for time spent suspended
	// in a wait. Must be strictly increasing. Nil means DefaultWaitBuckets.
	WaitBuckets []float64
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Name:        "monitor",
		Logger:      zap.NewNop(),
		WaitBuckets: DefaultWaitBuckets,
	}
}

func (c Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("monitor name cannot be empty")
	}
	for i := 1; i < len(c.WaitBuckets); i++ {
		if c.WaitBuckets[i] <= c.WaitBuckets[i-1] {
			return fmt.Errorf("wait buckets must be strictly increasing, got %v after %v",
				c.WaitBuckets[i], c.WaitBuckets[i-1])
		}
	}
	return nil
}
