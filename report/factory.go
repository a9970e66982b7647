package report

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nikiz24/guarded"
)

// Global reporter instance
var (
	globalMutex   sync.Mutex
	globalManager Manager
)

// Init creates and starts the global reporter. Calling it again while a
// reporter is running is a no-op.
func Init(config Config) error {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalManager != nil {
		return nil
	}

	mgr, err := NewManager(config)
	if err != nil {
		return err
	}
	if err := mgr.Start(); err != nil {
		return err
	}
	globalManager = mgr

	if config.Logger != nil {
		config.Logger.Info("monitor reporting initialized",
			zap.String("namespace", config.Namespace),
			zap.String("subsystem", config.Subsystem),
			zap.String("service", config.ServiceName))
	}
	return nil
}

// Register adds a monitor, or any other collector, to the global reporter.
func Register(collector guarded.Collector) error {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalManager == nil {
		return fmt.Errorf("global reporter is not initialized")
	}
	globalManager.RegisterCollector(collector)
	return nil
}

// Flush immediately writes all current metrics to the remote endpoint
func Flush(ctx context.Context) error {
	globalMutex.Lock()
	mgr := globalManager
	globalMutex.Unlock()

	if mgr == nil {
		return fmt.Errorf("global reporter is not initialized")
	}
	return mgr.Flush(ctx)
}

// Shutdown stops the global reporter
func Shutdown() {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalManager != nil {
		globalManager.Stop()
		globalManager = nil
	}
}
