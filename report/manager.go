// Package report pushes monitor metrics to a Prometheus remote write
// endpoint.
package report

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/eryajf/promwrite"
	"go.uber.org/zap"

	"github.com/nikiz24/guarded"
)

// Config defines the configuration for the reporting loop
type Config struct {
	// Service identification
	Namespace   string
	Subsystem   string
	ServiceName string

	// Remote write configuration
	RemoteWriteURL      string
	RemoteWriteInterval time.Duration

	// Instance information. An empty InstanceIP is filled in by NewManager
	// from the outbound interface.
	InstanceIP   string
	CustomLabels map[string]string

	// Optional logger
	Logger *zap.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Namespace:           "app",
		Subsystem:           "sync",
		ServiceName:         "service",
		RemoteWriteInterval: 15 * time.Second,
		CustomLabels:        make(map[string]string),
	}
}

// Manager collects metrics from registered monitors and writes them to the
// remote endpoint periodically.
type Manager interface {
	Start() error
	Stop()
	RegisterCollector(collector guarded.Collector)
	GetMetrics() []guarded.Metric
	// Flush writes the current metrics immediately.
	Flush(ctx context.Context) error
}

// managerImpl is the implementation of Manager
type managerImpl struct {
	config     Config
	collectors []guarded.Collector
	client     *promwrite.Client
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mutex      sync.RWMutex
}

// NewManager creates a new metrics manager
func NewManager(config Config) (Manager, error) {
	if config.ServiceName == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}

	if config.InstanceIP == "" {
		ip, err := GetOutboundIPv4()
		if err != nil {
			return nil, fmt.Errorf("failed to get outbound IPv4: %w", err)
		}
		config.InstanceIP = ip
	}

	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	var client *promwrite.Client
	if config.RemoteWriteURL != "" {
		client = promwrite.NewClient(config.RemoteWriteURL)
	}

	return &managerImpl{
		config:     config,
		collectors: []guarded.Collector{},
		client:     client,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// RegisterCollector implements Manager interface
func (m *managerImpl) RegisterCollector(collector guarded.Collector) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.collectors = append(m.collectors, collector)

	m.config.Logger.Debug("Registered metrics collector",
		zap.String("collector", collector.Name()))
}

// Start implements Manager interface
func (m *managerImpl) Start() error {
	if m.client == nil {
		m.config.Logger.Warn("Starting metrics manager without remote write URL")
		return nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		interval := m.config.RemoteWriteInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := m.writeMetrics(m.ctx); err != nil {
					m.config.Logger.Error("Failed to write metrics", zap.Error(err))
				}
			case <-m.ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop implements Manager interface
func (m *managerImpl) Stop() {
	m.cancel()
	m.wg.Wait()
}

// GetMetrics implements Manager interface
func (m *managerImpl) GetMetrics() []guarded.Metric {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var metrics []guarded.Metric
	for _, collector := range m.collectors {
		metrics = append(metrics, collector.Collect()...)
	}

	return metrics
}

// Flush implements Manager interface
func (m *managerImpl) Flush(ctx context.Context) error {
	return m.writeMetrics(ctx)
}

// writeMetrics sends collected metrics to remote write endpoint
func (m *managerImpl) writeMetrics(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("no remote write client configured")
	}

	metrics := m.GetMetrics()
	if len(metrics) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req := &promwrite.WriteRequest{
		TimeSeries: m.convertToTimeSeries(metrics),
	}

	if _, err := m.client.Write(ctx, req); err != nil {
		return fmt.Errorf("writing time series failed: %w", err)
	}

	m.config.Logger.Debug("Wrote metrics", zap.Int("series", len(req.TimeSeries)))
	return nil
}

// convertToTimeSeries converts monitor metrics to promwrite time series format
func (m *managerImpl) convertToTimeSeries(metrics []guarded.Metric) []promwrite.TimeSeries {
	result := make([]promwrite.TimeSeries, 0, len(metrics))

	prefix := fmt.Sprintf("%s_%s", m.config.Namespace, m.config.Subsystem)

	for _, metric := range metrics {
		expectedCapacity := 4 + len(m.config.CustomLabels) + len(metric.Labels)

		labels := make([]promwrite.Label, 0, expectedCapacity)
		labels = append(labels, []promwrite.Label{
			{Name: "__name__", Value: fmt.Sprintf("%s_%s", prefix, metric.Name)},
			{Name: "instance", Value: m.config.InstanceIP},
			{Name: "service", Value: m.config.ServiceName},
			{Name: "type", Value: metric.MetricType.String()},
		}...)

		for k, v := range m.config.CustomLabels {
			labels = append(labels, promwrite.Label{Name: k, Value: v})
		}

		for k, v := range metric.Labels {
			labels = append(labels, promwrite.Label{Name: k, Value: v})
		}

		// remote write receivers expect labels sorted by name
		sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })

		result = append(result, promwrite.TimeSeries{
			Labels: labels,
			Sample: promwrite.Sample{
				Time:  metric.Timestamp,
				Value: metric.Value,
			},
		})
	}

	return result
}

// GetOutboundIPv4 gets the outbound IPv4 address of the local machine
func GetOutboundIPv4() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
