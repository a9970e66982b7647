package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nikiz24/guarded"
)

type remoteWriteServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newRemoteWriteServer(t *testing.T) *remoteWriteServer {
	t.Helper()
	s := &remoteWriteServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if assert.NoError(t, err) && r.Method == http.MethodPost && len(body) > 0 {
			s.requests.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.Close)
	return s
}

func testConfig(t *testing.T, url string) Config {
	return Config{
		Namespace:           "test",
		Subsystem:           "sync",
		ServiceName:         "svc",
		RemoteWriteURL:      url,
		RemoteWriteInterval: 10 * time.Millisecond,
		InstanceIP:          "10.0.0.1",
		CustomLabels:        map[string]string{"env": "ci"},
		Logger:              zaptest.NewLogger(t),
	}
}

func newMonitor(t *testing.T, name string) *guarded.Monitor[int] {
	t.Helper()
	config := guarded.DefaultConfig()
	config.Name = name
	m, err := guarded.NewWithConfig(0, config)
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresServiceName(t *testing.T) {
	config := testConfig(t, "")
	config.ServiceName = ""
	_, err := NewManager(config)
	require.Error(t, err)
}

func TestDefaultConfigDoesNotResolveInstance(t *testing.T) {
	config := DefaultConfig()
	assert.Empty(t, config.InstanceIP)
	assert.Equal(t, 15*time.Second, config.RemoteWriteInterval)
}

func TestGetMetricsFromMonitors(t *testing.T) {
	mgr, err := NewManager(testConfig(t, ""))
	require.NoError(t, err)

	a, b := newMonitor(t, "a"), newMonitor(t, "b")
	mgr.RegisterCollector(a)
	mgr.RegisterCollector(b)

	require.NoError(t, a.WithLock(func(g *guarded.Guard[int]) error { return nil }))

	acquisitions := map[string]float64{}
	for _, metric := range mgr.GetMetrics() {
		if metric.Name == "lock_acquisitions_total" {
			acquisitions[metric.Labels["monitor"]] = metric.Value
		}
	}
	assert.Equal(t, map[string]float64{"a": 1, "b": 0}, acquisitions)
}

func TestConvertToTimeSeries(t *testing.T) {
	mgr, err := NewManager(testConfig(t, ""))
	require.NoError(t, err)

	now := time.Now()
	series := mgr.(*managerImpl).convertToTimeSeries([]guarded.Metric{{
		Name:       "waits_total",
		Value:      3,
		Labels:     map[string]string{"monitor": "jobs"},
		MetricType: guarded.Counter,
		Timestamp:  now,
	}})
	require.Len(t, series, 1)

	labels := map[string]string{}
	prev := ""
	for _, l := range series[0].Labels {
		assert.Less(t, prev, l.Name, "labels are sorted")
		prev = l.Name
		labels[l.Name] = l.Value
	}
	assert.Equal(t, map[string]string{
		"__name__": "test_sync_waits_total",
		"instance": "10.0.0.1",
		"service":  "svc",
		"type":     "counter",
		"env":      "ci",
		"monitor":  "jobs",
	}, labels)
	assert.Equal(t, 3.0, series[0].Sample.Value)
	assert.Equal(t, now, series[0].Sample.Time)
}

func TestFlush(t *testing.T) {
	server := newRemoteWriteServer(t)
	mgr, err := NewManager(testConfig(t, server.URL))
	require.NoError(t, err)
	mgr.RegisterCollector(newMonitor(t, "jobs"))

	require.NoError(t, mgr.Flush(context.Background()))
	assert.EqualValues(t, 1, server.requests.Load())
}

func TestFlushWithoutURL(t *testing.T) {
	mgr, err := NewManager(testConfig(t, ""))
	require.NoError(t, err)
	require.Error(t, mgr.Flush(context.Background()))
}

func TestStartWritesPeriodically(t *testing.T) {
	server := newRemoteWriteServer(t)
	mgr, err := NewManager(testConfig(t, server.URL))
	require.NoError(t, err)
	mgr.RegisterCollector(newMonitor(t, "jobs"))

	require.NoError(t, mgr.Start())
	t.Cleanup(mgr.Stop)
	require.Eventually(t, func() bool { return server.requests.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestGlobalReporter(t *testing.T) {
	t.Cleanup(Shutdown)

	require.Error(t, Register(newMonitor(t, "early")))
	require.Error(t, Flush(context.Background()))

	server := newRemoteWriteServer(t)
	config := testConfig(t, server.URL)
	config.RemoteWriteInterval = time.Hour
	require.NoError(t, Init(config))
	require.NoError(t, Init(config), "second Init is a no-op")

	require.NoError(t, Register(newMonitor(t, "jobs")))
	require.NoError(t, Flush(context.Background()))
	assert.EqualValues(t, 1, server.requests.Load())

	Shutdown()
	require.Error(t, Flush(context.Background()))
}
