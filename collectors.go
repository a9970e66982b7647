package guarded

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of a monitor's activity counters.
type Stats struct {
	Acquisitions  int64 // completed lock acquisitions by WithLock
	Waits         int64 // suspensions started by any Wait variant
	Wakeups       int64 // suspensions ended by a notification
	Timeouts      int64 // suspensions ended by a timer
	Cancellations int64 // suspensions ended by a context
	NotifyOne     int64
	NotifyAll     int64
	Panics        int64 // critical sections that panicked
	Waiters       int64 // goroutines currently suspended
	Poisoned      bool

	WaitCount int64
	WaitTime  time.Duration // total time spent suspended
}

// monitorStats holds the counters of one monitor. Fields are atomic so that
// Collect can run concurrently with critical sections.
type monitorStats struct {
	acquisitions  atomic.Int64
	waits         atomic.Int64
	wakeups       atomic.Int64
	timeouts      atomic.Int64
	cancellations atomic.Int64
	notifyOne     atomic.Int64
	notifyAll     atomic.Int64
	panics        atomic.Int64
	waiters       atomic.Int64

	waitTime *histogram // nil for a zero Monitor
}

type histogram struct {
	buckets []float64
	counts  []atomic.Int64
	sum     float64
	count   atomic.Int64
	mutex   sync.RWMutex
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]atomic.Int64, len(buckets)+1), // +1 for infinity bucket
	}
}

// observe records a value in the histogram
func (h *histogram) observe(value float64) {
	if h == nil {
		return
	}
	h.mutex.Lock()
	h.sum += value
	h.mutex.Unlock()

	h.count.Add(1)

	// Find appropriate bucket
	i := 0
	for i < len(h.buckets) && value > h.buckets[i] {
		i++
	}
	h.counts[i].Add(1)
}

func (h *histogram) getSum() float64 {
	if h == nil {
		return 0
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sum
}

func (h *histogram) getCount() int64 {
	if h == nil {
		return 0
	}
	return h.count.Load()
}

func (s *monitorStats) snapshot() Stats {
	return Stats{
		Acquisitions:  s.acquisitions.Load(),
		Waits:         s.waits.Load(),
		Wakeups:       s.wakeups.Load(),
		Timeouts:      s.timeouts.Load(),
		Cancellations: s.cancellations.Load(),
		NotifyOne:     s.notifyOne.Load(),
		NotifyAll:     s.notifyAll.Load(),
		Panics:        s.panics.Load(),
		Waiters:       s.waiters.Load(),
		WaitCount:     s.waitTime.getCount(),
		WaitTime:      time.Duration(s.waitTime.getSum() * float64(time.Second)),
	}
}

// collect converts the counters to metrics labeled with the monitor name
func (s *monitorStats) collect(name string, poisoned bool) []Metric {
	now := time.Now()
	labels := func() map[string]string {
		return map[string]string{"monitor": name}
	}

	metrics := []Metric{
		{Name: "lock_acquisitions_total", Value: float64(s.acquisitions.Load()), MetricType: Counter},
		{Name: "waits_total", Value: float64(s.waits.Load()), MetricType: Counter},
		{Name: "wakeups_total", Value: float64(s.wakeups.Load()), MetricType: Counter},
		{Name: "wait_timeouts_total", Value: float64(s.timeouts.Load()), MetricType: Counter},
		{Name: "wait_cancellations_total", Value: float64(s.cancellations.Load()), MetricType: Counter},
		{Name: "notify_one_total", Value: float64(s.notifyOne.Load()), MetricType: Counter},
		{Name: "notify_all_total", Value: float64(s.notifyAll.Load()), MetricType: Counter},
		{Name: "panics_total", Value: float64(s.panics.Load()), MetricType: Counter},
		{Name: "waiters", Value: float64(s.waiters.Load()), MetricType: Gauge},
		{Name: "poisoned", Value: boolToFloat(poisoned), MetricType: Gauge},
	}
	for i := range metrics {
		metrics[i].Labels = labels()
		metrics[i].Timestamp = now
	}

	h := s.waitTime
	if h == nil {
		return metrics
	}
	metrics = append(metrics,
		Metric{
			Name:       "wait_seconds_sum",
			Value:      h.getSum(),
			Labels:     labels(),
			MetricType: Histogram,
			Timestamp:  now,
		},
		Metric{
			Name:       "wait_seconds_count",
			Value:      float64(h.count.Load()),
			Labels:     labels(),
			MetricType: Histogram,
			Timestamp:  now,
		},
	)

	cumulativeSum := int64(0)
	for i := range h.counts {
		cumulativeSum += h.counts[i].Load()

		le := "+Inf"
		if i < len(h.buckets) {
			le = formatBucketLabel(h.buckets[i])
		}

		l := labels()
		l["le"] = le
		metrics = append(metrics, Metric{
			Name:       "wait_seconds_bucket",
			Value:      float64(cumulativeSum),
			Labels:     l,
			MetricType: Histogram,
			Timestamp:  now,
		})
	}

	return metrics
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// formatBucketLabel formats bucket label
func formatBucketLabel(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}
