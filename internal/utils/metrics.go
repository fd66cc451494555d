// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
)

// MetricsCollector collects in-process operation counters
type MetricsCollector struct {
	counters map[string]*counter
	mu       sync.RWMutex
}

type counter struct {
	value int64 // accessed atomically
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = &MetricsCollector{
			counters: make(map[string]*counter),
		}
	})
	return globalMetrics
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	// Fast path for existing counters
	m.mu.RLock()
	c, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check after acquiring write lock
		c, exists = m.counters[name]
		if !exists {
			c = &counter{}
			m.counters[name] = c
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&c.value, value)
}

// GetCounter returns the current value of a counter (0 if absent)
func (m *MetricsCollector) GetCounter(name string) int64 {
	m.mu.RLock()
	c, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&c.value)
}

// Snapshot returns a copy of all counter values
func (m *MetricsCollector) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		snapshot[name] = atomic.LoadInt64(&c.value)
	}
	return snapshot
}

// Reset clears all counters (test helper)
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters = make(map[string]*counter)
}
