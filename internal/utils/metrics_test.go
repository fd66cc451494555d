// internal/utils/metrics_test.go
package utils

import (
	"sync"
	"testing"
)

// TestCounterBasics 测试计数器的基本操作
func TestCounterBasics(t *testing.T) {
	m := GetMetricsCollector()
	m.Reset()

	if m.GetCounter("missing") != 0 {
		t.Error("不存在的计数器应该返回0")
	}

	m.IncrementCounter("ops")
	m.IncrementCounter("ops")
	m.AddCounter("ops", 3)

	if got := m.GetCounter("ops"); got != 5 {
		t.Errorf("计数器值不正确，期望: 5，实际: %d", got)
	}

	snapshot := m.Snapshot()
	if snapshot["ops"] != 5 {
		t.Errorf("快照值不正确，期望: 5，实际: %d", snapshot["ops"])
	}

	m.Reset()
	if m.GetCounter("ops") != 0 {
		t.Error("重置后计数器应该归零")
	}
}

// TestCounterConcurrency 测试并发递增不丢计数
func TestCounterConcurrency(t *testing.T) {
	m := GetMetricsCollector()
	m.Reset()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.IncrementCounter("concurrent")
			}
		}()
	}
	wg.Wait()

	if got := m.GetCounter("concurrent"); got != 8000 {
		t.Errorf("并发计数不正确，期望: 8000，实际: %d", got)
	}
}
