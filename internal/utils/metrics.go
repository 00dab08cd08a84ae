// internal/utils/metrics.go
package utils

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// MetricsCollector 进程内指标收集器
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]*atomic.Int64
	gauges     map[string]*atomic.Int64
	histograms map[string]*Histogram
}

// Histogram 只记录 count/sum/min/max
type Histogram struct {
	mu    sync.Mutex
	count int64
	sum   int64
	min   int64
	max   int64
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector 返回全局收集器
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// NewMetricsCollector 创建独立的收集器，测试中使用
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*atomic.Int64),
		gauges:     make(map[string]*atomic.Int64),
		histograms: make(map[string]*Histogram),
	}
}

func (m *MetricsCollector) value(set map[string]*atomic.Int64, name string) *atomic.Int64 {
	m.mu.RLock()
	v, ok := set[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = set[name]; !ok {
		v = atomic.NewInt64(0)
		set[name] = v
	}
	return v
}

// IncrementCounter 计数器加一
func (m *MetricsCollector) IncrementCounter(name string) {
	m.value(m.counters, name).Inc()
}

// AddCounter 计数器增加指定值
func (m *MetricsCollector) AddCounter(name string, delta int64) {
	m.value(m.counters, name).Add(delta)
}

// GetCounterValue 读取计数器
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.counters[name]; ok {
		return v.Load()
	}
	return 0
}

// SetGauge 设置瞬时值
func (m *MetricsCollector) SetGauge(name string, value int64) {
	m.value(m.gauges, name).Store(value)
}

// GetGauge 读取瞬时值
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.gauges[name]; ok {
		return v.Load()
	}
	return 0
}

// RecordHistogram 记录一次观测值
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		if h, ok = m.histograms[name]; !ok {
			h = &Histogram{min: value, max: value}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	if value < h.min {
		h.min = value
	}
	if value > h.max {
		h.max = value
	}
}

// GetMetrics 返回所有指标的快照
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = v.Load()
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = v.Load()
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{
			"count": h.count,
			"sum":   h.sum,
			"min":   h.min,
			"max":   h.max,
		}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// GenerationMetrics 记录 API 请求与生成调用
type GenerationMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewGenerationMetrics 使用全局收集器
func NewGenerationMetrics() *GenerationMetrics {
	return NewGenerationMetricsWith(GetMetricsCollector(), GetLogger())
}

// NewGenerationMetricsWith 指定收集器与日志
func NewGenerationMetricsWith(m *MetricsCollector, logger *Logger) *GenerationMetrics {
	return &GenerationMetrics{metrics: m, logger: logger}
}

// Collector 返回底层收集器
func (gm *GenerationMetrics) Collector() *MetricsCollector {
	return gm.metrics
}

// RecordAPIRequest 记录一次 HTTP 请求
func (gm *GenerationMetrics) RecordAPIRequest(route, method string, status int, duration time.Duration) {
	gm.metrics.IncrementCounter("api_requests_total")
	gm.metrics.IncrementCounter(fmt.Sprintf("api_responses_%dxx", status/100))
	gm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())

	gm.logger.Debug("API request completed", map[string]interface{}{
		"route":    route,
		"method":   method,
		"status":   status,
		"duration": duration.Milliseconds(),
	})
}

// RecordGeneration 记录一次网关调用，kind 如 image/video/audio/analysis
func (gm *GenerationMetrics) RecordGeneration(kind string, err error, duration time.Duration) {
	gm.metrics.IncrementCounter("generation_" + kind + "_total")
	if err != nil {
		gm.metrics.IncrementCounter("generation_" + kind + "_failed")
	}
	gm.metrics.RecordHistogram("generation_"+kind+"_ms", duration.Milliseconds())
}

// RecordBatch 记录批次结束时的结果
func (gm *GenerationMetrics) RecordBatch(kind string, total, failed int) {
	gm.metrics.IncrementCounter("batch_" + kind + "_runs")
	gm.metrics.AddCounter("batch_"+kind+"_items", int64(total))
	gm.metrics.AddCounter("batch_"+kind+"_failed", int64(failed))

	gm.logger.Info("Batch finished", map[string]interface{}{
		"kind":   kind,
		"total":  total,
		"failed": failed,
	})
}

// SetBatchRunning 标记批次是否在运行
func (gm *GenerationMetrics) SetBatchRunning(kind string, running bool) {
	var v int64
	if running {
		v = 1
	}
	gm.metrics.SetGauge("batch_"+kind+"_running", v)
}
