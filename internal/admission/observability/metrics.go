// Package observability provides admission metrics.
package observability

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records admission activity.
type Metrics interface {
	IncAdmission(result string)
	IncThreat(category string)
	IncEvent(eventType string)
	IncEviction(kind string, count int)
	ObserveLatency(op string, d time.Duration)
}

// PromMetrics exports admission metrics through a Prometheus registry.
type PromMetrics struct {
	registry  *prometheus.Registry
	admission *prometheus.CounterVec
	threats   *prometheus.CounterVec
	events    *prometheus.CounterVec
	evictions *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewPromMetrics constructs and registers the metric set.
func NewPromMetrics() *PromMetrics {
	m := &PromMetrics{
		registry: prometheus.NewRegistry(),
		admission: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_requests_total",
			Help: "Admission decisions by result.",
		}, []string{"result"}),
		threats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_threats_total",
			Help: "Threat signature matches by category.",
		}, []string{"category"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_security_events_total",
			Help: "Security events recorded by type.",
		}, []string{"type"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_evictions_total",
			Help: "State entries evicted by the sweeper.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admission_operation_seconds",
			Help:    "Latency of admission operations.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"op"}),
	}
	m.registry.MustRegister(m.admission, m.threats, m.events, m.evictions, m.latency)
	return m
}

// Registry exposes the registry for the metrics endpoint.
func (m *PromMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// IncAdmission increments the decision counter.
func (m *PromMetrics) IncAdmission(result string) {
	if m == nil {
		return
	}
	m.admission.WithLabelValues(result).Inc()
}

// IncThreat increments the threat counter.
func (m *PromMetrics) IncThreat(category string) {
	if m == nil {
		return
	}
	m.threats.WithLabelValues(category).Inc()
}

// IncEvent increments the event counter.
func (m *PromMetrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// IncEviction adds to the eviction counter.
func (m *PromMetrics) IncEviction(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.evictions.WithLabelValues(kind).Add(float64(count))
}

// ObserveLatency records an operation latency.
func (m *PromMetrics) ObserveLatency(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// InMemoryMetrics counts metrics in process memory. Used in tests.
type InMemoryMetrics struct {
	counters sync.Map
}

// NewInMemoryMetrics constructs an in-memory recorder.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

// IncAdmission increments the decision counter.
func (m *InMemoryMetrics) IncAdmission(result string) {
	m.add(fmt.Sprintf("admission|%s", result), 1)
}

// IncThreat increments the threat counter.
func (m *InMemoryMetrics) IncThreat(category string) {
	m.add(fmt.Sprintf("threat|%s", category), 1)
}

// IncEvent increments the event counter.
func (m *InMemoryMetrics) IncEvent(eventType string) {
	m.add(fmt.Sprintf("event|%s", eventType), 1)
}

// IncEviction adds to the eviction counter.
func (m *InMemoryMetrics) IncEviction(kind string, count int) {
	m.add(fmt.Sprintf("eviction|%s", kind), int64(count))
}

// ObserveLatency counts latency observations.
func (m *InMemoryMetrics) ObserveLatency(op string, _ time.Duration) {
	m.add(fmt.Sprintf("latency|%s", op), 1)
}

// Counter returns the current value for a key.
func (m *InMemoryMetrics) Counter(key string) int64 {
	if m == nil {
		return 0
	}
	if value, ok := m.counters.Load(key); ok {
		if counter, ok := value.(*atomic.Int64); ok {
			return counter.Load()
		}
	}
	return 0
}

func (m *InMemoryMetrics) add(key string, n int64) {
	if m == nil || n == 0 {
		return
	}
	counter := &atomic.Int64{}
	if existing, ok := m.counters.LoadOrStore(key, counter); ok {
		if stored, ok := existing.(*atomic.Int64); ok {
			counter = stored
		}
	}
	counter.Add(n)
}
