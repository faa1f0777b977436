package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects in-process cache statistics for the /stats endpoint.
// Prometheus collectors are fed from the same Record functions.
type Metrics struct {
	Hits          atomic.Int64
	Misses        atomic.Int64
	Errors        atomic.Int64
	Corrupt       atomic.Int64
	Bypassed      atomic.Int64
	Writes        atomic.Int64
	WriteErrors   atomic.Int64
	Invalidations atomic.Int64

	ProducerCalls  atomic.Int64
	ProducerErrors atomic.Int64
	ProducerMs     atomic.Int64

	services sync.Map // service -> *ServiceMetrics

	startTime time.Time
}

// ServiceMetrics tracks cache statistics for one service hash
type ServiceMetrics struct {
	Hits           atomic.Int64
	Misses         atomic.Int64
	ProducerCalls  atomic.Int64
	ProducerErrors atomic.Int64
	ProducerMs     atomic.Int64
}

var global = &Metrics{startTime: time.Now()}

// Global returns the global metrics instance
func Global() *Metrics {
	return global
}

// RecordCacheLookup records the outcome of a cache read:
// hit, miss, error, corrupt or bypass (breaker open).
func RecordCacheLookup(service, result string) {
	m := global
	sm := m.service(service)
	switch result {
	case "hit":
		m.Hits.Add(1)
		sm.Hits.Add(1)
	case "miss":
		m.Misses.Add(1)
		sm.Misses.Add(1)
	case "error":
		m.Errors.Add(1)
		sm.Misses.Add(1)
	case "corrupt":
		m.Corrupt.Add(1)
		sm.Misses.Add(1)
	case "bypass":
		m.Bypassed.Add(1)
		sm.Misses.Add(1)
	}
	recordPrometheusLookup(service, result)
}

// RecordCacheWrite records a cache write: ok, error or bypass.
func RecordCacheWrite(service, status string) {
	switch status {
	case "ok":
		global.Writes.Add(1)
	case "error":
		global.WriteErrors.Add(1)
	}
	recordPrometheusWrite(service, status)
}

// RecordCacheInvalidation records an explicit eviction; scope is
// "endpoint" or "service".
func RecordCacheInvalidation(service, scope string) {
	global.Invalidations.Add(1)
	recordPrometheusInvalidation(service, scope)
}

// ObserveProducer records one producer run on a cache miss.
func ObserveProducer(service string, d time.Duration, err error) {
	ms := d.Milliseconds()
	m := global
	sm := m.service(service)
	m.ProducerCalls.Add(1)
	sm.ProducerCalls.Add(1)
	m.ProducerMs.Add(ms)
	sm.ProducerMs.Add(ms)
	if err != nil {
		m.ProducerErrors.Add(1)
		sm.ProducerErrors.Add(1)
	}
	recordPrometheusProducer(service, d, err == nil)
}

func (m *Metrics) service(name string) *ServiceMetrics {
	if v, ok := m.services.Load(name); ok {
		return v.(*ServiceMetrics)
	}
	actual, _ := m.services.LoadOrStore(name, &ServiceMetrics{})
	return actual.(*ServiceMetrics)
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	hits, misses := m.Hits.Load(), m.Misses.Load()
	errs, corrupt := m.Errors.Load(), m.Corrupt.Load()

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"cache": map[string]interface{}{
			"hits":          hits,
			"misses":        misses,
			"errors":        errs,
			"corrupt":       corrupt,
			"bypassed":      m.Bypassed.Load(),
			"hit_pct":       percentage(hits, hits+misses+errs+corrupt),
			"writes":        m.Writes.Load(),
			"write_errors":  m.WriteErrors.Load(),
			"invalidations": m.Invalidations.Load(),
		},
		"producers": map[string]interface{}{
			"calls":  m.ProducerCalls.Load(),
			"errors": m.ProducerErrors.Load(),
			"avg_ms": average(m.ProducerMs.Load(), m.ProducerCalls.Load()),
		},
	}
}

// ServiceStats returns per-service metrics
func (m *Metrics) ServiceStats() map[string]interface{} {
	result := make(map[string]interface{})
	m.services.Range(func(key, value interface{}) bool {
		sm := value.(*ServiceMetrics)
		hits, misses := sm.Hits.Load(), sm.Misses.Load()
		result[key.(string)] = map[string]interface{}{
			"hits":            hits,
			"misses":          misses,
			"hit_pct":         percentage(hits, hits+misses),
			"producer_calls":  sm.ProducerCalls.Load(),
			"producer_errors": sm.ProducerErrors.Load(),
			"producer_avg_ms": average(sm.ProducerMs.Load(), sm.ProducerCalls.Load()),
		}
		return true
	})
	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["services"] = m.ServiceStats()
		json.NewEncoder(w).Encode(result)
	})
}

func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func average(sum, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}
