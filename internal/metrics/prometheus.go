package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for the API
type PrometheusMetrics struct {
	registry *prometheus.Registry

	cacheLookups       *prometheus.CounterVec
	cacheWrites        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec

	producerDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	breakerState *prometheus.GaugeVec

	uptime prometheus.GaugeFunc
}

// Default histogram buckets for producer and request duration (seconds)
var defaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache reads by service and result (hit, miss, error, corrupt, bypass)",
			},
			[]string{"service", "result"},
		),
		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writes_total",
				Help:      "Cache writes by service and status",
			},
			[]string{"service", "status"},
		),
		cacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Explicit cache evictions by service and scope",
			},
			[]string{"service", "scope"},
		),
		producerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_producer_duration_seconds",
				Help:      "Time spent computing values on cache misses",
				Buckets:   buckets,
			},
			[]string{"service", "status"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by service and status code",
			},
			[]string{"service", "method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by service",
				Buckets:   buckets,
			},
			[]string{"service"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Breaker state per backend (0 closed, 1 open, 2 half-open)",
			},
			[]string{"backend"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started",
		},
		func() float64 { return time.Since(global.startTime).Seconds() },
	)

	registry.MustRegister(
		pm.cacheLookups,
		pm.cacheWrites,
		pm.cacheInvalidations,
		pm.producerDuration,
		pm.httpRequests,
		pm.httpDuration,
		pm.breakerState,
		pm.uptime,
	)

	promMetrics = pm
}

func recordPrometheusLookup(service, result string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheLookups.WithLabelValues(service, result).Inc()
}

func recordPrometheusWrite(service, status string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheWrites.WithLabelValues(service, status).Inc()
}

func recordPrometheusInvalidation(service, scope string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheInvalidations.WithLabelValues(service, scope).Inc()
}

func recordPrometheusProducer(service string, d time.Duration, success bool) {
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	promMetrics.producerDuration.WithLabelValues(service, status).Observe(d.Seconds())
}

// RecordHTTPRequest records one served API request
func RecordHTTPRequest(service, method string, code int, d time.Duration) {
	if promMetrics == nil {
		return
	}
	promMetrics.httpRequests.WithLabelValues(service, method, strconv.Itoa(code)).Inc()
	promMetrics.httpDuration.WithLabelValues(service).Observe(d.Seconds())
}

// SetBreakerState publishes a breaker's state as 0 closed, 1 open or
// 2 half-open.
func SetBreakerState(backend string, state int) {
	if promMetrics == nil {
		return
	}
	promMetrics.breakerState.WithLabelValues(backend).Set(float64(state))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
