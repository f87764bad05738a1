package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Oracle outcome labels.
const (
	OracleResultWaste    = "waste"
	OracleResultNotWaste = "not_waste"
	OracleResultFailed   = "failed"
	OracleResultFallback = "fallback"
)

// MetricsService owns the Prometheus registry for HTTP, cache and submission-pipeline metrics.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	submissionsCreated prometheus.Counter
	oracleResults      *prometheus.CounterVec
	oracleLatency      prometheus.Observer
	verifications      *prometheus.CounterVec
	pointsCredited     prometheus.Counter
	redemptions        *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers all collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		submissionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "submissions_created_total",
			Help: "Waste submissions accepted from citizens",
		}),
		oracleResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_results_total",
			Help: "Verification oracle outcomes",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Verifier decisions by outcome",
		}, []string{"outcome"}),
		pointsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "points_credited_total",
			Help: "Reward points credited for verified submissions",
		}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Voucher redemption attempts by outcome",
		}, []string{"outcome"}),
	}

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})
	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})
	oracleLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_call_duration_seconds",
		Help:    "Duration of verification oracle calls",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 10},
	})
	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})
	m.cacheLatency = cacheLatency
	m.cacheWrite = cacheWrite
	m.oracleLatency = oracleLatency

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		cacheLatency, cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.submissionsCreated, m.oracleResults, oracleLatency, m.verifications, m.pointsCredited, m.redemptions,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics. path should be the route template, not the raw URL.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// SubmissionCreated counts an accepted submission.
func (m *MetricsService) SubmissionCreated() {
	if m == nil {
		return
	}
	m.submissionsCreated.Inc()
}

// OracleResult counts an oracle outcome and, when positive, the call duration.
func (m *MetricsService) OracleResult(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.oracleResults.WithLabelValues(result).Inc()
	if duration > 0 {
		m.oracleLatency.Observe(duration.Seconds())
	}
}

// Verification counts a verifier decision and the points it credited.
func (m *MetricsService) Verification(outcome string, points int64) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
	if points > 0 {
		m.pointsCredited.Add(float64(points))
	}
}

// Redemption counts a redemption attempt.
func (m *MetricsService) Redemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

// TrackQueueDepth exports the buffered job count of a background queue.
func (m *MetricsService) TrackQueueDepth(queue string, depth func() int) {
	if m == nil || depth == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "job_queue_depth",
		Help:        "Jobs waiting in a background queue",
		ConstLabels: prometheus.Labels{"queue": queue},
	}, func() float64 {
		return float64(depth())
	}))
}
