package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-finance-api/internal/billing"
	"github.com/noah-isme/sma-finance-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
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
	matrixBuild     *prometheus.HistogramVec
	matrixErrors    prometheus.Counter
	ambiguous       prometheus.Counter
	tuitionStatus   *prometheus.GaugeVec
	completionRate  prometheus.Gauge
	outstanding     prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	matrixBuildCount     uint64
	matrixBuildTotal     uint64
	ambiguousCount       uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	matrixBuild := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tuition_matrix_build_seconds",
		Help:    "Time spent loading and resolving a tuition matrix",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	matrixErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tuition_student_validation_errors_total",
		Help: "Students skipped from a matrix because of invalid billing configuration",
	})

	ambiguous := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tuition_ambiguous_matches_total",
		Help: "Billing periods matched by more than one completed tuition payment",
	})

	tuitionStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tuition_current_period_students",
		Help: "Active students per tuition status for the current billing period",
	}, []string{"status"})

	completionRate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tuition_completion_rate_percent",
		Help: "Share of active students that paid the current billing period",
	})

	outstanding := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tuition_outstanding_revenue",
		Help: "Sum of base fees over overdue cells of the current billing period",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		matrixBuild, matrixErrors, ambiguous, tuitionStatus, completionRate, outstanding, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		matrixBuild:     matrixBuild,
		matrixErrors:    matrixErrors,
		ambiguous:       ambiguous,
		tuitionStatus:   tuitionStatus,
		completionRate:  completionRate,
		outstanding:     outstanding,
	}
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
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
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
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

// ObserveMatrixBuild records a freshly computed matrix and its anomalies.
func (m *MetricsService) ObserveMatrixBuild(matrix *billing.Matrix, duration time.Duration) {
	if m == nil || matrix == nil {
		return
	}
	m.matrixBuild.WithLabelValues(string(matrix.Strategy)).Observe(duration.Seconds())
	m.matrixErrors.Add(float64(len(matrix.Errors)))
	m.ambiguous.Add(float64(len(matrix.Warnings)))
	atomic.AddUint64(&m.matrixBuildCount, 1)
	atomic.AddUint64(&m.matrixBuildTotal, uint64(duration.Nanoseconds()))
	atomic.AddUint64(&m.ambiguousCount, uint64(len(matrix.Warnings)))
}

// SetTuitionStats publishes the current period's collection figures as gauges.
func (m *MetricsService) SetTuitionStats(stats billing.Stats) {
	if m == nil {
		return
	}
	m.tuitionStatus.WithLabelValues(string(billing.StatusPaid)).Set(float64(stats.PaidCount))
	m.tuitionStatus.WithLabelValues(string(billing.StatusOverdue)).Set(float64(stats.OverdueCount))
	m.tuitionStatus.WithLabelValues(string(billing.StatusPending)).Set(float64(stats.PendingCount))
	m.tuitionStatus.WithLabelValues(string(billing.StatusNotYetDue)).Set(float64(stats.NotYetDueCount))
	m.completionRate.Set(float64(stats.CompletionRatePercent))
	m.outstanding.Set(stats.OutstandingRevenue.InexactFloat64())
}

// Snapshot returns aggregated metrics suitable for API consumption.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	builds := atomic.LoadUint64(&m.matrixBuildCount)
	buildDuration := atomic.LoadUint64(&m.matrixBuildTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgBuildMs float64
	if builds > 0 {
		avgBuildMs = float64(buildDuration) / float64(builds) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		MatrixBuilds:             builds,
		AverageMatrixBuildMs:     avgBuildMs,
		AmbiguousMatches:         atomic.LoadUint64(&m.ambiguousCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
