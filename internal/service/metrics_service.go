package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/gym-class-api/internal/models"
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
	enrollOutcomes  *prometheus.CounterVec
	waitlistEvents  *prometheus.CounterVec
	countRepairs    prometheus.Counter
	txDuration      *prometheus.HistogramVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	enrolledCount        uint64
	waitlistedCount      uint64
	promotionCount       uint64
	expiredCount         uint64
	repairCount          uint64
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
		Name:    "list_cache_latency_seconds",
		Help:    "Latency for roster and waitlist cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "list_cache_write_seconds",
		Help:    "Latency for roster and waitlist cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "list_cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	enrollOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "class_enroll_outcomes_total",
		Help: "Enroll requests by outcome",
	}, []string{"outcome"})

	waitlistEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "class_waitlist_events_total",
		Help: "Waitlist transitions by event type",
	}, []string{"event"})

	countRepairs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "class_session_count_repairs_total",
		Help: "Sessions whose cached enrollment count was corrected",
	})

	txDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "class_tx_duration_seconds",
		Help:    "Duration of session-locking transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio,
		enrollOutcomes, waitlistEvents, countRepairs, txDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		enrollOutcomes:  enrollOutcomes,
		waitlistEvents:  waitlistEvents,
		countRepairs:    countRepairs,
		txDuration:      txDuration,
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
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
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

// RecordEnrollOutcome counts an enroll call by the branch it took.
func (m *MetricsService) RecordEnrollOutcome(outcome models.EnrollOutcome) {
	if m == nil {
		return
	}
	m.enrollOutcomes.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case models.EnrollOutcomeEnrolled:
		atomic.AddUint64(&m.enrolledCount, 1)
	case models.EnrollOutcomeWaitlisted:
		atomic.AddUint64(&m.waitlistedCount, 1)
	}
}

// RecordWaitlistEvent counts promotions, notifications and expirations.
func (m *MetricsService) RecordWaitlistEvent(event models.WaitlistEventType) {
	if m == nil {
		return
	}
	m.waitlistEvents.WithLabelValues(string(event)).Inc()
	switch event {
	case models.WaitlistEventPromoted:
		atomic.AddUint64(&m.promotionCount, 1)
	case models.WaitlistEventExpired:
		atomic.AddUint64(&m.expiredCount, 1)
	}
}

// RecordCountRepair counts one corrected session counter.
func (m *MetricsService) RecordCountRepair() {
	if m == nil {
		return
	}
	m.countRepairs.Inc()
	atomic.AddUint64(&m.repairCount, 1)
}

// ObserveTx records how long a session-locking transaction ran.
func (m *MetricsService) ObserveTx(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Snapshot returns aggregated counters for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		Enrolled:                 atomic.LoadUint64(&m.enrolledCount),
		Waitlisted:               atomic.LoadUint64(&m.waitlistedCount),
		Promotions:               atomic.LoadUint64(&m.promotionCount),
		ExpiredNotifications:     atomic.LoadUint64(&m.expiredCount),
		CountRepairs:             atomic.LoadUint64(&m.repairCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
