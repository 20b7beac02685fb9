package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 保证指标只注册一次，重复注册同名指标会 panic。
	once sync.Once

	// HTTPRequestsTotal labels：method、route（路由模板，避免高基数）、status。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// Authorizations 记录每一次下载授权的结果。
	// result：granted / exhausted / expired / not_found / error
	Authorizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digital_link_authorizations_total",
			Help: "Access link authorization attempts by result.",
		},
		[]string{"result"},
	)

	LinksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "digital_links_created_total",
			Help: "Access links issued.",
		},
	)

	// CacheOperations labels：layer（l1/l2/bloom）、result（hit_negative/miss/reject）。
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digital_secret_cache_operations_total",
			Help: "Negative secret lookup cache operations.",
		},
		[]string{"layer", "result"},
	)

	AccessEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "digital_access_events_dropped_total",
			Help: "Access events dropped because the collector buffer was full.",
		},
	)
)

// Init 注册全部指标，可重复调用。
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			Authorizations,
			LinksCreated,
			CacheOperations,
			AccessEventsDropped,
		)
	})
}
