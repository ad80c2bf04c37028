// Package observability holds the Prometheus metrics of the service.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"upstream"},
	)

	upstreamFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_failures_total",
			Help: "Upstream calls that failed, by upstream and reason.",
		},
		[]string{"upstream", "reason"},
	)

	isochroneChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "isochrone_chunks_total",
			Help: "Isochrone requests issued by the region builder.",
		},
	)

	regionBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "region_builds_total",
			Help: "Per-line region builds by outcome.",
		},
		[]string{"outcome"},
	)

	queryRegionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_region_generations_total",
			Help: "Query region generations by outcome.",
		},
		[]string{"outcome"},
	)

	queryRegionAreaKm2 = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "query_region_area_km2",
			Help:    "Area of generated query regions in square kilometres.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	placesReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "places_returned",
			Help:    "Places returned per search after polygon filtering.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"category"},
	)

	sessionCacheTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_transitions_total",
			Help: "Session cache state transitions.",
		},
		[]string{"to", "reason"},
	)

	proxyCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_cache_results_total",
			Help: "Isochrone proxy response cache results by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Redis operation latency by op and result.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	activityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_total",
			Help: "Session activity events by result (queued, dropped, error).",
		},
		[]string{"result"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func IncUpstreamFailure(upstream, reason string) {
	upstreamFailuresTotal.WithLabelValues(upstream, reason).Inc()
}

func IncIsochroneChunk() { isochroneChunksTotal.Inc() }

// outcome: ok, no_stations, upstream, empty
func IncRegionBuild(outcome string) {
	regionBuildsTotal.WithLabelValues(outcome).Inc()
}

func ObserveQueryRegion(outcome string, areaKm2 float64) {
	queryRegionsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		queryRegionAreaKm2.Observe(areaKm2)
	}
}

func ObservePlaces(category string, n int) {
	placesReturned.WithLabelValues(category).Observe(float64(n))
}

func IncCacheTransition(to, reason string) {
	sessionCacheTransitions.WithLabelValues(to, reason).Inc()
}

func IncProxyCache(outcome string) {
	proxyCacheResults.WithLabelValues(outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpDurationSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func IncActivityEvent(result string) {
	activityEventsTotal.WithLabelValues(result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
